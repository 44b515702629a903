package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/service"
)

// ChatHandler handles message endpoints
type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessage godoc
// @Summary Send a message
// @Description Persists the message and delivers it live when the receiver is connected
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.SendMessageRequest true "Message"
// @Success 201 {object} model.SendMessageResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request", err)
		return
	}

	res, err := h.chatService.Send(c.Request.Context(), service.SendInput{
		SenderID:         currentUserID(c),
		ReceiverID:       req.ReceiverID,
		Text:             req.Text,
		CorrelationToken: req.CorrelationToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if !res.Outcome.Persisted() {
		respondError(c, res.Err)
		return
	}

	c.JSON(http.StatusCreated, model.SendMessageResponse{
		Outcome:          string(res.Outcome),
		Message:          res.Message,
		CorrelationToken: res.CorrelationToken,
	})
}

// GetConversation godoc
// @Summary Get the conversation with a peer
// @Description Newest messages exchanged with peer_id, oldest first
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param peer_id query int true "Peer user ID"
// @Param limit query int false "Max messages (default 50, max 200)"
// @Success 200 {object} model.ConversationResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /messages/conversation [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	var req model.ConversationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		validationError(c, "Invalid request", err)
		return
	}

	msgs, err := h.chatService.GetConversation(c.Request.Context(), currentUserID(c), req.PeerID, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ConversationResponse{PeerID: req.PeerID, Messages: msgs})
}
