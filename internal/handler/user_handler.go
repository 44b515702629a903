package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/service"
)

// UserHandler exposes the peer list over REST
type UserHandler struct {
	identities *service.IdentityService
}

func NewUserHandler(identities *service.IdentityService) *UserHandler {
	return &UserHandler{identities: identities}
}

// ListUsers godoc
// @Summary List peers
// @Description Every other identity, online ones first
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.PeersResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	peers, err := h.identities.ListPeers(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.PeersResponse{Users: peers})
}

// GetUser godoc
// @Summary Get one user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} model.Peer
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		validationError(c, "Invalid user ID", nil)
		return
	}

	peer, err := h.identities.GetPeer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, peer)
}
