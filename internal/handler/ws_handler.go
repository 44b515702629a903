package handler

import (
	"log"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/chatrelay/internal/service"
	"github.com/quocanhngo/chatrelay/internal/ws"
)

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub         *ws.Hub
	identities  *service.IdentityService
	chatService *service.ChatService
	authService *service.AuthService
	upgrader    websocket.Upgrader
	sendBuffer  int
}

func NewWSHandler(
	hub *ws.Hub,
	identities *service.IdentityService,
	chatService *service.ChatService,
	authService *service.AuthService,
	origins []string,
	sendBuffer int,
) *WSHandler {
	return &WSHandler{
		hub:         hub,
		identities:  identities,
		chatService: chatService,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
		sendBuffer: sendBuffer,
	}
}

// checkOrigin allows any origin when the list holds "*", and requests without
// an Origin header (non-browser clients)
func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if slices.Contains(origins, "*") {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection.
// Identity is established in-band with a register event.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, h.sendBuffer)
	h.hub.Attach(client)
	session := NewSession(client, h.hub, h.identities, h.chatService, h.authService)

	// Start read/write pumps in goroutines
	go client.WritePump()
	go func() {
		client.ReadPump(session.Handle)
		session.Close()
	}()
}
