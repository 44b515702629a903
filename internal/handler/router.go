package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth *AuthHandler
	User *UserHandler
	Chat *ChatHandler
	WS   *WSHandler
}

// RegisterRoutes mounts the API and the WebSocket endpoint. auth guards the
// protected group.
func RegisterRoutes(router *gin.Engine, h Handlers, auth gin.HandlerFunc) {
	api := router.Group("/api/v1")
	{
		// Registration (public)
		api.POST("/users/register", h.Auth.Register)

		// Protected routes
		protected := api.Group("")
		protected.Use(auth)
		{
			protected.POST("/users/logout", h.Auth.Logout)
			protected.GET("/users", h.User.ListUsers)
			protected.GET("/users/:id", h.User.GetUser)

			protected.POST("/messages", h.Chat.SendMessage)
			protected.GET("/messages/conversation", h.Chat.GetConversation)
		}
	}

	// WebSocket endpoint, identity is sent in-band
	router.GET("/ws", h.WS.HandleWebSocket)
}
