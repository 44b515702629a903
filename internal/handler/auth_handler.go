package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/chatrelay/internal/middleware"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/service"
)

// AuthHandler handles device registration and logout
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register godoc
// @Summary Register a device and get a token
// @Description Resolves the device key to a stable user id, creating it on first use. Does not mark the user online.
// @Tags Users
// @Accept json
// @Produce json
// @Param body body model.RegisterRequest true "Register request"
// @Success 200 {object} model.RegisteredEvent
// @Failure 400 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /users/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request", err)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout godoc
// @Summary Logout
// @Description Revoke the current token
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /users/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := currentUserID(c)
	tokenString := c.GetString(middleware.TokenKey)

	if err := h.authService.Logout(c.Request.Context(), userID, tokenString); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Logged out successfully"})
}
