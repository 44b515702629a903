package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
	"github.com/quocanhngo/chatrelay/pkg/auth"
)

// Context keys set for downstream handlers
const (
	UserIDKey    = "user_id"
	DeviceKeyKey = "device_key"
	TokenKey     = "token"
)

// Revocations tells whether a token was logged out
type Revocations interface {
	IsRevoked(ctx context.Context, tokenString string) (bool, error)
}

// AuthMiddleware validates JWT tokens and injects user claims into context.
// revocations may be nil.
func AuthMiddleware(jwtManager *auth.JWTManager, revocations Revocations) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			unauthorized(c, "Invalid authorization format. Use: Bearer <token>")
			return
		}

		tokenString := parts[1]

		if revocations != nil {
			revoked, err := revocations.IsRevoked(c.Request.Context(), tokenString)
			if err != nil {
				// fail closed
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, model.ErrorResponse{
					Error: "Auth server error",
					Code:  string(apperror.CodeStoreUnavailable),
				})
				return
			}
			if revoked {
				unauthorized(c, "Token has been revoked")
				return
			}
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(DeviceKeyKey, claims.DeviceKey)
		c.Set(TokenKey, tokenString)

		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
		Error: msg,
		Code:  string(apperror.CodeNotAuthenticated),
	})
}
