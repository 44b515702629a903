package service

import (
	"context"
	"log"
	"slices"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
	"github.com/quocanhngo/chatrelay/pkg/auth"
	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// AuthService issues and revokes the bearer tokens used by the REST surface
type AuthService struct {
	identities *IdentityService
	jwtManager *auth.JWTManager
	rdb        *redis.Client
	presence   Presence
}

func NewAuthService(identities *IdentityService, jwtManager *auth.JWTManager, rdb *redis.Client, presence Presence) *AuthService {
	return &AuthService{
		identities: identities,
		jwtManager: jwtManager,
		rdb:        rdb,
		presence:   presence,
	}
}

// Register resolves the device key without marking it online and returns a
// token for it
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.RegisteredEvent, error) {
	res, err := s.identities.Resolve(ctx, req.DeviceKey, req.Device(), false)
	if err != nil {
		return nil, err
	}
	return s.Registered(res)
}

// Registered builds the registration acknowledgement, token included
func (s *AuthService) Registered(res *Resolution) (*model.RegisteredEvent, error) {
	token, err := s.jwtManager.GenerateToken(res.Identity.ID, res.Identity.DeviceKey)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "failed to issue token", err)
	}
	return &model.RegisteredEvent{
		UserID:    res.Identity.ID,
		DeviceKey: res.Identity.DeviceKey,
		IsNew:     res.IsNew,
		Token:     token,
	}, nil
}

// Logout revokes the token until it would have expired anyway. A user with no
// live connection is also marked offline.
func (s *AuthService) Logout(ctx context.Context, userID uint64, tokenString string) error {
	if s.presence == nil || !slices.Contains(s.presence.OnlineUserIDs(), userID) {
		if err := s.identities.MarkOffline(ctx, userID); err != nil {
			log.Printf("⚠️ Failed to mark user %d offline: %v", userID, err)
		}
	}

	if s.rdb == nil {
		return nil
	}

	claims, err := s.jwtManager.ValidateToken(tokenString)
	if err != nil {
		return apperror.NotAuthenticated("invalid token")
	}

	expiresIn := time.Until(claims.ExpiresAt.Time)
	if expiresIn <= 0 {
		return nil
	}

	if err := s.rdb.Set(ctx, blacklistPrefix+tokenString, "revoked", expiresIn).Err(); err != nil {
		return apperror.StoreUnavailable("token store unavailable", err)
	}
	return nil
}

// IsRevoked reports whether the token was logged out
func (s *AuthService) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	if s.rdb == nil {
		return false, nil
	}
	exists, err := s.rdb.Exists(ctx, blacklistPrefix+tokenString).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
