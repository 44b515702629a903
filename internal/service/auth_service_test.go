package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/auth"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RegisterAndLogout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	presence := newFakePresence()
	identities, repo := newIdentityService(t, presence)
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	svc := NewAuthService(identities, jwtManager, rdb, presence)
	ctx := context.Background()

	reg, err := svc.Register(ctx, model.RegisterRequest{DeviceKey: "D1", PushToken: "tok"})
	require.NoError(t, err)
	assert.True(t, reg.IsNew)
	assert.NotEmpty(t, reg.Token)

	claims, err := jwtManager.ValidateToken(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, claims.UserID)

	stored, err := repo.FindByID(ctx, reg.UserID)
	require.NoError(t, err)
	assert.False(t, stored.Online)
	assert.Equal(t, "tok", stored.PushToken)

	again, err := svc.Register(ctx, model.RegisterRequest{DeviceKey: "D1"})
	require.NoError(t, err)
	assert.False(t, again.IsNew)
	assert.Equal(t, reg.UserID, again.UserID)

	revoked, err := svc.IsRevoked(ctx, reg.Token)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, svc.Logout(ctx, reg.UserID, reg.Token))

	revoked, err = svc.IsRevoked(ctx, reg.Token)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists(blacklistPrefix+reg.Token))
}

func TestAuthService_WithoutRedis(t *testing.T) {
	identities, _ := newIdentityService(t, nil)
	svc := NewAuthService(identities, auth.NewJWTManager("secret", time.Hour), nil, nil)
	ctx := context.Background()

	reg, err := svc.Register(ctx, model.RegisterRequest{DeviceKey: "D1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, reg.UserID, reg.Token))
	revoked, err := svc.IsRevoked(ctx, reg.Token)
	require.NoError(t, err)
	assert.False(t, revoked)
}
