package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateToken(42, "device-1")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "device-1", claims.DeviceKey)
	assert.Equal(t, "chatrelay", claims.Issuer)
}

func TestValidateRejectsForeignAndExpired(t *testing.T) {
	token, err := NewJWTManager("other", time.Hour).GenerateToken(1, "d")
	require.NoError(t, err)
	_, err = NewJWTManager("secret", time.Hour).ValidateToken(token)
	assert.Error(t, err)

	expired, err := NewJWTManager("secret", -time.Minute).GenerateToken(1, "d")
	require.NoError(t, err)
	_, err = NewJWTManager("secret", time.Hour).ValidateToken(expired)
	assert.Error(t, err)

	_, err = NewJWTManager("secret", time.Hour).ValidateToken("not-a-token")
	assert.Error(t, err)
}
