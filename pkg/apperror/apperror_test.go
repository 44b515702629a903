package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrappedChain(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("send: %w", StoreUnavailable("message store unavailable", cause))

	assert.Equal(t, CodeStoreUnavailable, CodeOf(err))
	assert.Equal(t, "message store unavailable", MessageOf(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("text is required")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(NotAuthenticated("register first")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(UnknownRecipient("no such user")))
	assert.False(t, IsRetryable(Validation("x")))
}
