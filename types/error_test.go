package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := NewError(ErrRateLimited, "too many requests")
	assert.Equal(t, "[RATE_LIMITED] too many requests", err.Error())

	cause := errors.New("status 429")
	err = err.WithCause(cause)
	assert.Equal(t, "[RATE_LIMITED] too many requests: status 429", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestError_Builders(t *testing.T) {
	t.Parallel()

	err := NewError(ErrUpstreamError, "bad gateway").
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, ErrUpstreamError, err.Code)
	assert.True(t, err.Retryable)
	assert.Equal(t, "openai", err.Provider)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(NewError(ErrTimeout, "slow").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrAuthentication, "bad key")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestGetErrorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrNoDraft, GetErrorCode(NewError(ErrNoDraft, "nothing written")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))

	// Wrapped errors lose the code; callers must read it before wrapping.
	wrapped := fmt.Errorf("context: %w", NewError(ErrNoDraft, "nothing written"))
	assert.Equal(t, ErrorCode(""), GetErrorCode(wrapped))

	var te *Error
	require.True(t, errors.As(wrapped, &te))
	assert.Equal(t, ErrNoDraft, te.Code)
}
