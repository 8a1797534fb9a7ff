package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithServer("seo-data")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "seo-data", err.Server)
	assert.Equal(t, "[UPSTREAM_ERROR] upstream failed: root", err.Error())
}

func TestError_WithoutCause(t *testing.T) {
	t.Parallel()

	err := NewError(ErrTimeout, "call exceeded deadline")
	assert.Equal(t, "[TIMEOUT] call exceeded deadline", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("outer: %w", NewError(ErrRateLimited, "slow down").WithRetryable(true))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrRateLimited, GetErrorCode(wrapped))

	plain := errors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.Equal(t, ErrorCode(""), GetErrorCode(plain))
}
