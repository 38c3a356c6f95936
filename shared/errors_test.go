package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppErrorUnwrapsChains(t *testing.T) {
	base := NewNotFoundError(ErrCodeShareUnavailable, "gone")
	wrapped := fmt.Errorf("handler: %w", base)

	appErr, ok := GetAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
	assert.Equal(t, ErrCodeShareUnavailable, appErr.ErrorCode)

	_, ok = GetAppError(errors.New("plain"))
	assert.False(t, ok)
}

func TestUnlockErrorStatusSelection(t *testing.T) {
	assert.Equal(t, http.StatusPaymentRequired, NewUnlockError(ErrCodeUnlockRequired, "no credits").StatusCode)
	assert.Equal(t, http.StatusPaymentRequired, NewUnlockError(ErrCodeUnlockTokenUsed, "spent").StatusCode)
	assert.Equal(t, http.StatusBadRequest, NewUnlockError(ErrCodeInvalidUnlockToken, "bad sig").StatusCode)
	assert.Equal(t, http.StatusBadRequest, NewUnlockError(ErrCodeInvalidUnlockMethod, "bad method").StatusCode)
}

func TestAppErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewInternalError(cause, "Failed to persist share")

	assert.Contains(t, err.Error(), "Failed to persist share")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}
