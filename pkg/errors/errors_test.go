package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewNotFoundError("session")
	assert.Equal(t, "NOT_FOUND: session not found", err.Error())
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := WrapError(cause, ErrCodeUpstreamFailed, "metadata lookup failed", http.StatusBadGateway)

	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, err.Unwrap())
}

func TestGetAppErrorDirect(t *testing.T) {
	appErr := NewInvalidInputError("bad title")
	got := GetAppError(appErr)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeInvalidInput, got.Code)
}

func TestGetAppErrorWrapped(t *testing.T) {
	appErr := NewForbiddenError("not the host")
	wrapped := fmt.Errorf("handling request: %w", appErr)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeForbidden, got.Code)
}

func TestGetAppErrorNil(t *testing.T) {
	assert.Nil(t, GetAppError(nil))
	assert.Nil(t, GetAppError(fmt.Errorf("plain error")))
}

func TestConstructorStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{NewInvalidInputError("x"), http.StatusBadRequest},
		{NewUnauthorizedError("x"), http.StatusUnauthorized},
		{NewForbiddenError("x"), http.StatusForbidden},
		{NewConflictError("x"), http.StatusConflict},
		{NewSessionEndedError(), http.StatusGone},
		{NewInternalError("x"), http.StatusInternalServerError},
		{NewUpstreamError("x"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus)
	}
}
