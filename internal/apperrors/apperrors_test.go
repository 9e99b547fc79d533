package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   string
		status int
	}{
		{"invalid credentials", InvalidCredentials(), CodeInvalidCredentials, http.StatusUnauthorized},
		{"token expired", TokenExpired(""), CodeTokenExpired, http.StatusUnauthorized},
		{"token invalid", TokenInvalid("No token provided"), CodeTokenInvalid, http.StatusUnauthorized},
		{"forbidden", Forbidden(""), CodeForbidden, http.StatusForbidden},
		{"not found", NotFound("Project", "p1"), "PROJECT_NOT_FOUND", http.StatusNotFound},
		{"validation", Validation("bad", nil), CodeValidation, http.StatusBadRequest},
		{"conflict", Conflict("dup"), CodeConflict, http.StatusConflict},
		{"no photos", NoPhotos(), CodeNoPhotos, http.StatusBadRequest},
		{"already running", AlreadyRunning(), CodeAlreadyRunning, http.StatusConflict},
		{"trigger failed", TriggerFailed("boom"), CodeTriggerFailed, http.StatusBadGateway},
		{"upload failed", UploadFailed("boom"), CodeUploadFailed, http.StatusInternalServerError},
		{"no files", NoFiles(), CodeNoFiles, http.StatusBadRequest},
		{"internal", Internal("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status())
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("AnalysisJob", "job-1")
	assert.Equal(t, "ANALYSISJOB_NOT_FOUND", err.Code)
	assert.Equal(t, "AnalysisJob with id 'job-1' not found", err.Message)

	bare := NotFound("Folder", "")
	assert.Equal(t, "Folder not found", bare.Message)
}

func TestAsThroughWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("trigger: %w", TriggerFailed("Failed to trigger analysis").WithCause(cause))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeTriggerFailed, appErr.Code)
	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, Is(wrapped, CodeTriggerFailed))
	assert.False(t, Is(errors.New("plain"), CodeTriggerFailed))
}
