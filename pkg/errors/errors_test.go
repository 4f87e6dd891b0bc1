package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAppError_Classification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		check  func(error) bool
		status int
	}{
		{"validation", NewValidationError("bad"), IsValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("memory"), IsNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("busy"), IsConflict, http.StatusConflict},
		{"unavailable", NewUnavailableError("remote"), IsUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)

			assert.True(t, tt.check(wrapped))
			assert.Equal(t, tt.status, GetAppError(wrapped).HTTPStatus)
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "context"))
	})

	t.Run("app error keeps type", func(t *testing.T) {
		err := Wrap(NewValidationError("description is required"), "commit draft")

		assert.True(t, IsValidation(err))
		assert.Equal(t, "commit draft: description is required", GetAppError(err).Message)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		cause := stderrors.New("boom")
		err := Wrapf(cause, "write %s", "memory")

		assert.True(t, IsType(err, ErrorTypeInternal))
		assert.ErrorIs(t, err, cause)
	})
}

func TestHasCode(t *testing.T) {
	err := NewValidationError("x").WithCode(CodeDescriptionRequired)

	assert.True(t, HasCode(err, CodeDescriptionRequired))
	assert.False(t, HasCode(err, CodeLocationRequired))
	assert.False(t, HasCode(stderrors.New("plain"), CodeDescriptionRequired))
}

func TestErrorHandler_Handle(t *testing.T) {
	handler := NewErrorHandler(zap.NewNop(), false)

	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/draft/commit", nil)
		req.Header.Set("X-Request-ID", "req-1")

		handler.Handle(rec, req, NewValidationError("description is required").WithCode(CodeDescriptionRequired))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Error)
		assert.Equal(t, "VALIDATION", body.Type)
		assert.Equal(t, CodeDescriptionRequired, body.Code)
		assert.Equal(t, "req-1", body.RequestID)
	})

	t.Run("unknown error hides message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/memories", nil)

		handler.Handle(rec, req, stderrors.New("secret detail"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret detail")
	})
}
