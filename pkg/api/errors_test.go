package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/llm"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

func runMapping(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	mapServiceError(c, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", services.NewValidationError("prompts", "empty content"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"expired", fmt.Errorf("session x: %w", services.ErrSessionExpired), http.StatusGone, "SESSION_EXPIRED"},
		{"not found", fmt.Errorf("prompt y: %w", services.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"transition", fmt.Errorf("ACTIVE -> COMPLETED: %w", services.ErrInvalidTransition), http.StatusConflict, "INVALID_TRANSITION"},
		{"conflict", fmt.Errorf("already picked up: %w", services.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"no model", fmt.Errorf("%w: registry empty", llm.ErrNoModelAvailable), http.StatusServiceUnavailable, "NO_MODEL_AVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := runMapping(t, tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, false, body["success"])
			errObj, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.code, errObj["code"])
		})
	}
}
