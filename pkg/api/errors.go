package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/llm"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

// mapServiceError translates service-layer errors into the error envelope.
func mapServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	switch {
	case errors.As(err, &validErr):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", validErr.Error())
	case errors.Is(err, services.ErrSessionExpired):
		respondError(c, http.StatusGone, "SESSION_EXPIRED", "session has expired")
	case errors.Is(err, services.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, services.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, services.ErrConflict):
		respondError(c, http.StatusConflict, "CONFLICT", err.Error())
	case llm.IsNoModel(err):
		respondError(c, http.StatusServiceUnavailable, "NO_MODEL_AVAILABLE", "no usable model available")
	default:
		slog.Error("Unexpected service error", "path", c.Request.URL.Path, "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
