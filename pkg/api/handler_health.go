package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/version"
)

const healthTimeout = 5 * time.Second

// healthHandler handles GET /health: both storage tiers must answer for the
// instance to count as healthy.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "healthy",
		Version:  version.Full(),
		Database: "up",
		Redis:    "up",
	}
	if err := s.deps.DB.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = err.Error()
	}
	if err := s.deps.Cache.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Redis = err.Error()
	}
	if s.deps.Scheduler != nil {
		resp.Scheduler = s.deps.Scheduler.Health(ctx)
	}
	if s.deps.Manager != nil {
		resp.Connections = s.deps.Manager.ActiveConnections()
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
