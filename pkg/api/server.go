// Package api exposes the wizard backend over HTTP: session lifecycle, file
// upload, prompt submission, clarifications, results, the model registry and
// the WebSocket event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cache"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/database"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/engine"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/events"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/queue"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Config       config.ServerConfig
	DB           *database.Client
	Cache        *cache.Client
	Sessions     *services.SessionService
	Files        *services.FileService
	Prompts      *services.PromptService
	Conversation *services.ConversationService
	Results      *services.ResultService
	Registry     *services.RegistryService
	Queue        *queue.PriorityQueue
	Scheduler    *queue.Scheduler
	Executor     *engine.Executor
	Manager      *events.ConnectionManager
}

// Server is the HTTP server of the wizard backend.
type Server struct {
	deps Deps
	http *http.Server
}

// NewServer builds the server and its router.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	s.http = &http.Server{
		Addr:    ":" + deps.Config.Port,
		Handler: s.Router(),
	}
	return s
}

// Router builds the gin engine with all routes registered. Exposed
// separately so tests can drive handlers through httptest.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.healthHandler)
	r.GET("/ws", s.wsHandler)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sessions", s.createSessionHandler)
		v1.GET("/sessions/:id", s.sessionStatusHandler)
		v1.POST("/sessions/:id/extend", s.extendSessionHandler)
		v1.DELETE("/sessions/:id", s.closeSessionHandler)

		v1.POST("/sessions/:id/files", s.uploadFilesHandler)
		v1.GET("/sessions/:id/files", s.listFilesHandler)

		v1.POST("/sessions/:id/prompts", s.addPromptsHandler)
		v1.POST("/sessions/:id/prompts/:promptId/skip", s.skipPromptHandler)

		v1.GET("/sessions/:id/conversation", s.conversationHandler)
		v1.GET("/sessions/:id/clarifications", s.listClarificationsHandler)
		v1.POST("/sessions/:id/clarifications/:messageId/respond", s.respondClarificationHandler)
		v1.POST("/sessions/:id/clarifications/resolve", s.resolveClarificationsHandler)

		v1.GET("/sessions/:id/result", s.getResultHandler)
		v1.POST("/sessions/:id/result/confirm", s.confirmResultHandler)
		v1.POST("/sessions/:id/result/modify", s.modifyResultHandler)
		v1.POST("/sessions/:id/result/regenerate", s.regenerateResultHandler)

		v1.GET("/models", s.listModelsHandler)
		v1.POST("/models/:name/enable", s.enableModelHandler)
	}
	return r
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger logs each request through slog at debug level, errors at
// warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if status >= http.StatusInternalServerError {
			slog.Warn("Request failed", attrs...)
		} else {
			slog.Debug("Request handled", attrs...)
		}
	}
}
