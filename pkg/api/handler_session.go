package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

type createSessionRequest struct {
	UserID   string         `json:"userId"`
	Metadata map[string]any `json:"metadata"`
}

// createSessionHandler handles POST /api/v1/sessions.
func (s *Server) createSessionHandler(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	session, err := s.deps.Sessions.Create(c.Request.Context(), req.UserID, req.Metadata)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, session)
}

// sessionStatusHandler handles GET /api/v1/sessions/:id. Reading the status
// does not move the session expiry.
func (s *Server) sessionStatusHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	session, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	prompts, err := s.deps.Prompts.List(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	pending, err := s.deps.Conversation.PendingClarifications(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	counts := countPrompts(prompts)
	status := &StatusResponse{
		SessionID:          session.ID,
		Status:             session.Status,
		Progress:           progressOf(counts),
		Prompts:            counts,
		HasClarifications:  len(pending) > 0,
		ClarificationCount: len(pending),
		ExpiresAt:          session.ExpiresAt,
	}
	switch _, err := s.deps.Results.Latest(ctx, sessionID); {
	case err == nil:
		status.HasResult = true
	case !errors.Is(err, services.ErrNotFound):
		mapServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, status)
}

type extendSessionRequest struct {
	Seconds int `json:"seconds" binding:"required,gt=0"`
}

// extendSessionHandler handles POST /api/v1/sessions/:id/extend: pushes the
// session expiry out by the requested number of seconds.
func (s *Server) extendSessionHandler(c *gin.Context) {
	var req extendSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	session, err := s.deps.Sessions.Extend(ctx, sessionID, time.Duration(req.Seconds)*time.Second)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"sessionId": session.ID, "expiresAt": session.ExpiresAt})
}

// closeSessionHandler handles DELETE /api/v1/sessions/:id: the session is
// expired immediately and its queued jobs are dropped.
func (s *Server) closeSessionHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := s.deps.Sessions.Peek(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	if err := s.deps.Sessions.Expire(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	if _, err := s.deps.Queue.RemoveSession(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"sessionId": sessionID, "status": "EXPIRED"})
}
