package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// conversationHandler handles GET /api/v1/sessions/:id/conversation.
// An optional limit returns only the newest messages.
func (s *Server) conversationHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = n
	}

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	messages, err := s.deps.Conversation.List(ctx, sessionID, limit)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, messages)
}

// listClarificationsHandler handles GET /api/v1/sessions/:id/clarifications:
// only the clarifications still waiting for an answer.
func (s *Server) listClarificationsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	pending, err := s.deps.Conversation.PendingClarifications(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, pending)
}

type respondClarificationRequest struct {
	Content string `json:"content" binding:"required"`
}

// respondClarificationHandler handles
// POST /api/v1/sessions/:id/clarifications/:messageId/respond. Answering the
// last open clarification can complete the session.
func (s *Server) respondClarificationHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	clarificationID := c.Param("messageId")

	var req respondClarificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	reply, err := s.deps.Conversation.Respond(ctx, sessionID, clarificationID, req.Content)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if err := s.deps.Executor.EvaluateCompletion(ctx, sessionID); err != nil {
		slog.Warn("Completion evaluation after clarification response failed",
			"session_id", sessionID, "error", err)
	}
	respond(c, http.StatusCreated, reply)
}

type resolveClarificationsRequest struct {
	Note string `json:"note"`
}

// resolveClarificationsHandler handles
// POST /api/v1/sessions/:id/clarifications/resolve: every open clarification
// is closed with an operator note instead of an answer.
func (s *Server) resolveClarificationsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req resolveClarificationsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	resolved, err := s.deps.Conversation.ResolveAll(ctx, sessionID, req.Note)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if err := s.deps.Executor.EvaluateCompletion(ctx, sessionID); err != nil {
		slog.Warn("Completion evaluation after resolve failed",
			"session_id", sessionID, "error", err)
	}
	respond(c, http.StatusOK, gin.H{"resolved": resolved})
}
