package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// getResultHandler handles GET /api/v1/sessions/:id/result. Without a
// version query the latest version is returned.
func (s *Server) getResultHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	version := 0
	if v := c.Query("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "version must be a positive integer")
			return
		}
		version = n
	}

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}

	if version > 0 {
		result, err := s.deps.Results.Get(ctx, sessionID, version)
		if err != nil {
			mapServiceError(c, err)
			return
		}
		respond(c, http.StatusOK, result)
		return
	}

	result, err := s.deps.Results.Latest(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

type confirmResultRequest struct {
	// ResultID picks a specific version to confirm; empty means latest.
	ResultID string `json:"resultId"`
}

// confirmResultHandler handles POST /api/v1/sessions/:id/result/confirm.
// Confirming demotes any earlier confirmed version; at most one version is
// CONFIRMED at a time.
func (s *Server) confirmResultHandler(c *gin.Context) {
	var req confirmResultRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	result, err := s.deps.Results.Confirm(ctx, sessionID, req.ResultID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

type modifyResultRequest struct {
	// Content replaces the result text directly.
	Content string `json:"content"`
	// Prompts run additional instructions over the documents instead.
	Prompts []promptPayload `json:"prompts"`
}

// modifyResultHandler handles POST /api/v1/sessions/:id/result/modify.
// Exactly one of content (direct edit, becomes a MODIFIED version) or
// prompts (further processing) must be provided.
func (s *Server) modifyResultHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req modifyResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if (req.Content == "") == (len(req.Prompts) == 0) {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR",
			"provide either content or prompts, not both")
		return
	}

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	s.logModification(ctx, sessionID, req)

	if req.Content != "" {
		result, err := s.deps.Results.ModifyDirect(ctx, sessionID, req.Content)
		if err != nil {
			mapServiceError(c, err)
			return
		}
		respond(c, http.StatusCreated, result)
		return
	}

	files, err := s.deps.Files.List(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	prompts := make([]*models.Prompt, len(req.Prompts))
	for i, payload := range req.Prompts {
		prompts[i] = &models.Prompt{
			Content:       payload.Content,
			Priority:      payload.Priority,
			TargetType:    payload.TargetType,
			TargetFileID:  payload.TargetFileID,
			TargetLines:   payload.TargetLines,
			TargetSection: payload.TargetSection,
		}
	}
	stored, err := s.deps.Prompts.Add(ctx, sessionID, prompts, files)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if _, err := s.deps.Sessions.UpdateStatus(ctx, sessionID, models.SessionProcessing); err != nil {
		mapServiceError(c, err)
		return
	}
	s.enqueue(c, sessionID, stored)
	respond(c, http.StatusAccepted, stored)
}

// logModification records the result-modification request in the
// conversation log.
func (s *Server) logModification(ctx context.Context, sessionID string, req modifyResultRequest) {
	content := req.Content
	if content == "" {
		parts := make([]string, len(req.Prompts))
		for i, p := range req.Prompts {
			parts[i] = p.Content
		}
		content = strings.Join(parts, "\n")
	}
	if _, err := s.deps.Conversation.Append(ctx, &models.ConversationMessage{
		SessionID: sessionID,
		Type:      models.MessageModification,
		Role:      models.RoleUser,
		Content:   content,
		Context:   map[string]any{"directEdit": req.Content != ""},
	}); err != nil {
		slog.Warn("Failed to log result modification", "session_id", sessionID, "error", err)
	}
}

// regenerateResultHandler handles POST /api/v1/sessions/:id/result/regenerate:
// all prompts return to PENDING and run again, producing a new result
// version.
func (s *Server) regenerateResultHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	if _, err := s.deps.Sessions.UpdateStatus(ctx, sessionID, models.SessionProcessing); err != nil {
		mapServiceError(c, err)
		return
	}
	prompts, err := s.deps.Prompts.Reset(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	s.enqueue(c, sessionID, prompts)
	respond(c, http.StatusAccepted, gin.H{"sessionId": sessionID, "prompts": len(prompts)})
}
