package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

type promptPayload struct {
	Content       string            `json:"content" binding:"required"`
	Priority      int               `json:"priority"`
	TargetType    models.TargetType `json:"targetType" binding:"required"`
	TargetFileID  string            `json:"targetFileId"`
	TargetLines   *models.LineRange `json:"targetLines"`
	TargetSection string            `json:"targetSection"`
}

type addPromptsRequest struct {
	Prompts []promptPayload `json:"prompts" binding:"required,min=1"`
}

// addPromptsHandler handles POST /api/v1/sessions/:id/prompts: the batch is
// validated and stored, one job per prompt goes to the queue, and the
// scheduler is woken up.
func (s *Server) addPromptsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req addPromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
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

	s.enqueue(c, sessionID, stored)
	respond(c, http.StatusCreated, stored)
}

// enqueue pushes one job per stored prompt and wakes the scheduler. A
// failed enqueue leaves the prompt PENDING with no job behind it; the error
// is logged and the prompt shows up stuck in the status endpoint.
func (s *Server) enqueue(c *gin.Context, sessionID string, prompts []*models.Prompt) {
	ctx := c.Request.Context()
	for _, prompt := range prompts {
		job := models.Job{
			SessionID:  sessionID,
			PromptID:   prompt.ID,
			Priority:   prompt.Priority,
			EnqueuedAt: time.Now().UTC(),
		}
		if err := s.deps.Queue.Enqueue(ctx, job); err != nil {
			slog.Error("Failed to enqueue prompt job",
				"session_id", sessionID, "prompt_id", prompt.ID, "error", err)
		}
	}
	s.deps.Scheduler.Notify()
}

// skipPromptHandler handles POST /api/v1/sessions/:id/prompts/:promptId/skip.
// Skipping may settle the session, so completion is re-evaluated.
func (s *Server) skipPromptHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	promptID := c.Param("promptId")

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	if err := s.deps.Prompts.Skip(ctx, sessionID, promptID); err != nil {
		mapServiceError(c, err)
		return
	}
	if err := s.deps.Executor.EvaluateCompletion(ctx, sessionID); err != nil {
		slog.Warn("Completion evaluation after skip failed",
			"session_id", sessionID, "error", err)
	}
	respond(c, http.StatusOK, gin.H{"promptId": promptID, "status": models.PromptSkipped})
}
