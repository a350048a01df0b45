package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/queue"
)

// Every endpoint answers with the same envelope:
//
//	{"success": true,  "data": ...}
//	{"success": false, "error": {"code": ..., "message": ...}}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
}

// PromptCounts breaks the session's prompts down by status.
type PromptCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Processing int `json:"processing"`
	Pending    int `json:"pending"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped,omitempty"`
}

// StatusResponse is the session status snapshot returned by
// GET /api/v1/sessions/:id.
type StatusResponse struct {
	SessionID          string               `json:"sessionId"`
	Status             models.SessionStatus `json:"status"`
	Progress           float64              `json:"progress"`
	Prompts            PromptCounts         `json:"prompts"`
	HasClarifications  bool                 `json:"hasClarifications"`
	ClarificationCount int                  `json:"clarificationCount"`
	HasResult          bool                 `json:"hasResult"`
	ExpiresAt          time.Time            `json:"expiresAt"`
}

// countPrompts tallies prompts by status.
func countPrompts(prompts []*models.Prompt) PromptCounts {
	counts := PromptCounts{Total: len(prompts)}
	for _, p := range prompts {
		switch p.Status {
		case models.PromptCompleted:
			counts.Completed++
		case models.PromptProcessing:
			counts.Processing++
		case models.PromptPending:
			counts.Pending++
		case models.PromptFailed:
			counts.Failed++
		case models.PromptSkipped:
			counts.Skipped++
		}
	}
	return counts
}

// progressOf is completed/total as a percentage; 0 for a session with no
// prompts.
func progressOf(counts PromptCounts) float64 {
	if counts.Total == 0 {
		return 0
	}
	return float64(counts.Completed) / float64(counts.Total) * 100
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string       `json:"status"`
	Version     string       `json:"version"`
	Database    string       `json:"database"`
	Redis       string       `json:"redis"`
	Scheduler   queue.Health `json:"scheduler"`
	Connections int          `json:"ws_connections"`
}
