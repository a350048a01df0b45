package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cache"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// PromptService stores prompts and their processing state. A batch submit is
// all-or-nothing: one invalid prompt rejects the whole batch before anything
// is written.
type PromptService struct {
	db    *sql.DB
	cache *cache.Client
	ttl   time.Duration
}

// NewPromptService creates a PromptService.
func NewPromptService(db *sql.DB, cache *cache.Client, ttl time.Duration) *PromptService {
	return &PromptService{db: db, cache: cache, ttl: ttl}
}

// Add validates and stores a batch of prompts. Execution order continues
// after the session's existing prompts, batch-sorted by (priority,
// submission index). File-targeted prompts must reference a file of the
// same session.
func (p *PromptService) Add(ctx context.Context, sessionID string, prompts []*models.Prompt, sessionFiles []*models.File) ([]*models.Prompt, error) {
	if len(prompts) == 0 {
		return nil, NewValidationError("prompts", "at least one prompt is required")
	}

	fileIDs := make(map[string]bool, len(sessionFiles))
	for _, f := range sessionFiles {
		fileIDs[f.ID] = true
	}

	for i, prompt := range prompts {
		if prompt.Content == "" {
			return nil, NewValidationError("prompts", "prompt %d has empty content", i)
		}
		if err := prompt.ValidateTargeting(); err != nil {
			return nil, &ValidationError{Field: "prompts", Message: err.Error()}
		}
		if prompt.TargetFileID != "" && !fileIDs[prompt.TargetFileID] {
			return nil, NewValidationError("prompts",
				"prompt %d targets unknown file %s", i, prompt.TargetFileID)
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var base int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(execution_order), 0) + 1 FROM prompts WHERE session_id = $1`,
		sessionID,
	).Scan(&base); err != nil {
		return nil, fmt.Errorf("failed to count session prompts: %w", err)
	}

	orderBatch(prompts, base)

	now := time.Now().UTC()
	for _, prompt := range prompts {
		prompt.ID = uuid.New().String()
		prompt.SessionID = sessionID
		prompt.Status = models.PromptPending
		prompt.CreatedAt = now

		linesJSON, err := marshalNullablePtr(prompt.TargetLines)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal target lines: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO prompts (id, session_id, content, priority, target_type,
			                      target_file_id, target_lines, target_section,
			                      status, execution_order, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			prompt.ID, prompt.SessionID, prompt.Content, prompt.Priority,
			prompt.TargetType, nullString(prompt.TargetFileID), linesJSON,
			nullString(prompt.TargetSection), prompt.Status,
			prompt.ExecutionOrder, prompt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert prompt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit prompts: %w", err)
	}

	if err := p.recache(ctx, sessionID); err != nil {
		slog.Warn("Failed to recache prompt list", "session_id", sessionID, "error", err)
	}

	slog.Info("Prompts stored", "session_id", sessionID, "count", len(prompts))
	return prompts, nil
}

// orderBatch sorts the batch by (priority, submission index) and assigns
// execution order continuing from base. The sort is stable, so equal
// priorities keep their submission order.
func orderBatch(prompts []*models.Prompt, base int) {
	sort.SliceStable(prompts, func(i, j int) bool {
		return prompts[i].Priority < prompts[j].Priority
	})
	for i, prompt := range prompts {
		prompt.ExecutionOrder = base + i
	}
}

// List returns the session's prompts ordered by execution order.
func (p *PromptService) List(ctx context.Context, sessionID string) ([]*models.Prompt, error) {
	var prompts []*models.Prompt
	err := p.cache.GetJSON(ctx, cache.SessionPromptsKey(sessionID), &prompts)
	if err == nil {
		return prompts, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.Warn("Hot-tier prompt list read failed", "session_id", sessionID, "error", err)
	}

	prompts, err = p.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := p.cache.SetJSON(ctx, cache.SessionPromptsKey(sessionID), prompts, p.ttl); err != nil {
		slog.Warn("Failed to cache prompt list", "session_id", sessionID, "error", err)
	}
	return prompts, nil
}

// Get loads a single prompt from the durable store (always fresh — the
// scheduler's idempotency guard must not act on a stale cache).
func (p *PromptService) Get(ctx context.Context, promptID string) (*models.Prompt, error) {
	rows, err := p.db.QueryContext(ctx, promptSelect+` WHERE id = $1`, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read prompt: %w", err)
		}
		return nil, fmt.Errorf("prompt %s: %w", promptID, ErrNotFound)
	}
	return scanPrompt(rows)
}

// Claim atomically moves a PENDING prompt to PROCESSING. Returns false when
// the prompt is in any other state — the scheduler drops such jobs.
func (p *PromptService) Claim(ctx context.Context, promptID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE prompts SET status = $2, started_at = $3
		 WHERE id = $1 AND status = $4`,
		promptID, models.PromptProcessing, time.Now().UTC(), models.PromptPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

// Complete records a successful prompt execution.
func (p *PromptService) Complete(ctx context.Context, sessionID, promptID, result string) error {
	return p.finish(ctx, sessionID, promptID, models.PromptCompleted, result, "")
}

// Fail records a failed prompt execution.
func (p *PromptService) Fail(ctx context.Context, sessionID, promptID, errMsg string) error {
	return p.finish(ctx, sessionID, promptID, models.PromptFailed, "", errMsg)
}

func (p *PromptService) finish(ctx context.Context, sessionID, promptID string, status models.PromptStatus, result, errMsg string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE prompts SET status = $2, result = $3, error = $4, completed_at = $5
		 WHERE id = $1`,
		promptID, status, nullString(result), nullString(errMsg), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to finish prompt: %w", err)
	}
	if err := p.recache(ctx, sessionID); err != nil {
		slog.Warn("Failed to recache prompt list", "session_id", sessionID, "error", err)
	}
	return nil
}

// Skip marks a PENDING prompt SKIPPED (operator action). Prompts already
// picked up or finished are refused with ErrConflict.
func (p *PromptService) Skip(ctx context.Context, sessionID, promptID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE prompts SET status = $2, completed_at = $3
		 WHERE id = $1 AND session_id = $4 AND status = $5`,
		promptID, models.PromptSkipped, time.Now().UTC(), sessionID, models.PromptPending,
	)
	if err != nil {
		return fmt.Errorf("failed to skip prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read skip result: %w", err)
	}
	if n == 0 {
		prompt, err := p.Get(ctx, promptID)
		if err != nil {
			return err
		}
		return fmt.Errorf("prompt %s is %s, only PENDING prompts can be skipped: %w",
			promptID, prompt.Status, ErrConflict)
	}
	if err := p.recache(ctx, sessionID); err != nil {
		slog.Warn("Failed to recache prompt list", "session_id", sessionID, "error", err)
	}
	slog.Info("Prompt skipped", "session_id", sessionID, "prompt_id", promptID)
	return nil
}

// Reset returns all of a session's prompts to PENDING with cleared outputs.
// Used by result regeneration.
func (p *PromptService) Reset(ctx context.Context, sessionID string) ([]*models.Prompt, error) {
	_, err := p.db.ExecContext(ctx,
		`UPDATE prompts
		 SET status = $2, result = NULL, error = NULL, started_at = NULL, completed_at = NULL
		 WHERE session_id = $1`,
		sessionID, models.PromptPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset prompts: %w", err)
	}
	if err := p.recache(ctx, sessionID); err != nil {
		slog.Warn("Failed to recache prompt list", "session_id", sessionID, "error", err)
	}
	return p.load(ctx, sessionID)
}

// CompletedInOrder returns COMPLETED prompts of a session ordered by
// execution order. Used for context carry-over and result assembly.
func (p *PromptService) CompletedInOrder(ctx context.Context, sessionID string) ([]*models.Prompt, error) {
	prompts, err := p.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	completed := make([]*models.Prompt, 0, len(prompts))
	for _, prompt := range prompts {
		if prompt.Status == models.PromptCompleted {
			completed = append(completed, prompt)
		}
	}
	return completed, nil
}

func (p *PromptService) recache(ctx context.Context, sessionID string) error {
	prompts, err := p.load(ctx, sessionID)
	if err != nil {
		return err
	}
	return p.cache.SetJSON(ctx, cache.SessionPromptsKey(sessionID), prompts, p.ttl)
}

const promptSelect = `
	SELECT id, session_id, content, priority, target_type, target_file_id,
	       target_lines, target_section, status, execution_order, result,
	       error, created_at, started_at, completed_at
	FROM prompts`

func (p *PromptService) load(ctx context.Context, sessionID string) ([]*models.Prompt, error) {
	rows, err := p.db.QueryContext(ctx,
		promptSelect+` WHERE session_id = $1 ORDER BY execution_order`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	prompts := []*models.Prompt{}
	for rows.Next() {
		prompt, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, prompt)
	}
	return prompts, rows.Err()
}

func scanPrompt(rows *sql.Rows) (*models.Prompt, error) {
	prompt := &models.Prompt{}
	var targetFileID, targetSection, result, errMsg sql.NullString
	var linesJSON []byte
	var startedAt, completedAt sql.NullTime
	err := rows.Scan(&prompt.ID, &prompt.SessionID, &prompt.Content, &prompt.Priority,
		&prompt.TargetType, &targetFileID, &linesJSON, &targetSection,
		&prompt.Status, &prompt.ExecutionOrder, &result, &errMsg,
		&prompt.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan prompt row: %w", err)
	}
	prompt.TargetFileID = targetFileID.String
	prompt.TargetSection = targetSection.String
	prompt.Result = result.String
	prompt.Error = errMsg.String
	if len(linesJSON) > 0 {
		if err := json.Unmarshal(linesJSON, &prompt.TargetLines); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target lines: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		prompt.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		prompt.CompletedAt = &t
	}
	return prompt, nil
}

func marshalNullablePtr[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
