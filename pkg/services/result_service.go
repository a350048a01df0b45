package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cache"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// ResultService stores assembled result versions. Versions only grow; the
// hot tier caches the latest version for the status endpoint.
type ResultService struct {
	db    *sql.DB
	cache *cache.Client
	ttl   time.Duration
}

// NewResultService creates a ResultService.
func NewResultService(db *sql.DB, cache *cache.Client, ttl time.Duration) *ResultService {
	return &ResultService{db: db, cache: cache, ttl: ttl}
}

// Create appends a new result version. The version number is assigned inside
// the transaction as max(existing)+1, so concurrent assemblies cannot collide.
func (r *ResultService) Create(ctx context.Context, sessionID, content, format string, status models.ResultStatus, metadata map[string]any) (*models.Result, error) {
	if format == "" {
		format = "markdown"
	}
	result := &models.Result{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Content:   content,
		Format:    format,
		Status:    status,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	metaJSON, err := marshalNullable(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO results (id, session_id, version, content, format, status, metadata, created_at)
		 SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6, $7
		 FROM results WHERE session_id = $2
		 RETURNING version`,
		result.ID, sessionID, content, format, status, metaJSON, result.CreatedAt,
	).Scan(&result.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to insert result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit result: %w", err)
	}

	if err := r.cache.SetJSON(ctx, cache.SessionResultKey(sessionID), result, r.ttl); err != nil {
		slog.Warn("Failed to cache result", "session_id", sessionID, "error", err)
	}

	slog.Info("Result version created",
		"session_id", sessionID, "version", result.Version, "status", status)
	return result, nil
}

// Latest returns the newest result version, hot tier first.
func (r *ResultService) Latest(ctx context.Context, sessionID string) (*models.Result, error) {
	result := &models.Result{}
	err := r.cache.GetJSON(ctx, cache.SessionResultKey(sessionID), result)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.Warn("Hot-tier result read failed", "session_id", sessionID, "error", err)
	}

	result, err = r.load(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetJSON(ctx, cache.SessionResultKey(sessionID), result, r.ttl); err != nil {
		slog.Warn("Failed to cache result", "session_id", sessionID, "error", err)
	}
	return result, nil
}

// Get returns a specific result version; version 0 means latest.
func (r *ResultService) Get(ctx context.Context, sessionID string, version int) (*models.Result, error) {
	if version == 0 {
		return r.Latest(ctx, sessionID)
	}
	return r.load(ctx, sessionID, version)
}

// Confirm marks a result version CONFIRMED: the one identified by resultID,
// or the latest when resultID is empty. Any previously confirmed version is
// demoted back to DRAFT so at most one confirmation exists.
func (r *ResultService) Confirm(ctx context.Context, sessionID, resultID string) (*models.Result, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if resultID != "" {
		err = tx.QueryRowContext(ctx,
			`SELECT version FROM results WHERE session_id = $1 AND id = $2`,
			sessionID, resultID,
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("result %s for session %s: %w", resultID, sessionID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find result: %w", err)
		}
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM results WHERE session_id = $1`, sessionID,
		).Scan(&version)
		if err != nil {
			return nil, fmt.Errorf("failed to find latest result: %w", err)
		}
		if version == 0 {
			return nil, fmt.Errorf("session %s has no result: %w", sessionID, ErrNotFound)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE results SET status = $2 WHERE session_id = $1 AND status = $3 AND version != $4`,
		sessionID, models.ResultDraft, models.ResultConfirmed, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to demote previous confirmation: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE results SET status = $3 WHERE session_id = $1 AND version = $2`,
		sessionID, version, models.ResultConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	result, err := r.load(ctx, sessionID, version)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetJSON(ctx, cache.SessionResultKey(sessionID), result, r.ttl); err != nil {
		slog.Warn("Failed to cache result", "session_id", sessionID, "error", err)
	}
	slog.Info("Result confirmed", "session_id", sessionID, "version", version)
	return result, nil
}

// ModifyDirect appends a user-edited version with status MODIFIED.
func (r *ResultService) ModifyDirect(ctx context.Context, sessionID, content string) (*models.Result, error) {
	if content == "" {
		return nil, NewValidationError("content", "modified content must not be empty")
	}
	previous, err := r.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return r.Create(ctx, sessionID, content, previous.Format, models.ResultModified,
		map[string]any{"modifiedFrom": previous.Version})
}

func (r *ResultService) load(ctx context.Context, sessionID string, version int) (*models.Result, error) {
	query := `SELECT id, session_id, version, content, format, status, metadata, created_at
	          FROM results WHERE session_id = $1`
	args := []any{sessionID}
	if version > 0 {
		query += ` AND version = $2`
		args = append(args, version)
	} else {
		query += ` ORDER BY version DESC LIMIT 1`
	}

	result := &models.Result{}
	var metaJSON []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&result.ID, &result.SessionID, &result.Version, &result.Content,
		&result.Format, &result.Status, &metaJSON, &result.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &result.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result metadata: %w", err)
		}
	}
	return result, nil
}
