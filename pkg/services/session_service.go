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

// SessionService manages session lifecycle over both tiers. The durable row
// is authoritative; the hot-tier JSON copy expires together with the
// session. Reads never move the expiry — only Extend does.
type SessionService struct {
	db    *sql.DB
	cache *cache.Client
	ttl   time.Duration
}

// NewSessionService creates a SessionService with the given session TTL.
func NewSessionService(db *sql.DB, cache *cache.Client, ttl time.Duration) *SessionService {
	return &SessionService{db: db, cache: cache, ttl: ttl}
}

// Create starts a new ACTIVE session.
func (s *SessionService) Create(ctx context.Context, userID string, metadata map[string]any) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    models.SessionActive,
		Metadata:  metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	metaJSON, err := marshalNullable(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, status, metadata, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, nullString(session.UserID), session.Status, metaJSON,
		session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := s.cacheSession(ctx, session); err != nil {
		slog.Warn("Failed to cache new session", "session_id", session.ID, "error", err)
	}
	if err := s.cache.SAdd(ctx, cache.ActiveSessionsKey, session.ID); err != nil {
		slog.Warn("Failed to track session in active set", "session_id", session.ID, "error", err)
	}

	slog.Info("Session created", "session_id", session.ID, "expires_at", session.ExpiresAt)
	return session, nil
}

// Get loads a session, hot tier first. Expired sessions (by status or by
// clock) return ErrSessionExpired. Reading does not move the expiry; a
// database fallback re-primes the hot tier for the time the session has
// left.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	err := s.cache.GetJSON(ctx, cache.SessionKey(sessionID), session)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.Warn("Hot-tier session read failed, falling back to database",
				"session_id", sessionID, "error", err)
		}
		session, err = s.loadSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	if session.Status == models.SessionExpired {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}
	if session.ExpiredAt(time.Now().UTC()) {
		if err := s.Expire(ctx, sessionID); err != nil {
			slog.Warn("Failed to expire overdue session", "session_id", sessionID, "error", err)
		}
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}

	if err := s.cacheSession(ctx, session); err != nil {
		slog.Warn("Failed to re-prime hot-tier session", "session_id", sessionID, "error", err)
	}
	return session, nil
}

// Extend pushes the session expiry out by d from its current expires_at:
// durable row, hot-tier copy and the TTL on every hot-tier key of the
// session.
func (s *SessionService) Extend(ctx context.Context, sessionID string, d time.Duration) (*models.Session, error) {
	session, err := s.Peek(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.ExpiresAt = session.ExpiresAt.Add(d)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = $2 WHERE id = $1`,
		sessionID, session.ExpiresAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update expires_at: %w", err)
	}
	if err := s.cacheSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.cache.Expire(ctx, time.Until(session.ExpiresAt), cache.SessionKeys(sessionID)...); err != nil {
		return nil, err
	}
	slog.Info("Session extended", "session_id", sessionID, "expires_at", session.ExpiresAt)
	return session, nil
}

// UpdateStatus moves the session through its lifecycle. Illegal transitions
// (e.g. COMPLETED back to ACTIVE) are refused with ErrInvalidTransition.
func (s *SessionService) UpdateStatus(ctx context.Context, sessionID string, next models.SessionStatus) (*models.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current models.SessionStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session status: %w", err)
	}

	if !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("session %s: %s -> %s: %w",
			sessionID, current, next, ErrInvalidTransition)
	}

	var completedAt *time.Time
	if next == models.SessionCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET status = $2, completed_at = COALESCE($3, completed_at) WHERE id = $1`,
		sessionID, next, completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.cacheSession(ctx, session); err != nil {
		slog.Warn("Failed to recache session after status update",
			"session_id", sessionID, "error", err)
	}

	slog.Info("Session status updated", "session_id", sessionID, "from", current, "to", next)
	return session, nil
}

// Expire marks the session EXPIRED, evicts its hot-tier keys and removes it
// from the active set. Idempotent.
func (s *SessionService) Expire(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = $2 WHERE id = $1 AND status != $2`,
		sessionID, models.SessionExpired,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session expired: %w", err)
	}
	if err := s.cache.Delete(ctx, cache.SessionKeys(sessionID)...); err != nil {
		return err
	}
	if err := s.cache.SRem(ctx, cache.ActiveSessionsKey, sessionID); err != nil {
		return err
	}
	slog.Info("Session expired", "session_id", sessionID)
	return nil
}

// ActiveIDs returns the session IDs tracked in the hot-tier active set.
func (s *SessionService) ActiveIDs(ctx context.Context) ([]string, error) {
	return s.cache.SMembers(ctx, cache.ActiveSessionsKey)
}

// OverdueIDs returns sessions whose expiry has passed but whose status was
// never flipped to EXPIRED. Used by the cleanup sweep.
func (s *SessionService) OverdueIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE expires_at < $1 AND status != $2`,
		time.Now().UTC(), models.SessionExpired,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Peek loads the session without expiry side effects or TTL refresh.
// Used by the scheduler's cancellation check and the cleanup sweep.
func (s *SessionService) Peek(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	if err := s.cache.GetJSON(ctx, cache.SessionKey(sessionID), session); err == nil {
		return session, nil
	}
	return s.loadSession(ctx, sessionID)
}

// cacheSession writes the hot-tier copy with the session's remaining
// lifetime, so recaching never stretches the expiry.
func (s *SessionService) cacheSession(ctx context.Context, session *models.Session) error {
	return s.cache.SetJSON(ctx, cache.SessionKey(session.ID), session, time.Until(session.ExpiresAt))
}

func (s *SessionService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, metadata, created_at, expires_at, completed_at
		 FROM sessions WHERE id = $1`, sessionID)

	session := &models.Session{}
	var userID sql.NullString
	var metaJSON []byte
	var completedAt sql.NullTime
	err := row.Scan(&session.ID, &userID, &session.Status, &metaJSON,
		&session.CreatedAt, &session.ExpiresAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session.UserID = userID.String
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session metadata: %w", err)
		}
	}
	return session, nil
}

// marshalNullable marshals v to JSON, mapping empty values to SQL NULL.
func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
