package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// notifyLimit keeps NOTIFY payloads under PostgreSQL's 8000-byte cap, with
// headroom for the db_event_id injection.
const notifyLimit = 7900

// Publisher persists session events and broadcasts them via pg_notify.
// Persisted events and the NOTIFY fire in one transaction, so a client can
// never observe a notification whose row does not exist.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher over the database handle.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// Progress broadcasts a transient progress update. Not persisted: a
// reconnecting client gets the authoritative state from the status endpoint.
func (p *Publisher) Progress(ctx context.Context, sessionID string, payload ProgressPayload) error {
	payload.Header = header(EventProgress, sessionID)
	return p.notifyOnly(ctx, SessionChannel(sessionID), payload)
}

// ModelResult persists and broadcasts a finished prompt's output.
func (p *Publisher) ModelResult(ctx context.Context, sessionID string, payload ModelResultPayload) error {
	payload.Header = header(EventModelResult, sessionID)
	return p.persistAndNotify(ctx, sessionID, payload)
}

// Clarification persists and broadcasts pending clarification questions.
func (p *Publisher) Clarification(ctx context.Context, sessionID string, payload ClarificationPayload) error {
	payload.Header = header(EventClarification, sessionID)
	return p.persistAndNotify(ctx, sessionID, payload)
}

// Completed persists and broadcasts the assembled session result.
func (p *Publisher) Completed(ctx context.Context, sessionID string, payload CompletedPayload) error {
	payload.Header = header(EventCompleted, sessionID)
	return p.persistAndNotify(ctx, sessionID, payload)
}

// Error persists and broadcasts a processing failure.
func (p *Publisher) Error(ctx context.Context, sessionID string, payload ErrorPayload) error {
	payload.Header = header(EventError, sessionID)
	return p.persistAndNotify(ctx, sessionID, payload)
}

func (p *Publisher) persistAndNotify(ctx context.Context, sessionID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	channel := SessionChannel(sessionID)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (session_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		sessionID, channel, body, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	wire, err := notifyBody(body, eventID)
	if err != nil {
		return err
	}

	// pg_notify is transactional: the notification fires on COMMIT, together
	// with the INSERT becoming visible.
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, wire); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

func (p *Publisher) notifyOnly(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	wire, err := notifyBody(body, 0)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, wire); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// notifyBody prepares the NOTIFY copy of a payload: injects db_event_id for
// persisted events and replaces oversized payloads with a stub that points
// the client at catchup.
func notifyBody(body []byte, eventID int64) (string, error) {
	if eventID != 0 {
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return "", fmt.Errorf("decode event payload: %w", err)
		}
		m["db_event_id"] = eventID
		enriched, err := json.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("encode NOTIFY payload: %w", err)
		}
		body = enriched
	}
	if len(body) <= notifyLimit {
		return string(body), nil
	}
	return truncatedStub(body, eventID)
}

// truncatedStub keeps only the routing fields. The client fetches the full
// event through catchup using db_event_id.
func truncatedStub(body []byte, eventID int64) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &routing); err != nil {
		return "", fmt.Errorf("extract routing fields: %w", err)
	}
	stub := map[string]any{
		"type":       routing.Type,
		"session_id": routing.SessionID,
		"truncated":  true,
	}
	if eventID != 0 {
		stub["db_event_id"] = eventID
	}
	out, err := json.Marshal(stub)
	if err != nil {
		return "", fmt.Errorf("encode truncated payload: %w", err)
	}
	return string(out), nil
}
