package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// StoredEvent is one persisted event row, used for catchup replay.
type StoredEvent struct {
	ID      int64
	Payload map[string]any
}

// Store reads and prunes the events table.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over the database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CatchupEvents returns up to limit events on a channel with id > sinceID,
// oldest first.
func (s *Store) CatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM events WHERE channel = $1 AND id > $2 ORDER BY id ASC LIMIT $3`,
		channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("catchup query: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var evt StoredEvent
		var raw []byte
		if err := rows.Scan(&evt.ID, &raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(raw, &evt.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", evt.ID, err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes events older than the retention window and returns
// how many rows went away. Called by the cleanup sweeper.
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE created_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return res.RowsAffected()
}
