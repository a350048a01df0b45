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

// ConversationService maintains each session's append-only conversation log.
// Messages are never updated or deleted; clarification resolution is itself
// an appended message linked via parent_id.
type ConversationService struct {
	db    *sql.DB
	cache *cache.Client
	ttl   time.Duration
}

// NewConversationService creates a ConversationService. ttl is the
// conversation cache lifetime (longer than the session TTL).
func NewConversationService(db *sql.DB, cache *cache.Client, ttl time.Duration) *ConversationService {
	return &ConversationService{db: db, cache: cache, ttl: ttl}
}

// Append adds a message to the log. Seq is assigned by the database, so
// concurrent appends never collide and ordering is total per session.
func (c *ConversationService) Append(ctx context.Context, msg *models.ConversationMessage) (*models.ConversationMessage, error) {
	if msg.Content == "" {
		return nil, NewValidationError("content", "message content must not be empty")
	}
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()
	if msg.Type == "" {
		msg.Type = models.MessageGeneral
	}

	ctxJSON, err := marshalNullable(msg.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message context: %w", err)
	}

	err = c.db.QueryRowContext(ctx,
		`INSERT INTO conversation_messages (id, session_id, type, role, content, context, parent_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING seq`,
		msg.ID, msg.SessionID, msg.Type, msg.Role, msg.Content,
		ctxJSON, nullString(msg.ParentID), msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := c.recache(ctx, msg.SessionID); err != nil {
		slog.Warn("Failed to recache conversation", "session_id", msg.SessionID, "error", err)
	}
	return msg, nil
}

// List returns the conversation in seq order. limit > 0 returns only the
// most recent limit messages (still ascending).
func (c *ConversationService) List(ctx context.Context, sessionID string, limit int) ([]*models.ConversationMessage, error) {
	messages, err := c.cached(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// PendingClarifications returns clarification messages that have neither a
// USER reply nor a SYSTEM resolution linked to them.
func (c *ConversationService) PendingClarifications(ctx context.Context, sessionID string) ([]*models.ConversationMessage, error) {
	messages, err := c.cached(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return FilterPendingClarifications(messages), nil
}

// FilterPendingClarifications picks the unanswered clarification questions
// out of a conversation, preserving order. Only ASSISTANT clarifications are
// questions; USER replies and SYSTEM resolutions share the CLARIFICATION
// type. A question is answered by any USER child or a SYSTEM child carrying
// {"resolved": true}.
func FilterPendingClarifications(messages []*models.ConversationMessage) []*models.ConversationMessage {
	answered := make(map[string]bool)
	for _, msg := range messages {
		if msg.ParentID == "" {
			continue
		}
		if msg.Role == models.RoleUser || msg.Resolved() {
			answered[msg.ParentID] = true
		}
	}

	pending := []*models.ConversationMessage{}
	for _, msg := range messages {
		if msg.Type == models.MessageClarification && msg.Role == models.RoleAssistant && !answered[msg.ID] {
			pending = append(pending, msg)
		}
	}
	return pending
}

// Respond appends a USER answer to a pending clarification.
func (c *ConversationService) Respond(ctx context.Context, sessionID, clarificationID, content string) (*models.ConversationMessage, error) {
	messages, err := c.cached(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var clarification *models.ConversationMessage
	for _, msg := range messages {
		if msg.ID == clarificationID {
			clarification = msg
			break
		}
	}
	if clarification == nil {
		return nil, fmt.Errorf("clarification %s: %w", clarificationID, ErrNotFound)
	}
	if clarification.Type != models.MessageClarification {
		return nil, NewValidationError("clarificationId",
			"message %s is not a clarification", clarificationID)
	}

	return c.Append(ctx, &models.ConversationMessage{
		SessionID: sessionID,
		Type:      models.MessageClarification,
		Role:      models.RoleUser,
		Content:   content,
		ParentID:  clarificationID,
	})
}

// ResolveAll marks every pending clarification resolved with a SYSTEM note.
// Operator action for sessions stuck on questions nobody will answer.
func (c *ConversationService) ResolveAll(ctx context.Context, sessionID, note string) (int, error) {
	pending, err := c.PendingClarifications(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if note == "" {
		note = "Clarification resolved without an answer."
	}
	for _, clarification := range pending {
		_, err := c.Append(ctx, &models.ConversationMessage{
			SessionID: sessionID,
			Type:      models.MessageClarification,
			Role:      models.RoleSystem,
			Content:   note,
			Context:   map[string]any{"resolved": true},
			ParentID:  clarification.ID,
		})
		if err != nil {
			return 0, err
		}
	}
	if len(pending) > 0 {
		slog.Info("Clarifications resolved", "session_id", sessionID, "count", len(pending))
	}
	return len(pending), nil
}

func (c *ConversationService) cached(ctx context.Context, sessionID string) ([]*models.ConversationMessage, error) {
	var messages []*models.ConversationMessage
	err := c.cache.GetJSON(ctx, cache.SessionConversationsKey(sessionID), &messages)
	if err == nil {
		return messages, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.Warn("Hot-tier conversation read failed", "session_id", sessionID, "error", err)
	}

	messages, err = c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, cache.SessionConversationsKey(sessionID), messages, c.ttl); err != nil {
		slog.Warn("Failed to cache conversation", "session_id", sessionID, "error", err)
	}
	return messages, nil
}

func (c *ConversationService) recache(ctx context.Context, sessionID string) error {
	messages, err := c.load(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.cache.SetJSON(ctx, cache.SessionConversationsKey(sessionID), messages, c.ttl)
}

func (c *ConversationService) load(ctx context.Context, sessionID string) ([]*models.ConversationMessage, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, session_id, type, role, content, context, parent_id, seq, created_at
		 FROM conversation_messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*models.ConversationMessage{}
	for rows.Next() {
		msg := &models.ConversationMessage{}
		var ctxJSON []byte
		var parentID sql.NullString
		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Type, &msg.Role, &msg.Content,
			&ctxJSON, &parentID, &msg.Seq, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.ParentID = parentID.String
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &msg.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message context: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
