package models

import "time"

// MessageRole is the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
	RoleSystem    MessageRole = "SYSTEM"
)

// MessageType distinguishes ordinary conversation turns from the
// clarification exchange and from result-modification requests.
type MessageType string

const (
	MessageGeneral       MessageType = "GENERAL"
	MessageClarification MessageType = "CLARIFICATION"
	MessageModification  MessageType = "MODIFICATION"
)

// ConversationMessage is one entry of a session's append-only conversation
// log. Seq is a per-session monotonic counter assigned on insert; ordering by
// Seq is the canonical conversation order. ParentID links replies (most
// importantly, answers to clarifications) to the message they respond to.
type ConversationMessage struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Type      MessageType    `json:"type"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Context   map[string]any `json:"context,omitempty"`
	ParentID  string         `json:"parentId,omitempty"`
	Seq       int64          `json:"seq"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Resolved reports whether a SYSTEM message marks its parent clarification as
// answered without a user reply (operator resolution).
func (m *ConversationMessage) Resolved() bool {
	if m.Role != RoleSystem || m.Context == nil {
		return false
	}
	v, ok := m.Context["resolved"].(bool)
	return ok && v
}
