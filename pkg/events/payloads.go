package events

import "time"

// Header is embedded in every payload. Publisher fills it in, so callers
// only set the event-specific fields.
type Header struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	// DBEventID is injected into the NOTIFY copy of persisted events so
	// clients can track their catchup position. Absent on transient events.
	DBEventID int64 `json:"db_event_id,omitempty"`
}

func header(eventType, sessionID string) Header {
	return Header{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ProgressPayload reports where a prompt execution currently is.
// Chunk/ChunkCount are only set while Stage is "chunk".
type ProgressPayload struct {
	Header
	PromptID   string `json:"prompt_id"`
	Stage      string `json:"stage"`
	Filename   string `json:"filename,omitempty"`
	Chunk      int    `json:"chunk,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

// ModelResultPayload carries a completed prompt's combined output.
type ModelResultPayload struct {
	Header
	PromptID string `json:"prompt_id"`
	Model    string `json:"model"`
	Content  string `json:"content"`
}

// ClarificationPayload announces pending clarification questions.
type ClarificationPayload struct {
	Header
	PromptID   string   `json:"prompt_id"`
	MessageIDs []string `json:"message_ids"`
	Questions  []string `json:"questions"`
}

// CompletedPayload announces the assembled session result.
type CompletedPayload struct {
	Header
	ResultID string `json:"result_id"`
	Version  int    `json:"version"`
}

// ErrorPayload reports a processing failure.
type ErrorPayload struct {
	Header
	PromptID string `json:"prompt_id,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}
