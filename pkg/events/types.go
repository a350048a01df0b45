// Package events delivers processing events to WebSocket clients, using
// PostgreSQL NOTIFY/LISTEN so every instance sees events published by any
// other instance.
//
// Event flow: the engine publishes through Publisher, which persists the
// event (transient progress excepted) and fires pg_notify in one
// transaction. Listener holds a dedicated LISTEN connection and hands
// incoming notifications to the ConnectionManager, which fans them out to
// subscribed WebSocket clients. Persisted events also back the catchup
// protocol, so a client that reconnects can replay what it missed.
package events

// Event types delivered on a session channel.
const (
	// EventProgress reports pipeline stages and chunk counters while a
	// prompt executes. Transient: NOTIFY only, never persisted.
	EventProgress = "progress"

	// EventModelResult carries a finished prompt's output.
	EventModelResult = "model_result"

	// EventClarification announces that the model asked questions the user
	// has to answer before the session can complete.
	EventClarification = "clarification"

	// EventCompleted announces the assembled session result.
	EventCompleted = "completed"

	// EventError reports a failed prompt or session.
	EventError = "error"
)

// Progress stage values (ProgressPayload.Stage).
const (
	StageStarted  = "started"
	StageContext  = "context"
	StageChunk    = "chunk"
	StageCombined = "combined"
)

// SessionChannel returns the NOTIFY channel carrying one session's events.
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is a client → server WebSocket frame.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // e.g. "session:abc-123"
	LastEventID *int64 `json:"last_event_id,omitempty"` // catchup resume position
}
