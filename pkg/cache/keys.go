package cache

// Hot-tier key scheme. Every session-scoped key carries the session ID so a
// whole session can be evicted with one multi-key delete.
const (
	// QueueKey is the sorted set holding pending jobs ordered by score.
	QueueKey = "queue:processing"
	// QueueSeqKey is the monotonic counter used as the score tie-breaker.
	QueueSeqKey = "queue:seq"
	// ActiveSessionsKey is the set of session IDs the cleanup sweep scans.
	ActiveSessionsKey = "sessions:active"
)

// SessionKey returns the key holding the session JSON.
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}

// SessionFilesKey returns the key holding the session's file list.
func SessionFilesKey(sessionID string) string {
	return "session:" + sessionID + ":files"
}

// SessionPromptsKey returns the key holding the session's prompt list.
func SessionPromptsKey(sessionID string) string {
	return "session:" + sessionID + ":prompts"
}

// SessionConversationsKey returns the key holding the conversation log cache.
func SessionConversationsKey(sessionID string) string {
	return "session:" + sessionID + ":conversations"
}

// SessionResultKey returns the key holding the latest result version.
func SessionResultKey(sessionID string) string {
	return "session:" + sessionID + ":result"
}

// SessionKeys lists every hot-tier key belonging to a session.
func SessionKeys(sessionID string) []string {
	return []string{
		SessionKey(sessionID),
		SessionFilesKey(sessionID),
		SessionPromptsKey(sessionID),
		SessionConversationsKey(sessionID),
		SessionResultKey(sessionID),
	}
}
