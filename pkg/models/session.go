// Package models defines the domain entities of the wizard backend:
// sessions, uploaded files, prompts, conversation messages, results and
// queue jobs, together with their status machines.
package models

import "time"

// SessionStatus is the lifecycle state of a wizard session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "ACTIVE"
	SessionProcessing SessionStatus = "PROCESSING"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionFailed     SessionStatus = "FAILED"
	SessionExpired    SessionStatus = "EXPIRED"
)

// sessionTransitions encodes the allowed status moves. COMPLETED and FAILED
// may return to PROCESSING (result regeneration, operator retry); EXPIRED is
// terminal. Any state may expire.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionActive:     {SessionProcessing, SessionFailed, SessionExpired},
	SessionProcessing: {SessionCompleted, SessionFailed, SessionExpired},
	SessionCompleted:  {SessionProcessing, SessionExpired},
	SessionFailed:     {SessionProcessing, SessionExpired},
	SessionExpired:    {},
}

// CanTransitionTo reports whether moving from s to next is legal.
// A same-status update is always allowed (idempotent writes).
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further processing can happen in this state.
func (s SessionStatus) Terminal() bool {
	return s == SessionExpired
}

// Session is the unit of isolation: one user interaction covering uploaded
// files, prompts, conversation and results.
type Session struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId,omitempty"`
	Status      SessionStatus  `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// ExpiredAt reports whether the session's TTL has elapsed at the given instant.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
