package models

import "time"

// ResultStatus is the confirmation state of an assembled result version.
type ResultStatus string

const (
	ResultDraft               ResultStatus = "DRAFT"
	ResultPendingConfirmation ResultStatus = "PENDING_CONFIRMATION"
	ResultConfirmed           ResultStatus = "CONFIRMED"
	ResultModified            ResultStatus = "MODIFIED"
)

// Result is one assembled output version for a session. Versions are
// monotonically increasing per session; at most one version may be CONFIRMED.
type Result struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Version   int            `json:"version"`
	Content   string         `json:"content"`
	Format    string         `json:"format"`
	Status    ResultStatus   `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
