package models

import "time"

// Job is one queued unit of work: process a single prompt of a session.
// Jobs are stored as JSON members of the Redis priority queue, so the struct
// is the wire format and must stay stable.
type Job struct {
	SessionID  string    `json:"session_id"`
	PromptID   string    `json:"prompt_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ModelInfo is one row of the model registry: a model known to some provider,
// with its availability, tuning and usage statistics.
type ModelInfo struct {
	Name          string     `json:"name"`
	DisplayName   string     `json:"displayName,omitempty"`
	Provider      string     `json:"provider"`
	Size          int64      `json:"size,omitempty"`
	Family        string     `json:"family,omitempty"`
	ParameterSize string     `json:"parameterSize,omitempty"`
	Quantization  string     `json:"quantization,omitempty"`
	Available     bool       `json:"isAvailable"`
	Enabled       bool       `json:"isEnabled"`
	Priority      int        `json:"priority"`
	ContextWindow int        `json:"contextWindow,omitempty"`
	MaxTokens     int        `json:"maxTokens,omitempty"`
	Temperature   float64    `json:"temperature,omitempty"`
	LastChecked   *time.Time `json:"lastChecked,omitempty"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
	UsageCount    int64      `json:"usageCount"`
}
