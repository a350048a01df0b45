package models

import (
	"fmt"
	"time"
)

// TargetType selects which part of the session's documents a prompt applies to.
type TargetType string

const (
	TargetGlobal       TargetType = "GLOBAL"
	TargetFileSpecific TargetType = "FILE_SPECIFIC"
	TargetLineSpecific TargetType = "LINE_SPECIFIC"
	TargetSection      TargetType = "SECTION_SPECIFIC"
)

// PromptStatus is the processing state of a single prompt.
type PromptStatus string

const (
	PromptPending    PromptStatus = "PENDING"
	PromptProcessing PromptStatus = "PROCESSING"
	PromptCompleted  PromptStatus = "COMPLETED"
	PromptFailed     PromptStatus = "FAILED"
	PromptSkipped    PromptStatus = "SKIPPED"
)

// LineRange is an inclusive 1-indexed line selection.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Prompt is a single user instruction over the session's documents.
// Lower Priority runs earlier; ExecutionOrder breaks ties by submission order.
type Prompt struct {
	ID             string       `json:"id"`
	SessionID      string       `json:"sessionId"`
	Content        string       `json:"content"`
	Priority       int          `json:"priority"`
	TargetType     TargetType   `json:"targetType"`
	TargetFileID   string       `json:"targetFileId,omitempty"`
	TargetLines    *LineRange   `json:"targetLines,omitempty"`
	TargetSection  string       `json:"targetSection,omitempty"`
	Status         PromptStatus `json:"status"`
	ExecutionOrder int          `json:"executionOrder"`
	Result         string       `json:"result,omitempty"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	StartedAt      *time.Time   `json:"startedAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

// ValidateTargeting checks that the prompt's target fields are consistent
// with its target type. Called before any prompt is persisted.
func (p *Prompt) ValidateTargeting() error {
	switch p.TargetType {
	case TargetGlobal:
		return nil
	case TargetFileSpecific:
		if p.TargetFileID == "" {
			return fmt.Errorf("targetFileId is required for %s prompts", TargetFileSpecific)
		}
	case TargetLineSpecific:
		if p.TargetFileID == "" {
			return fmt.Errorf("targetFileId is required for %s prompts", TargetLineSpecific)
		}
		if p.TargetLines == nil {
			return fmt.Errorf("targetLines is required for %s prompts", TargetLineSpecific)
		}
		if p.TargetLines.Start < 1 {
			return fmt.Errorf("targetLines.start must be >= 1, got %d", p.TargetLines.Start)
		}
		if p.TargetLines.End < p.TargetLines.Start {
			return fmt.Errorf("targetLines.end (%d) must be >= targetLines.start (%d)",
				p.TargetLines.End, p.TargetLines.Start)
		}
	case TargetSection:
		if p.TargetSection == "" {
			return fmt.Errorf("targetSection is required for %s prompts", TargetSection)
		}
	default:
		return fmt.Errorf("unknown target type %q", p.TargetType)
	}
	return nil
}

// Finished reports whether the prompt needs no further processing.
func (s PromptStatus) Finished() bool {
	return s == PromptCompleted || s == PromptFailed || s == PromptSkipped
}
