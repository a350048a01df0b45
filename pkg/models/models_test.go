package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusTransitions(t *testing.T) {
	tests := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{SessionActive, SessionProcessing, true},
		{SessionActive, SessionExpired, true},
		{SessionProcessing, SessionCompleted, true},
		{SessionProcessing, SessionFailed, true},
		{SessionProcessing, SessionExpired, true},
		{SessionCompleted, SessionProcessing, true}, // regenerate
		{SessionCompleted, SessionExpired, true},
		{SessionFailed, SessionProcessing, true}, // retry
		{SessionCompleted, SessionActive, false},
		{SessionExpired, SessionActive, false},
		{SessionExpired, SessionProcessing, false},
		{SessionFailed, SessionCompleted, false},
		{SessionActive, SessionCompleted, false},
		{SessionActive, SessionActive, true}, // same-status no-op
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestSessionExpiredAt(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, s.ExpiredAt(now))
	assert.True(t, s.ExpiredAt(now.Add(2*time.Hour)))

	// Zero ExpiresAt means no TTL
	assert.False(t, (&Session{}).ExpiredAt(now))
}

func TestPromptValidateTargeting(t *testing.T) {
	tests := []struct {
		name    string
		prompt  Prompt
		wantErr bool
	}{
		{"global needs nothing", Prompt{TargetType: TargetGlobal}, false},
		{"file specific requires file id", Prompt{TargetType: TargetFileSpecific}, true},
		{"file specific ok", Prompt{TargetType: TargetFileSpecific, TargetFileID: "f1"}, false},
		{"line specific requires file id", Prompt{TargetType: TargetLineSpecific, TargetLines: &LineRange{Start: 1, End: 2}}, true},
		{"line specific requires range", Prompt{TargetType: TargetLineSpecific, TargetFileID: "f1"}, true},
		{"line start must be positive", Prompt{TargetType: TargetLineSpecific, TargetFileID: "f1", TargetLines: &LineRange{Start: 0, End: 2}}, true},
		{"line end before start", Prompt{TargetType: TargetLineSpecific, TargetFileID: "f1", TargetLines: &LineRange{Start: 5, End: 3}}, true},
		{"single line ok", Prompt{TargetType: TargetLineSpecific, TargetFileID: "f1", TargetLines: &LineRange{Start: 7, End: 7}}, false},
		{"section requires title", Prompt{TargetType: TargetSection}, true},
		{"section ok", Prompt{TargetType: TargetSection, TargetSection: "Úvod"}, false},
		{"unknown type rejected", Prompt{TargetType: "PAGE_SPECIFIC"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prompt.ValidateTargeting()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessageResolved(t *testing.T) {
	assert.True(t, (&ConversationMessage{Role: RoleSystem, Context: map[string]any{"resolved": true}}).Resolved())
	assert.False(t, (&ConversationMessage{Role: RoleSystem, Context: map[string]any{"resolved": false}}).Resolved())
	assert.False(t, (&ConversationMessage{Role: RoleUser, Context: map[string]any{"resolved": true}}).Resolved())
	assert.False(t, (&ConversationMessage{Role: RoleSystem}).Resolved())
}

func TestPromptStatusFinished(t *testing.T) {
	assert.True(t, PromptCompleted.Finished())
	assert.True(t, PromptFailed.Finished())
	assert.True(t, PromptSkipped.Finished())
	assert.False(t, PromptPending.Finished())
	assert.False(t, PromptProcessing.Finished())
}
