package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

func TestStatusCountsAndProgress(t *testing.T) {
	counts := countPrompts([]*models.Prompt{
		{Status: models.PromptCompleted},
		{Status: models.PromptCompleted},
		{Status: models.PromptProcessing},
		{Status: models.PromptPending},
		{Status: models.PromptFailed},
		{Status: models.PromptSkipped},
	})
	assert.Equal(t, PromptCounts{
		Total:      6,
		Completed:  2,
		Processing: 1,
		Pending:    1,
		Failed:     1,
		Skipped:    1,
	}, counts)
	assert.InDelta(t, 100.0*2/6, progressOf(counts), 0.001)
}

func TestProgressOfEmptySession(t *testing.T) {
	assert.Zero(t, progressOf(countPrompts(nil)))
}
