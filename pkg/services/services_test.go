package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

func TestOrderBatch(t *testing.T) {
	prompts := []*models.Prompt{
		{Content: "c", Priority: 5},
		{Content: "a", Priority: 1},
		{Content: "b", Priority: 5},
		{Content: "d", Priority: 2},
	}
	orderBatch(prompts, 3)

	// Sorted by priority, ties keep submission order, order continues at base
	assert.Equal(t, "a", prompts[0].Content)
	assert.Equal(t, "d", prompts[1].Content)
	assert.Equal(t, "c", prompts[2].Content)
	assert.Equal(t, "b", prompts[3].Content)
	for i, p := range prompts {
		assert.Equal(t, 3+i, p.ExecutionOrder)
	}
}

func TestOrderBatchFirstBatchIsOneBased(t *testing.T) {
	prompts := []*models.Prompt{
		{Content: "b", Priority: 2},
		{Content: "a", Priority: 1},
	}
	// base for an empty session is COALESCE(MAX(execution_order), 0) + 1
	orderBatch(prompts, 1)

	assert.Equal(t, 1, prompts[0].ExecutionOrder)
	assert.Equal(t, "a", prompts[0].Content)
	assert.Equal(t, 2, prompts[1].ExecutionOrder)
}

func TestFilterPendingClarifications(t *testing.T) {
	clar := func(id string) *models.ConversationMessage {
		return &models.ConversationMessage{
			ID: id, Type: models.MessageClarification, Role: models.RoleAssistant,
		}
	}

	messages := []*models.ConversationMessage{
		clar("c1"),
		clar("c2"),
		clar("c3"),
		{ID: "r1", Type: models.MessageClarification, Role: models.RoleUser, ParentID: "c1"},
		{ID: "r2", Type: models.MessageClarification, Role: models.RoleSystem, ParentID: "c2", Context: map[string]any{"resolved": true}},
		{ID: "r3", Type: models.MessageGeneral, Role: models.RoleAssistant, ParentID: "c3"}, // assistant reply does not resolve
		{ID: "m1", Type: models.MessageGeneral, Role: models.RoleUser},                      // ordinary message, no parent
	}

	pending := FilterPendingClarifications(messages)
	assert.Len(t, pending, 1)
	assert.Equal(t, "c3", pending[0].ID)
}

func TestFilterPendingClarificationsIgnoresUserReplies(t *testing.T) {
	// A USER answer shares the CLARIFICATION type but is never itself a
	// pending question.
	messages := []*models.ConversationMessage{
		{ID: "c1", Type: models.MessageClarification, Role: models.RoleAssistant},
		{ID: "r1", Type: models.MessageClarification, Role: models.RoleUser, ParentID: "c1"},
	}
	assert.Empty(t, FilterPendingClarifications(messages))
}

func TestFilterPendingClarificationsUnresolvedSystemNote(t *testing.T) {
	messages := []*models.ConversationMessage{
		{ID: "c1", Type: models.MessageClarification, Role: models.RoleAssistant},
		{ID: "r1", Role: models.RoleSystem, ParentID: "c1", Context: map[string]any{"resolved": false}},
	}
	pending := FilterPendingClarifications(messages)
	assert.Len(t, pending, 1)
}

func TestDerivePriority(t *testing.T) {
	preferred := []string{"llama3.1:8b", "mistral"}

	assert.Equal(t, 1, DerivePriority("llama3.1:8b", preferred))
	assert.Equal(t, 2, DerivePriority("mistral:7b-instruct", preferred))
	assert.Equal(t, 100, DerivePriority("qwen2.5:14b", preferred))
	assert.Equal(t, 200, DerivePriority("llama3.1:70b", preferred))
	assert.Equal(t, 200, DerivePriority("qwen2.5:72b", preferred))
	assert.Equal(t, 200, DerivePriority("llama-405b-instruct", preferred))
	assert.Equal(t, 100, DerivePriority("gpt-4o-mini", preferred))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25000, EstimateTokens(string(make([]byte, 100000))))
}
