package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

func TestCombineChunksSinglePassesThrough(t *testing.T) {
	assert.Equal(t, "výstup", CombineChunks([]string{"výstup"}))
}

func TestCombineChunksAddsPartHeadings(t *testing.T) {
	combined := CombineChunks([]string{"první", "druhý"})
	assert.Equal(t, "### Část 1\n\nprvní\n\n### Část 2\n\ndruhý", combined)
}

func TestCombineFilesSinglePassesThrough(t *testing.T) {
	assert.Equal(t, "obsah", CombineFiles([]FileOutput{{Filename: "a.docx", Content: "obsah"}}))
}

func TestCombineFilesAddsFileHeadings(t *testing.T) {
	combined := CombineFiles([]FileOutput{
		{Filename: "a.docx", Content: "první"},
		{Filename: "b.pdf", Content: "druhý"},
	})
	assert.Equal(t, "## a.docx\n\nprvní\n\n---\n\n## b.pdf\n\ndruhý", combined)
}

func TestAssembleResultJoinsInOrder(t *testing.T) {
	result := AssembleResult([]*models.Prompt{
		{Result: "shrnutí"},
		{Result: ""},
		{Result: "překlad"},
	})
	assert.Equal(t, "shrnutí\n\n---\n\npřeklad", result, "empty results are skipped")
}

func TestCarriedResultsFiltersByPriority(t *testing.T) {
	long := strings.Repeat("a", 10_000)
	completed := []*models.Prompt{
		{Priority: 1, Result: long},
		{Priority: 2, Result: "shrnutí"},
		{Priority: 5, Result: "stejná priorita"},
		{Priority: 7, Result: "nižší priorita"},
		{Priority: 3, Result: ""},
	}
	carried := carriedResults(completed, 5)
	assert.Equal(t, []string{long, "shrnutí"}, carried,
		"full results of strictly higher-priority prompts, untruncated")
}

func TestChunkNote(t *testing.T) {
	assert.Empty(t, chunkNote("a.docx", 1, 1))
	assert.Contains(t, chunkNote("a.docx", 2, 3), "část 2 z 3")
}
