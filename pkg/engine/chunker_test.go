package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

func testChunkingConfig() config.ChunkingConfig {
	return config.ChunkingConfig{
		SafeFraction:           0.8,
		PerFileContentFraction: 0.6,
		OverlapChars:           500,
		FallbackWindowChars:    100000,
	}
}

func target(id, name, content string) Target {
	return Target{File: &models.File{ID: id, OriginalName: name}, Content: content}
}

func TestBuildPlanSingleCallWhenSmall(t *testing.T) {
	targets := []Target{
		target("f-1", "a.docx", "krátký text"),
		target("f-2", "b.docx", "další text"),
	}
	plan := BuildPlan(targets, "Shrň dokumenty.", 8000, testChunkingConfig())

	assert.True(t, plan.Single)
	assert.Equal(t, 1, plan.Calls())
	assert.Contains(t, plan.Combined, "## a.docx")
	assert.Contains(t, plan.Combined, "## b.docx")
}

func TestBuildPlanSingleTargetPassesThrough(t *testing.T) {
	plan := BuildPlan([]Target{target("f-1", "a.docx", "text")}, "pokyn", 8000, testChunkingConfig())
	require.True(t, plan.Single)
	assert.Equal(t, "text", plan.Combined, "a lone file gets no heading")
}

func TestBuildPlanSplitsPerFile(t *testing.T) {
	// 8000-token window, safe budget 6400 tokens = 25600 chars. Two files of
	// 15000 chars exceed it together but each fits the per-file budget
	// (0.6 * 8000 * 4 = 19200 chars).
	big := strings.Repeat("a", 15000)
	targets := []Target{target("f-1", "a.docx", big), target("f-2", "b.docx", big)}
	plan := BuildPlan(targets, "pokyn", 8000, testChunkingConfig())

	require.False(t, plan.Single)
	require.Len(t, plan.Files, 2)
	assert.Equal(t, 2, plan.Calls())
	assert.Len(t, plan.Files[0].Chunks, 1)
}

func TestBuildPlanChunksOversizedFile(t *testing.T) {
	cfg := testChunkingConfig()
	// Per-file budget: 0.6 * 1000 * 4 = 2400 chars. A 5000-char file needs
	// three chunks with 500-char overlaps (step 1900).
	big := strings.Repeat("a", 5000)
	plan := BuildPlan([]Target{target("f-1", "a.docx", big)}, "pokyn", 1000, cfg)

	require.False(t, plan.Single)
	chunks := plan.Files[0].Chunks
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Index)
	assert.Equal(t, 3, chunks[0].Count)
	assert.Len(t, chunks[0].Content, 2400)
	assert.Len(t, chunks[1].Content, 2400)
	assert.Len(t, chunks[2].Content, 5000-2*1900)
}

func TestBuildPlanUnknownWindowUsesFallback(t *testing.T) {
	cfg := testChunkingConfig()
	// Fallback window: 100000/4 = 25000 tokens, safe budget 20000 tokens =
	// 80000 chars. 50000 chars fit in one call.
	content := strings.Repeat("a", 50000)
	plan := BuildPlan([]Target{target("f-1", "a.docx", content)}, "pokyn", 0, cfg)
	assert.True(t, plan.Single)
}

func TestSplitChunksAlwaysAdvances(t *testing.T) {
	// Overlap >= size would make the step non-positive; the splitter must
	// still terminate and cover the whole text.
	chunks := splitChunks(strings.Repeat("x", 100), 10, 50)
	require.Len(t, chunks, 10)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	assert.Equal(t, 100, total)
}

func TestSplitChunksOverlapCarriesTail(t *testing.T) {
	text := "abcdefghij"
	chunks := splitChunks(text, 6, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, "abcdef", chunks[0])
	assert.Equal(t, "efghij", chunks[1], "second chunk re-reads the overlap")
}
