package engine

import (
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

// Chunk is one model call's worth of document content.
type Chunk struct {
	Index   int // 1-based
	Count   int
	Content string
}

// FilePlan is the call sequence for one file.
type FilePlan struct {
	FileID   string
	Filename string
	Chunks   []Chunk
}

// Plan is the call layout for one prompt execution. Either everything fits
// in a single call (Combined holds the whole input) or the work is split
// per file, possibly with multiple chunks per file.
type Plan struct {
	Single   bool
	Combined string
	Files    []FilePlan
}

// Calls returns the total number of model calls the plan will make.
func (p Plan) Calls() int {
	if p.Single {
		return 1
	}
	n := 0
	for _, f := range p.Files {
		n += len(f.Chunks)
	}
	return n
}

// BuildPlan decides how to split the targeted content across model calls.
// When the instructions plus all content fit the safe fraction of the
// model's window, one call covers everything. Otherwise each file gets its
// own call sequence, split into overlapping chunks where a single file
// exceeds the per-file budget. An unknown window falls back to a
// conservative character budget.
func BuildPlan(targets []Target, instructions string, windowTokens int, cfg config.ChunkingConfig) Plan {
	if windowTokens <= 0 {
		windowTokens = cfg.FallbackWindowChars / 4
	}
	safeTokens := int(float64(windowTokens) * cfg.SafeFraction)

	total := services.EstimateTokens(instructions)
	for _, t := range targets {
		total += services.EstimateTokens(t.Content)
	}
	if total <= safeTokens {
		return Plan{Single: true, Combined: combineTargets(targets)}
	}

	maxChunkChars := int(float64(windowTokens)*cfg.PerFileContentFraction) * 4
	files := make([]FilePlan, 0, len(targets))
	for _, t := range targets {
		pieces := splitChunks(t.Content, maxChunkChars, cfg.OverlapChars)
		chunks := make([]Chunk, len(pieces))
		for i, piece := range pieces {
			chunks[i] = Chunk{Index: i + 1, Count: len(pieces), Content: piece}
		}
		files = append(files, FilePlan{
			FileID:   t.File.ID,
			Filename: t.File.OriginalName,
			Chunks:   chunks,
		})
	}
	return Plan{Files: files}
}

// combineTargets lays multiple files out under their names; a single file
// passes through untouched.
func combineTargets(targets []Target) string {
	if len(targets) == 1 {
		return targets[0].Content
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = "## " + t.File.OriginalName + "\n\n" + t.Content
	}
	return joinBlocks(parts)
}

// splitChunks cuts text into windows of at most size characters, each
// starting overlap characters before the previous window ended. The step is
// forced positive so a pathological overlap cannot stall the split.
func splitChunks(text string, size, overlap int) []string {
	if size < 1 {
		size = 1
	}
	if len(text) <= size {
		return []string{text}
	}
	step := size - overlap
	if step < 1 {
		step = size
	}

	var out []string
	for start := 0; ; start += step {
		end := min(start+size, len(text))
		out = append(out, text[start:end])
		if end == len(text) {
			return out
		}
	}
}
