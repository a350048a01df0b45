package engine

import (
	"fmt"
	"strings"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// blockSeparator divides independently produced output blocks (files within
// a prompt, prompts within the session result).
const blockSeparator = "\n\n---\n\n"

func joinBlocks(blocks []string) string {
	return strings.Join(blocks, blockSeparator)
}

// CombineChunks merges the outputs of one file's chunk sequence. A single
// chunk passes through; multiple chunks get part headings so the seams stay
// visible to the user.
func CombineChunks(outputs []string) string {
	if len(outputs) == 1 {
		return outputs[0]
	}
	parts := make([]string, len(outputs))
	for i, out := range outputs {
		parts[i] = fmt.Sprintf("### Část %d\n\n%s", i+1, out)
	}
	return strings.Join(parts, "\n\n")
}

// FileOutput is one file's combined output in a per-file plan.
type FileOutput struct {
	Filename string
	Content  string
}

// CombineFiles merges per-file outputs under their file names. A single
// file passes through without a heading.
func CombineFiles(outputs []FileOutput) string {
	if len(outputs) == 1 {
		return outputs[0].Content
	}
	parts := make([]string, len(outputs))
	for i, out := range outputs {
		parts[i] = "## " + out.Filename + "\n\n" + out.Content
	}
	return joinBlocks(parts)
}

// AssembleResult builds the session result from the completed prompts, in
// execution order.
func AssembleResult(completed []*models.Prompt) string {
	parts := make([]string, 0, len(completed))
	for _, prompt := range completed {
		if prompt.Result != "" {
			parts = append(parts, prompt.Result)
		}
	}
	return joinBlocks(parts)
}
