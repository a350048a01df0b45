package engine

import (
	"fmt"
	"strings"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// systemPrompt instructs the model and opens the explicit clarification
// channel (the QUESTION marker) that clarify.go picks up.
const systemPrompt = `Jsi asistent pro zpracování dokumentů. Plníš pokyn uživatele nad poskytnutým textem a odpovídáš v jazyce dokumentu.

Pokud je zadání nejednoznačné a potřebuješ doplňující informaci, vlož do odpovědi otázku ve tvaru:
<!-- QUESTION?: "tvoje otázka" -->
a pokračuj v práci s nejpravděpodobnějším výkladem.`

type callInput struct {
	Instructions string
	Content      string
	// Previous holds the results of higher-priority prompts for continuity.
	Previous []string
	// PriorFiles holds the outputs already produced for this prompt's
	// earlier files, so sequential per-file calls stay consistent.
	PriorFiles []FileOutput
	// ChunkNote describes the chunk's position when the content is a piece
	// of a larger file.
	ChunkNote string
	// PrevTail is the end of the previous chunk's output, so the model can
	// continue without repeating itself.
	PrevTail string
}

func renderCall(in callInput) string {
	var b strings.Builder
	b.WriteString("# Pokyn\n\n")
	b.WriteString(in.Instructions)

	if len(in.Previous) > 0 {
		b.WriteString("\n\n# Výsledky předchozích pokynů\n")
		for i, prev := range in.Previous {
			fmt.Fprintf(&b, "\n## Pokyn %d\n\n%s\n", i+1, prev)
		}
	}
	if len(in.PriorFiles) > 0 {
		b.WriteString("\n\n# Výsledky předchozích souborů\n")
		for _, prior := range in.PriorFiles {
			fmt.Fprintf(&b, "\n## %s\n\n%s\n", prior.Filename, prior.Content)
		}
	}
	if in.ChunkNote != "" {
		b.WriteString("\n\n" + in.ChunkNote)
	}
	if in.PrevTail != "" {
		b.WriteString("\n\n# Konec výstupu předchozí části\n\n")
		b.WriteString(in.PrevTail)
	}

	b.WriteString("\n\n# Dokument\n\n")
	b.WriteString(in.Content)
	return b.String()
}

func chunkNote(filename string, index, count int) string {
	if count <= 1 {
		return ""
	}
	return fmt.Sprintf("Zpracováváš soubor %s po částech. Toto je část %d z %d; navazuj plynule na předchozí části.",
		filename, index, count)
}

// carriedResults collects the full results of completed prompts with a
// priority strictly higher (numerically lower) than the given one.
func carriedResults(completed []*models.Prompt, priority int) []string {
	var out []string
	for _, prompt := range completed {
		if prompt.Priority >= priority || prompt.Result == "" {
			continue
		}
		out = append(out, prompt.Result)
	}
	return out
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return "…" + s[len(s)-limit:]
}
