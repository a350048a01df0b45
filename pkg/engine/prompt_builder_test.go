package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderCallMinimal(t *testing.T) {
	rendered := renderCall(callInput{Instructions: "Shrň dokument.", Content: "text"})
	assert.Contains(t, rendered, "# Pokyn\n\nShrň dokument.")
	assert.Contains(t, rendered, "# Dokument\n\ntext")
	assert.NotContains(t, rendered, "předchozích")
}

func TestRenderCallCarriesPreviousResults(t *testing.T) {
	rendered := renderCall(callInput{
		Instructions: "Přelož dokument.",
		Content:      "text",
		Previous:     []string{"shrnutí", "klíčové body"},
	})
	assert.Contains(t, rendered, "# Výsledky předchozích pokynů")
	assert.Contains(t, rendered, "## Pokyn 1\n\nshrnutí")
	assert.Contains(t, rendered, "## Pokyn 2\n\nklíčové body")
}

func TestRenderCallCarriesPriorFiles(t *testing.T) {
	rendered := renderCall(callInput{
		Instructions: "Shrň každý soubor.",
		Content:      "obsah třetího souboru",
		PriorFiles: []FileOutput{
			{Filename: "smlouva.docx", Content: "shrnutí smlouvy"},
			{Filename: "příloha.pdf", Content: "shrnutí přílohy"},
		},
	})
	assert.Contains(t, rendered, "# Výsledky předchozích souborů")
	assert.Contains(t, rendered, "## smlouva.docx\n\nshrnutí smlouvy")
	assert.Contains(t, rendered, "## příloha.pdf\n\nshrnutí přílohy")
	// prior outputs come before the current document content
	assert.Less(t,
		strings.Index(rendered, "shrnutí smlouvy"),
		strings.Index(rendered, "obsah třetího souboru"))
}

func TestRenderCallChunkContinuation(t *testing.T) {
	rendered := renderCall(callInput{
		Instructions: "Shrň dokument.",
		Content:      "druhá část",
		ChunkNote:    chunkNote("smlouva.docx", 2, 3),
		PrevTail:     "konec první části",
	})
	assert.Contains(t, rendered, "část 2 z 3")
	assert.Contains(t, rendered, "# Konec výstupu předchozí části\n\nkonec první části")
}
