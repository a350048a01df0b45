package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsClarificationMarker(t *testing.T) {
	out := `Shrnutí dokumentu.

<!-- QUESTION?: "Má se shrnutí týkat i příloh?" -->`
	assert.True(t, NeedsClarification(out))
}

func TestNeedsClarificationHedges(t *testing.T) {
	for _, out := range []string{
		"Není jasné, kterou verzi smlouvy máte na mysli.",
		"Zadání je nejasné, prosím upřesněte rozsah.",
		"It is not entirely clear which section you mean.",
		"The scope is unclear from the instructions.",
		"I'm not sure which value applies here.",
		"The requirement is ambiguous.",
		"The deadline could be March or April.",
		"This might be referring to the second table.",
		"Possibly the annex is meant.",
		"The total is probably 150000.",
		"Možná se jedná o druhou přílohu.",
		"Pravděpodobně jde o verzi z května.",
		"Which of the two attachments should be summarized?",
		"Máte na mysli kapitolu 2 nebo 3?? Pokračuji s kapitolou 2.",
	} {
		assert.True(t, NeedsClarification(out), out)
	}
}

func TestNeedsClarificationCleanOutput(t *testing.T) {
	for _, out := range []string{
		"Dokument obsahuje tři kapitoly. Hlavním tématem je splatnost faktur.",
		"Shrnutí: smlouva upravuje dodávky zboží? Ne, služeb.",
	} {
		assert.False(t, NeedsClarification(out), out)
	}
}

func TestExtractQuestionsMarkersFirst(t *testing.T) {
	out := `Text výstupu.

<!-- QUESTION?: "Má se shrnutí týkat i příloh?" -->

Kterou kapitolu mám zpracovat jako hlavní?`
	questions := ExtractQuestions(out)
	require.Len(t, questions, 2)
	assert.Equal(t, "Má se shrnutí týkat i příloh?", questions[0])
	assert.Equal(t, "Kterou kapitolu mám zpracovat jako hlavní?", questions[1])
}

func TestExtractQuestionsFromList(t *testing.T) {
	out := `Potřebuji upřesnit:
- Kterou verzi dokumentu mám použít?
- Má být výstup v bodech, nebo souvislý text?`
	questions := ExtractQuestions(out)
	require.Len(t, questions, 2)
	assert.Equal(t, "Kterou verzi dokumentu mám použít?", questions[0])
}

func TestExtractQuestionsDeduplicates(t *testing.T) {
	out := `<!-- QUESTION?: "Kterou verzi mám použít?" -->
Kterou verzi mám použít?
KTEROU VERZI MÁM POUŽÍT?`
	questions := ExtractQuestions(out)
	assert.Len(t, questions, 1)
}

func TestExtractQuestionsIgnoresShortLines(t *testing.T) {
	assert.Empty(t, ExtractQuestions("Ano?"))
	// exactly ten characters is still too short
	assert.Empty(t, ExtractQuestions("Kdo to je?"))
	assert.Len(t, ExtractQuestions("Kdo to asi je?"), 1)
}
