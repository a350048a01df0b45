package engine

import (
	"regexp"
	"strings"
)

// questionMarker is the explicit escape hatch the system prompt offers the
// model: wrap a question in an HTML comment and it becomes a clarification.
var questionMarker = regexp.MustCompile(`<!--\s*QUESTION\?:\s*"([^"]+)"\s*-->`)

// hedges are phrasings that indicate the model was unsure about the
// instructions instead of answering them. Documents are mostly Czech, so
// both languages are covered.
var hedges = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bnot\s+sure\b`),
	regexp.MustCompile(`(?i)\bnot\s+(entirely\s+|quite\s+)?clear\b`),
	regexp.MustCompile(`(?i)\bunclear\b`),
	regexp.MustCompile(`(?i)\bambiguous\b`),
	regexp.MustCompile(`(?i)\bcould\s+be\b`),
	regexp.MustCompile(`(?i)\bmight\s+be\b`),
	regexp.MustCompile(`(?i)\bpossibly\b`),
	regexp.MustCompile(`(?i)\bprobably\b`),
	regexp.MustCompile(`(?i)\bcould you\s+(clarify|specify)\b`),
	regexp.MustCompile(`(?i)\bneed more (information|context|details)\b`),
	regexp.MustCompile(`(?i)\bwhich of\b`),
	// No trailing \b on words ending in accented letters: RE2 word
	// boundaries are ASCII-only and would never match there.
	regexp.MustCompile(`(?i)není\s+(zcela\s+)?jasné`),
	regexp.MustCompile(`(?i)\bnejasn`),
	regexp.MustCompile(`(?i)\bupřesn(it|ěte)\b`),
	regexp.MustCompile(`(?i)\bmožná`),
	regexp.MustCompile(`(?i)\bpravděpodobn`),
	regexp.MustCompile(`(?i)\bkter(ou|ý|é)\s+z\s+(nich|těchto|uvedených)\b`),
	regexp.MustCompile(`\?\?`),
}

// NeedsClarification reports whether an output asks for more input instead
// of (or in addition to) delivering the result.
func NeedsClarification(text string) bool {
	if questionMarker.MatchString(text) {
		return true
	}
	for _, h := range hedges {
		if h.MatchString(text) {
			return true
		}
	}
	return false
}

// minQuestionLen filters out rhetorical one-word questions picked up from
// the output text; only lines strictly longer than this count.
const minQuestionLen = 10

// ExtractQuestions pulls the concrete questions out of a hedging output.
// Explicit markers come first, then question-mark lines, deduplicated
// case-insensitively in order of appearance. An empty slice means the
// output hedged without forming a question; the caller supplies a generic
// one.
func ExtractQuestions(text string) []string {
	var questions []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if len(q) > minQuestionLen && !seen[key] {
			seen[key] = true
			questions = append(questions, q)
		}
	}

	for _, m := range questionMarker.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	stripped := questionMarker.ReplaceAllString(text, "")
	for _, line := range strings.Split(stripped, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*>#0123456789. \t"))
		if strings.HasSuffix(line, "?") {
			add(line)
		}
	}
	return questions
}
