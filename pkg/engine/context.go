// Package engine executes queued prompts: it resolves the targeted document
// content, plans chunked model calls, combines the outputs, detects
// clarification questions in them and evaluates session completion.
package engine

import (
	"fmt"
	"strings"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

// Target is one file's content slice a prompt applies to.
type Target struct {
	File    *models.File
	Content string
}

// ResolveTargets returns the document content a prompt operates on,
// according to its target type. Targeting fields were validated at submit
// time; errors here mean the documents don't contain what the prompt points
// at (a line range past the end, a section title that matches nothing).
func ResolveTargets(prompt *models.Prompt, files []*models.File) ([]Target, error) {
	switch prompt.TargetType {
	case models.TargetGlobal:
		targets := make([]Target, 0, len(files))
		for _, f := range files {
			targets = append(targets, Target{File: f, Content: f.PlainText})
		}
		if len(targets) == 0 {
			return nil, &services.ValidationError{Field: "files", Message: "session has no files to process"}
		}
		return targets, nil

	case models.TargetFileSpecific:
		f, err := findFile(files, prompt.TargetFileID)
		if err != nil {
			return nil, err
		}
		return []Target{{File: f, Content: f.PlainText}}, nil

	case models.TargetLineSpecific:
		f, err := findFile(files, prompt.TargetFileID)
		if err != nil {
			return nil, err
		}
		content, err := sliceLines(f.PlainText, prompt.TargetLines)
		if err != nil {
			return nil, err
		}
		return []Target{{File: f, Content: content}}, nil

	case models.TargetSection:
		return resolveSection(files, prompt.TargetSection)

	default:
		return nil, fmt.Errorf("unknown target type %q", prompt.TargetType)
	}
}

func findFile(files []*models.File, fileID string) (*models.File, error) {
	for _, f := range files {
		if f.ID == fileID {
			return f, nil
		}
	}
	return nil, fmt.Errorf("file %s: %w", fileID, services.ErrNotFound)
}

// sliceLines cuts an inclusive 1-indexed line range out of the text. The end
// is clamped to the last line; a start past the end is an error.
func sliceLines(text string, lines *models.LineRange) (string, error) {
	all := strings.Split(text, "\n")
	if lines.Start > len(all) {
		return "", &services.ValidationError{
			Field:   "targetLines",
			Message: fmt.Sprintf("start line %d is past the end of the file (%d lines)", lines.Start, len(all)),
		}
	}
	end := min(lines.End, len(all))
	return strings.Join(all[lines.Start-1:end], "\n"), nil
}

// resolveSection returns the matching sections of the first file that has
// any section whose title contains the wanted title, case-insensitively.
// Later files are not searched once a match is found.
func resolveSection(files []*models.File, title string) ([]Target, error) {
	want := strings.ToLower(title)
	for _, f := range files {
		var parts []string
		for _, section := range f.Sections {
			if strings.Contains(strings.ToLower(section.Title), want) {
				parts = append(parts, section.Content)
			}
		}
		if len(parts) > 0 {
			return []Target{{File: f, Content: strings.Join(parts, "\n\n")}}, nil
		}
	}
	return nil, &services.ValidationError{
		Field:   "targetSection",
		Message: fmt.Sprintf("no section matching %q found in any file", title),
	}
}
