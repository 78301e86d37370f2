package ai

import (
	"context"
	"strings"
)

// Candidate is one theme proposal returned by an extraction provider.
type Candidate struct {
	Title      string   `json:"title" jsonschema_description:"Short name for the psychological theme"`
	Summary    string   `json:"summary" jsonschema_description:"Two to three sentence description of the pattern"`
	Quotes     []string `json:"quotes" jsonschema_description:"Up to three short verbatim quotes from the journal"`
	Prominence int      `json:"prominence_score" jsonschema_description:"How strongly the theme shows up, 1-100"`
}

// Extractor analyzes a journal corpus and proposes candidate themes.
// Implementations must return an error rather than a partial result when
// the response envelope is unusable.
type Extractor interface {
	ExtractThemes(ctx context.Context, corpus string) ([]Candidate, error)
	Name() string
}

// extractJSON attempts to extract JSON from a text response that might contain extra text
func extractJSON(text string) string {
	// Find first { and last }
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
