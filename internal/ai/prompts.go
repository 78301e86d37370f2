package ai

import (
	_ "embed"
	"fmt"
)

// Embedded default prompt
//
//go:embed prompts/themes.txt
var themeInstructions string

// ThemeInstructions returns the extraction instructions sent to the
// model ahead of the corpus.
func ThemeInstructions() string {
	return themeInstructions
}

// BuildThemePrompt assembles the full single-shot prompt for providers
// that take one prompt string instead of separate instructions and input.
func BuildThemePrompt(corpus string) string {
	return fmt.Sprintf("%s\n\nJournal entries (oldest first):\n\n%s", themeInstructions, corpus)
}
