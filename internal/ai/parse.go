package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxProminence is the top of the prominence scale. Providers sometimes
// return scores above it; those are clamped rather than dropped.
const MaxProminence = 100

type themeEnvelope struct {
	Themes *[]json.RawMessage `json:"themes"`
}

// ParseCandidates decodes a provider response into candidates. The
// envelope is strict: the response must be a JSON object with a "themes"
// array, otherwise the whole extraction fails. Individual records are
// lenient: malformed or unusable records are dropped and reported in the
// returned count so callers can log them.
func ParseCandidates(raw string) ([]Candidate, int, error) {
	var env themeEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, 0, fmt.Errorf("malformed extraction response: %w", err)
	}
	if env.Themes == nil {
		return nil, 0, fmt.Errorf("extraction response missing themes array")
	}

	var candidates []Candidate
	dropped := 0
	for _, rec := range *env.Themes {
		var c Candidate
		if err := json.Unmarshal(rec, &c); err != nil {
			dropped++
			continue
		}
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" || c.Prominence <= 0 {
			dropped++
			continue
		}
		if c.Prominence > MaxProminence {
			c.Prominence = MaxProminence
		}
		if c.Quotes == nil {
			c.Quotes = []string{}
		}
		candidates = append(candidates, c)
	}
	return candidates, dropped, nil
}
