package undercurrent

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxThemes is the cap on retained insight themes per user. The retained
// set never exceeds this size, before or after a reconciliation run.
const MaxThemes = 10

// Reconcile merges freshly extracted candidates into the retained theme
// set. It is a pure function: inputs are never mutated, no I/O happens,
// and the outcome is deterministic for a given input.
//
// Candidates are processed in descending prominence order (stable, so
// ties keep the extraction service's ordering). For each candidate:
//
//   - a case-insensitive exact title match refreshes the existing theme
//     (summary, quotes, prominence, lastUpdated) under its original id;
//   - no match with room in the set creates a new theme;
//   - no match with a full set evicts the weakest theme not touched this
//     run, but only if the candidate's prominence is strictly greater.
//     The eviction reuses the victim's persisted id and createdAt (a
//     replace-in-place) and still counts as Created. At equal lowest
//     prominence the youngest theme is evicted; the oldest survives.
//
// Themes updated or created during a run are exempt from eviction for
// the remainder of that run. Candidates with an empty title or a
// non-positive prominence are extraction noise and dropped silently.
func Reconcile(existing []Theme, candidates []Candidate, now time.Time) ReconcileResult {
	cands := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Title) == "" || c.Prominence <= 0 {
			continue
		}
		cands = append(cands, c)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Prominence > cands[j].Prominence
	})

	themes := make([]Theme, len(existing))
	copy(themes, existing)

	byTitle := make(map[string]int, len(themes))
	for i, t := range themes {
		byTitle[strings.ToLower(t.Title)] = i
	}

	touched := make(map[int]bool, len(cands))
	var updatedIdx, createdIdx []int
	var result ReconcileResult

	for _, c := range cands {
		key := strings.ToLower(c.Title)

		if i, ok := byTitle[key]; ok {
			themes[i].Summary = c.Summary
			themes[i].Quotes = append([]string(nil), c.Quotes...)
			themes[i].Prominence = c.Prominence
			themes[i].LastUpdated = now
			// An index already created this run stays in the created
			// list; don't double-report it as updated.
			if !touched[i] && i < len(existing) {
				updatedIdx = append(updatedIdx, i)
			}
			touched[i] = true
			continue
		}

		if len(themes) < MaxThemes {
			t := Theme{
				ID:          uuid.NewString(),
				Title:       c.Title,
				Summary:     c.Summary,
				Quotes:      append([]string(nil), c.Quotes...),
				Prominence:  c.Prominence,
				CreatedAt:   now,
				LastUpdated: now,
			}
			themes = append(themes, t)
			i := len(themes) - 1
			byTitle[key] = i
			touched[i] = true
			createdIdx = append(createdIdx, i)
			continue
		}

		victim := -1
		for i := range themes {
			if touched[i] {
				continue
			}
			if victim == -1 {
				victim = i
				continue
			}
			if themes[i].Prominence < themes[victim].Prominence {
				victim = i
			} else if themes[i].Prominence == themes[victim].Prominence &&
				themes[i].CreatedAt.After(themes[victim].CreatedAt) {
				victim = i
			}
		}

		if victim == -1 || c.Prominence <= themes[victim].Prominence {
			result.Skipped = append(result.Skipped, c)
			continue
		}

		// Replace in place: new title under the recycled identity.
		delete(byTitle, strings.ToLower(themes[victim].Title))
		themes[victim].Title = c.Title
		themes[victim].Summary = c.Summary
		themes[victim].Quotes = append([]string(nil), c.Quotes...)
		themes[victim].Prominence = c.Prominence
		themes[victim].LastUpdated = now
		byTitle[key] = victim
		touched[victim] = true
		createdIdx = append(createdIdx, victim)
	}

	// Materialize from final state so a theme touched twice reports its
	// last-written values.
	for _, i := range updatedIdx {
		result.Updated = append(result.Updated, themes[i])
	}
	for _, i := range createdIdx {
		result.Created = append(result.Created, themes[i])
	}
	return result
}
