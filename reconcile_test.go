package undercurrent

import (
	"testing"
	"time"
)

var reconcileNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func makeTheme(id, title string, prominence int, createdAt time.Time) Theme {
	return Theme{
		ID:          id,
		Title:       title,
		Summary:     "summary of " + title,
		Quotes:      []string{"quote for " + title},
		Prominence:  prominence,
		CreatedAt:   createdAt,
		LastUpdated: createdAt,
	}
}

func makeCandidate(title string, prominence int) Candidate {
	return Candidate{
		Title:      title,
		Summary:    "fresh summary of " + title,
		Quotes:     []string{"fresh quote"},
		Prominence: prominence,
	}
}

// fullSet builds MaxThemes themes with distinct prominence 10..100.
func fullSet(createdAt time.Time) []Theme {
	themes := make([]Theme, MaxThemes)
	for i := range themes {
		themes[i] = makeTheme(
			string(rune('a'+i)),
			"Theme "+string(rune('A'+i)),
			(i+1)*10,
			createdAt.AddDate(0, 0, i),
		)
	}
	return themes
}

func TestReconcileUpdatesMatchingTheme(t *testing.T) {
	created := reconcileNow.AddDate(0, -2, 0)
	existing := []Theme{makeTheme("t1", "Fear of stagnation", 60, created)}

	result := Reconcile(existing, []Candidate{makeCandidate("Fear of stagnation", 75)}, reconcileNow)

	if len(result.Updated) != 1 || len(result.Created) != 0 || len(result.Skipped) != 0 {
		t.Fatalf("Expected 1 update only, got %d/%d/%d",
			len(result.Updated), len(result.Created), len(result.Skipped))
	}

	got := result.Updated[0]
	if got.ID != "t1" {
		t.Error("Update must keep the original theme ID")
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("Update must keep the original createdAt")
	}
	if got.Prominence != 75 {
		t.Errorf("Prominence not refreshed: got %d", got.Prominence)
	}
	if got.Summary != "fresh summary of Fear of stagnation" {
		t.Errorf("Summary not refreshed: got %q", got.Summary)
	}
	if !got.LastUpdated.Equal(reconcileNow) {
		t.Error("lastUpdated should move to the run time")
	}
}

func TestReconcileMatchIsCaseInsensitive(t *testing.T) {
	existing := []Theme{makeTheme("t1", "Fear Of Stagnation", 60, reconcileNow.AddDate(0, -1, 0))}

	result := Reconcile(existing, []Candidate{makeCandidate("fear of stagnation", 80)}, reconcileNow)

	if len(result.Updated) != 1 || len(result.Created) != 0 {
		t.Fatalf("Case difference should still match: %d updated, %d created",
			len(result.Updated), len(result.Created))
	}
}

func TestReconcileSimilarTitlesDoNotMatch(t *testing.T) {
	existing := []Theme{makeTheme("t1", "Fear of stagnation", 60, reconcileNow.AddDate(0, -1, 0))}

	result := Reconcile(existing, []Candidate{makeCandidate("Fear of stagnating", 80)}, reconcileNow)

	if len(result.Updated) != 0 {
		t.Error("Only exact titles match; near-duplicates create new themes")
	}
	if len(result.Created) != 1 {
		t.Fatalf("Expected 1 created, got %d", len(result.Created))
	}
}

func TestReconcileCreatesWhenRoom(t *testing.T) {
	result := Reconcile(nil, []Candidate{makeCandidate("Night anxiety", 55)}, reconcileNow)

	if len(result.Created) != 1 {
		t.Fatalf("Expected 1 created, got %d", len(result.Created))
	}
	got := result.Created[0]
	if got.ID == "" {
		t.Error("Created theme needs a fresh ID")
	}
	if !got.CreatedAt.Equal(reconcileNow) || !got.LastUpdated.Equal(reconcileNow) {
		t.Error("Created theme timestamps should be the run time")
	}
}

func TestReconcileNeverExceedsCap(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 15; i++ {
		candidates = append(candidates, makeCandidate("Theme "+string(rune('A'+i)), 50+i))
	}

	result := Reconcile(nil, candidates, reconcileNow)

	if len(result.Created) != MaxThemes {
		t.Errorf("Expected exactly %d created, got %d", MaxThemes, len(result.Created))
	}
	if len(result.Skipped) != 15-MaxThemes {
		t.Errorf("Expected %d skipped, got %d", 15-MaxThemes, len(result.Skipped))
	}
}

func TestReconcileEvictsWeakestOnStrictlyGreater(t *testing.T) {
	existing := fullSet(reconcileNow.AddDate(0, -3, 0))
	weakest := existing[0] // prominence 10

	result := Reconcile(existing, []Candidate{makeCandidate("Burnout creep", 45)}, reconcileNow)

	if len(result.Created) != 1 {
		t.Fatalf("Expected eviction to count as created, got %d", len(result.Created))
	}
	got := result.Created[0]
	if got.ID != weakest.ID {
		t.Errorf("Eviction must reuse the victim's ID: got %s, want %s", got.ID, weakest.ID)
	}
	if !got.CreatedAt.Equal(weakest.CreatedAt) {
		t.Error("Eviction must reuse the victim's createdAt")
	}
	if got.Title != "Burnout creep" || got.Prominence != 45 {
		t.Errorf("Victim content not replaced: %+v", got)
	}
}

func TestReconcileSkipsOnEqualProminence(t *testing.T) {
	existing := fullSet(reconcileNow.AddDate(0, -3, 0)) // weakest has 10

	result := Reconcile(existing, []Candidate{makeCandidate("Equal pressure", 10)}, reconcileNow)

	if len(result.Created) != 0 {
		t.Error("Equal prominence must not evict; strictly greater is required")
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("Expected 1 skipped, got %d", len(result.Skipped))
	}
}

func TestReconcileEvictionTieBreaksOnYoungest(t *testing.T) {
	old := reconcileNow.AddDate(-1, 0, 0)
	young := reconcileNow.AddDate(0, -1, 0)

	existing := fullSet(reconcileNow.AddDate(0, -6, 0))
	// Two themes share the lowest prominence; the younger one goes.
	existing[0] = makeTheme("old-theme", "Old habit", 10, old)
	existing[1] = makeTheme("young-theme", "New worry", 10, young)

	result := Reconcile(existing, []Candidate{makeCandidate("Something louder", 20)}, reconcileNow)

	if len(result.Created) != 1 {
		t.Fatalf("Expected 1 created, got %d", len(result.Created))
	}
	if result.Created[0].ID != "young-theme" {
		t.Errorf("Youngest theme should be evicted at a tie, got %s", result.Created[0].ID)
	}
}

func TestReconcileEvictedTitleNoLongerMatches(t *testing.T) {
	existing := fullSet(reconcileNow.AddDate(0, -3, 0))

	// "New pattern" (15) processes first and replaces the weakest theme
	// (Theme A, 10). The later "Theme A" candidate then has no match and
	// faces a full set whose weakest untouched theme is Theme B (20).
	candidates := []Candidate{
		makeCandidate("Theme A", 12),
		makeCandidate("New pattern", 15),
	}

	result := Reconcile(existing, candidates, reconcileNow)

	if len(result.Created) != 1 || result.Created[0].Title != "New pattern" {
		t.Fatalf("Expected New pattern created: %+v", result.Created)
	}
	if result.Created[0].ID != existing[0].ID {
		t.Error("New pattern should recycle the weakest theme's identity")
	}
	if len(result.Updated) != 0 {
		t.Error("The replaced title must not be matchable afterwards")
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Title != "Theme A" {
		t.Errorf("Stale Theme A candidate should be skipped: %+v", result.Skipped)
	}
}

func TestReconcileUpdatedThemeNotEvictedSameRun(t *testing.T) {
	existing := fullSet(reconcileNow.AddDate(0, -3, 0))

	// Refresh the weakest theme with high prominence, then try to force
	// an eviction. The refreshed theme must survive; the victim is the
	// next weakest untouched theme.
	candidates := []Candidate{
		makeCandidate("Theme A", 99),  // matches weakest, processed first
		makeCandidate("Intruder", 25), // must evict Theme B (20), not Theme A
	}

	result := Reconcile(existing, candidates, reconcileNow)

	if len(result.Updated) != 1 || result.Updated[0].Title != "Theme A" {
		t.Fatalf("Expected Theme A updated, got %+v", result.Updated)
	}
	if len(result.Created) != 1 {
		t.Fatalf("Expected 1 created, got %d", len(result.Created))
	}
	if result.Created[0].ID != existing[1].ID {
		t.Errorf("Intruder should replace the next weakest untouched theme (Theme B)")
	}
}

func TestReconcileCreatedThemeNotEvictedSameRun(t *testing.T) {
	existing := fullSet(reconcileNow.AddDate(0, -3, 0))

	candidates := []Candidate{
		makeCandidate("First intruder", 90),  // evicts weakest (10)
		makeCandidate("Second intruder", 15), // must target next weakest (20), fail, and skip
	}

	result := Reconcile(existing, candidates, reconcileNow)

	if len(result.Created) != 1 || result.Created[0].Title != "First intruder" {
		t.Fatalf("Expected only the first intruder created: %+v", result.Created)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Title != "Second intruder" {
		t.Errorf("Second intruder should be skipped, not evict the first")
	}
}

func TestReconcileProcessesInDescendingProminence(t *testing.T) {
	// Nine existing themes, one slot free. The stronger candidate must
	// win the slot even though it is listed second.
	existing := fullSet(reconcileNow.AddDate(0, -3, 0))[:MaxThemes-1]

	candidates := []Candidate{
		makeCandidate("Weaker", 5),
		makeCandidate("Stronger", 95),
	}

	result := Reconcile(existing, candidates, reconcileNow)

	if len(result.Created) != 1 {
		t.Fatalf("Expected 1 created, got %d", len(result.Created))
	}
	if result.Created[0].Title != "Stronger" {
		t.Errorf("Stronger candidate should take the free slot, got %q", result.Created[0].Title)
	}
	// Weaker (5) then faces a full set where the weakest untouched theme
	// has prominence 10, so it is skipped.
	if len(result.Skipped) != 1 || result.Skipped[0].Title != "Weaker" {
		t.Errorf("Weaker candidate should be skipped: %+v", result.Skipped)
	}
}

func TestReconcileDropsNoiseCandidates(t *testing.T) {
	result := Reconcile(nil, []Candidate{
		{Title: "", Prominence: 50},
		{Title: "   ", Prominence: 50},
		{Title: "Valid", Summary: "s", Prominence: 0},
		{Title: "Also valid title, bad score", Prominence: -10},
	}, reconcileNow)

	if len(result.Created) != 0 || len(result.Updated) != 0 || len(result.Skipped) != 0 {
		t.Errorf("Noise candidates should vanish silently: %+v", result)
	}
}

func TestReconcileEmptyCandidates(t *testing.T) {
	existing := []Theme{makeTheme("t1", "Steady", 50, reconcileNow.AddDate(0, -1, 0))}

	result := Reconcile(existing, nil, reconcileNow)

	if len(result.Updated) != 0 || len(result.Created) != 0 || len(result.Skipped) != 0 {
		t.Errorf("No candidates means no changes: %+v", result)
	}
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	created := reconcileNow.AddDate(0, -1, 0)
	existing := []Theme{makeTheme("t1", "Original", 50, created)}
	candidates := []Candidate{makeCandidate("Original", 70)}

	Reconcile(existing, candidates, reconcileNow)

	if existing[0].Prominence != 50 || existing[0].Summary != "summary of Original" {
		t.Error("Reconcile must not mutate the existing slice")
	}
	if !existing[0].LastUpdated.Equal(created) {
		t.Error("Reconcile must not touch input timestamps")
	}
}

func TestReconcileDuplicateCandidateTitles(t *testing.T) {
	candidates := []Candidate{
		makeCandidate("Echo", 80),
		{Title: "echo", Summary: "second pass", Quotes: []string{"later quote"}, Prominence: 60},
	}

	result := Reconcile(nil, candidates, reconcileNow)

	if len(result.Created) != 1 {
		t.Fatalf("Duplicate titles should collapse to one theme, got %d", len(result.Created))
	}
	// The second candidate refreshed the theme created by the first;
	// the reported record carries the final content.
	if result.Created[0].Summary != "second pass" {
		t.Errorf("Created record should reflect final state, got %q", result.Created[0].Summary)
	}
	if len(result.Updated) != 0 {
		t.Error("A theme created this run should not also be reported as updated")
	}
}

func TestReconcileStableInputIsIdempotent(t *testing.T) {
	candidates := []Candidate{
		makeCandidate("Restlessness", 70),
		makeCandidate("Small joys", 40),
	}

	first := Reconcile(nil, candidates, reconcileNow)
	if len(first.Created) != 2 {
		t.Fatalf("First run should create 2 themes, got %d", len(first.Created))
	}

	// Feed the first run's output back in with identical candidates.
	later := reconcileNow.Add(24 * time.Hour)
	second := Reconcile(first.Created, candidates, later)

	if len(second.Updated) != 2 || len(second.Created) != 0 || len(second.Skipped) != 0 {
		t.Fatalf("Stable input should only refresh in place, got %d/%d/%d",
			len(second.Updated), len(second.Created), len(second.Skipped))
	}
	for i, got := range second.Updated {
		want := first.Created[i]
		if got.ID != want.ID {
			t.Errorf("Theme %d changed identity: %q -> %q", i, want.ID, got.ID)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("Theme %d createdAt changed", i)
		}
		if got.Title != want.Title || got.Summary != want.Summary || got.Prominence != want.Prominence {
			t.Errorf("Theme %d content drifted: %+v", i, got)
		}
		if !got.LastUpdated.Equal(later) {
			t.Errorf("Theme %d lastUpdated should move to the second run time", i)
		}
	}
}

func TestReconcileWorkedExample(t *testing.T) {
	// Full set, mixed run: one refresh, one eviction, one skip.
	base := reconcileNow.AddDate(0, -3, 0)
	existing := fullSet(base)

	candidates := []Candidate{
		makeCandidate("Theme J", 100), // strongest existing, refresh
		makeCandidate("Newcomer", 35), // evicts Theme A (10)
		makeCandidate("Faint signal", 12),
	}

	result := Reconcile(existing, candidates, reconcileNow)

	if len(result.Updated) != 1 || result.Updated[0].Title != "Theme J" {
		t.Errorf("Expected Theme J updated: %+v", result.Updated)
	}
	if len(result.Created) != 1 || result.Created[0].Title != "Newcomer" {
		t.Errorf("Expected Newcomer created: %+v", result.Created)
	}
	if result.Created[0].ID != existing[0].ID {
		t.Error("Newcomer should recycle Theme A's identity")
	}
	// Faint signal (12) faces weakest untouched Theme B (20): skipped.
	if len(result.Skipped) != 1 || result.Skipped[0].Title != "Faint signal" {
		t.Errorf("Expected Faint signal skipped: %+v", result.Skipped)
	}
}
