package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t)

	if store.db == nil {
		t.Fatal("Database connection is nil")
	}
}

func TestCreateAndGetUser(t *testing.T) {
	store := newTestStore(t)

	userID, err := store.CreateUser("amelia", "Europe/London")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if userID == 0 {
		t.Fatal("User ID should not be 0")
	}

	user, err := store.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Name != "amelia" {
		t.Errorf("User name mismatch: got %s, want amelia", user.Name)
	}
	if user.Timezone != "Europe/London" {
		t.Errorf("User timezone mismatch: got %s, want Europe/London", user.Timezone)
	}

	// Name lookup is case-insensitive
	byName, err := store.GetUserByName("AMELIA")
	if err != nil {
		t.Fatalf("GetUserByName failed: %v", err)
	}
	if byName == nil || byName.ID != userID {
		t.Fatal("GetUserByName should find the user regardless of case")
	}

	missing, err := store.GetUserByName("nobody")
	if err != nil {
		t.Fatalf("GetUserByName failed: %v", err)
	}
	if missing != nil {
		t.Fatal("GetUserByName should return nil for unknown users")
	}
}

func TestCreateUserDefaultsTimezone(t *testing.T) {
	store := newTestStore(t)

	userID, err := store.CreateUser("drew", "")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	user, err := store.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Timezone != "UTC" {
		t.Errorf("Expected UTC default timezone, got %s", user.Timezone)
	}
}

func TestAddAndListEntries(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")

	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := &Entry{
			UserID:    userID,
			Title:     "Day " + string(rune('1'+i)),
			Body:      "wrote some things",
			EntryDate: base.AddDate(0, 0, i),
		}
		if _, err := store.AddEntry(entry); err != nil {
			t.Fatalf("AddEntry failed: %v", err)
		}
	}

	entries, err := store.ListEntries(userID, 10, 0)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}

	// Newest first
	if entries[0].Title != "Day 3" {
		t.Errorf("Expected newest entry first, got %s", entries[0].Title)
	}

	count, err := store.CountEntries(userID)
	if err != nil {
		t.Fatalf("CountEntries failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}

	recent, err := store.RecentEntries(userID, 2)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 recent entries, got %d", len(recent))
	}
}

func TestDeleteEntry(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")
	entryID, _ := store.AddEntry(&Entry{
		UserID:    userID,
		Body:      "to be removed",
		EntryDate: time.Now(),
	})

	if err := store.DeleteEntry(userID, entryID); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}

	count, _ := store.CountEntries(userID)
	if count != 0 {
		t.Errorf("Expected 0 entries after delete, got %d", count)
	}
}

func TestUpsertTheme(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")
	now := time.Now().UTC().Truncate(time.Second)

	theme := &Theme{
		ID:          "11111111-1111-1111-1111-111111111111",
		UserID:      userID,
		Title:       "Fear of stagnation",
		Summary:     "Worries about career plateau",
		Quotes:      []string{"am I stuck?", "same week on repeat"},
		Prominence:  72,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := store.UpsertTheme(theme); err != nil {
		t.Fatalf("UpsertTheme failed: %v", err)
	}

	themes, err := store.GetThemes(userID)
	if err != nil {
		t.Fatalf("GetThemes failed: %v", err)
	}
	if len(themes) != 1 {
		t.Fatalf("Expected 1 theme, got %d", len(themes))
	}
	if len(themes[0].Quotes) != 2 || themes[0].Quotes[0] != "am I stuck?" {
		t.Errorf("Quotes round-trip mismatch: %v", themes[0].Quotes)
	}

	// Upsert under the same ID replaces content, keeps created_at
	theme.Title = "Fear of drifting"
	theme.Prominence = 80
	theme.LastUpdated = now.Add(time.Hour)
	if err := store.UpsertTheme(theme); err != nil {
		t.Fatalf("UpsertTheme (replace) failed: %v", err)
	}

	themes, _ = store.GetThemes(userID)
	if len(themes) != 1 {
		t.Fatalf("Expected 1 theme after replace, got %d", len(themes))
	}
	if themes[0].Title != "Fear of drifting" {
		t.Errorf("Title not replaced: got %s", themes[0].Title)
	}
	if !themes[0].CreatedAt.Equal(now) {
		t.Errorf("created_at should survive replace: got %v, want %v", themes[0].CreatedAt, now)
	}
}

func TestGetThemesOrder(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")
	now := time.Now().UTC()

	ids := []string{"a", "b", "c"}
	scores := []int{40, 90, 65}
	for i := range ids {
		err := store.UpsertTheme(&Theme{
			ID:          ids[i],
			UserID:      userID,
			Title:       "Theme " + ids[i],
			Summary:     "s",
			Quotes:      []string{},
			Prominence:  scores[i],
			CreatedAt:   now,
			LastUpdated: now,
		})
		if err != nil {
			t.Fatalf("UpsertTheme failed: %v", err)
		}
	}

	themes, err := store.GetThemes(userID)
	if err != nil {
		t.Fatalf("GetThemes failed: %v", err)
	}
	if len(themes) != 3 {
		t.Fatalf("Expected 3 themes, got %d", len(themes))
	}
	if themes[0].Prominence != 90 || themes[2].Prominence != 40 {
		t.Errorf("Themes not ordered by prominence: %d, %d, %d",
			themes[0].Prominence, themes[1].Prominence, themes[2].Prominence)
	}
}

func TestDeleteTheme(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")
	now := time.Now().UTC()
	store.UpsertTheme(&Theme{
		ID: "x", UserID: userID, Title: "T", Summary: "s",
		Quotes: []string{}, Prominence: 10, CreatedAt: now, LastUpdated: now,
	})

	if err := store.DeleteTheme(userID, "x"); err != nil {
		t.Fatalf("DeleteTheme failed: %v", err)
	}

	theme, err := store.GetTheme(userID, "x")
	if err != nil {
		t.Fatalf("GetTheme failed: %v", err)
	}
	if theme != nil {
		t.Fatal("Theme should be gone after delete")
	}
}

func TestRecordAndLastRun(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")

	none, err := store.LastRun(userID)
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if none != nil {
		t.Fatal("Expected nil LastRun before any runs")
	}

	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 7)

	store.RecordRun(&InsightRun{UserID: userID, RanAt: first, Updated: 2, Created: 1})
	store.RecordRun(&InsightRun{UserID: userID, RanAt: second, Updated: 0, Created: 3, Skipped: 1, Failed: 1})

	last, err := store.LastRun(userID)
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if last == nil {
		t.Fatal("Expected a run")
	}
	if !last.RanAt.Equal(second) {
		t.Errorf("Expected most recent run, got %v", last.RanAt)
	}
	if last.Created != 3 || last.Failed != 1 {
		t.Errorf("Run counters mismatch: %+v", last)
	}

	runs, err := store.ListRuns(userID, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
}

func TestUserPreferences(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")

	if err := store.SetUserPreference(userID, "tone", "gentle"); err != nil {
		t.Fatalf("SetUserPreference failed: %v", err)
	}
	if err := store.SetUserPreference(userID, "tone", "direct"); err != nil {
		t.Fatalf("SetUserPreference (update) failed: %v", err)
	}

	value, err := store.GetUserPreference(userID, "tone")
	if err != nil {
		t.Fatalf("GetUserPreference failed: %v", err)
	}
	if value != "direct" {
		t.Errorf("Expected updated value, got %s", value)
	}

	prefs, err := store.GetAllUserPreferences(userID)
	if err != nil {
		t.Fatalf("GetAllUserPreferences failed: %v", err)
	}
	if len(prefs) != 1 {
		t.Errorf("Expected 1 preference, got %d", len(prefs))
	}

	if err := store.DeleteUserPreference(userID, "tone"); err != nil {
		t.Fatalf("DeleteUserPreference failed: %v", err)
	}
	if _, err := store.GetUserPreference(userID, "tone"); err == nil {
		t.Error("Expected error for deleted preference")
	}
}

func TestEntriesCascadeOnUserDelete(t *testing.T) {
	store := newTestStore(t)

	userID, _ := store.CreateUser("amelia", "")
	store.AddEntry(&Entry{UserID: userID, Body: "hello", EntryDate: time.Now()})

	if _, err := store.db.Exec("DELETE FROM users WHERE id = ?", userID); err != nil {
		t.Fatalf("delete user failed: %v", err)
	}

	count, _ := store.CountEntries(userID)
	if count != 0 {
		t.Errorf("Entries should cascade on user delete, got %d", count)
	}
}
