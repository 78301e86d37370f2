package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

type User struct {
	ID        int64
	Name      string
	Timezone  string
	CreatedAt time.Time
}

type Entry struct {
	ID        int64
	UserID    int64
	Title     string
	Body      string
	EntryDate time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Theme struct {
	ID          string
	UserID      int64
	Title       string
	Summary     string
	Quotes      []string
	Prominence  int
	CreatedAt   time.Time
	LastUpdated time.Time
}

type InsightRun struct {
	ID      int64
	UserID  int64
	RanAt   time.Time
	Updated int
	Created int
	Skipped int
	Failed  int
}

// NewStore opens the database and initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrations for existing databases.
	migrations := []string{
		"ALTER TABLE users ADD COLUMN timezone TEXT NOT NULL DEFAULT 'UTC'",
		"ALTER TABLE insight_runs ADD COLUMN writes_failed INTEGER NOT NULL DEFAULT 0",
	}
	for _, m := range migrations {
		db.Exec(m) // ignore "duplicate column" errors
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// User management

// CreateUser registers a new user. Timezone must be an IANA zone name;
// empty means UTC.
func (s *Store) CreateUser(name, timezone string) (int64, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	result, err := s.db.Exec(
		"INSERT INTO users (name, timezone) VALUES (?, ?)",
		name, timezone,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return result.LastInsertId()
}

// GetUser returns a user by ID.
func (s *Store) GetUser(userID int64) (*User, error) {
	var u User
	err := s.db.QueryRow(
		"SELECT id, name, timezone, created_at FROM users WHERE id = ?", userID,
	).Scan(&u.ID, &u.Name, &u.Timezone, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &u, nil
}

// GetUserByName returns a user by name (case-insensitive), or nil if
// no such user exists.
func (s *Store) GetUserByName(name string) (*User, error) {
	var u User
	err := s.db.QueryRow(
		"SELECT id, name, timezone, created_at FROM users WHERE name = ?", name,
	).Scan(&u.ID, &u.Name, &u.Timezone, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by name.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query("SELECT id, name, timezone, created_at FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Timezone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Journal entries

// AddEntry stores a new journal entry and returns its ID.
func (s *Store) AddEntry(entry *Entry) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO entries (user_id, title, body, entry_date) VALUES (?, ?, ?, ?)",
		entry.UserID, entry.Title, entry.Body, entry.EntryDate,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add entry: %w", err)
	}
	return result.LastInsertId()
}

// GetEntry returns a single entry owned by the user.
func (s *Store) GetEntry(userID, entryID int64) (*Entry, error) {
	var e Entry
	var title sql.NullString
	err := s.db.QueryRow(
		`SELECT id, user_id, title, body, entry_date, created_at, updated_at
		 FROM entries WHERE id = ? AND user_id = ?`, entryID, userID,
	).Scan(&e.ID, &e.UserID, &title, &e.Body, &e.EntryDate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", entryID, err)
	}
	e.Title = title.String
	return &e, nil
}

// ListEntries returns a user's entries newest-first.
func (s *Store) ListEntries(userID int64, limit, offset int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, body, entry_date, created_at, updated_at
		 FROM entries WHERE user_id = ?
		 ORDER BY entry_date DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// RecentEntries returns the user's newest n entries, newest-first.
func (s *Store) RecentEntries(userID int64, n int) ([]Entry, error) {
	return s.ListEntries(userID, n, 0)
}

// CountEntries returns the total number of entries for a user.
func (s *Store) CountEntries(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM entries WHERE user_id = ?", userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// UpdateEntry overwrites an entry's title and body.
func (s *Store) UpdateEntry(userID, entryID int64, title, body string) error {
	_, err := s.db.Exec(
		`UPDATE entries SET title = ?, body = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		title, body, entryID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry owned by the user.
func (s *Store) DeleteEntry(userID, entryID int64) error {
	_, err := s.db.Exec(
		"DELETE FROM entries WHERE id = ? AND user_id = ?", entryID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var title sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &title, &e.Body,
			&e.EntryDate, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Title = title.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Insight themes

// UpsertTheme inserts a theme or, when the ID already exists, overwrites
// its mutable fields. Eviction replaces a theme's content under its
// original row, so both update and replace-in-place land here.
func (s *Store) UpsertTheme(theme *Theme) error {
	quotes, err := json.Marshal(theme.Quotes)
	if err != nil {
		return fmt.Errorf("marshal quotes: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO themes (id, user_id, title, summary, quotes, prominence, created_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   summary = excluded.summary,
		   quotes = excluded.quotes,
		   prominence = excluded.prominence,
		   last_updated = excluded.last_updated`,
		theme.ID, theme.UserID, theme.Title, theme.Summary, string(quotes),
		theme.Prominence, theme.CreatedAt, theme.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert theme: %w", err)
	}
	return nil
}

// GetThemes returns all retained themes for a user, highest prominence
// first (ties: oldest first).
func (s *Store) GetThemes(userID int64) ([]Theme, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, summary, quotes, prominence, created_at, last_updated
		 FROM themes WHERE user_id = ?
		 ORDER BY prominence DESC, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get themes: %w", err)
	}
	defer rows.Close()

	var themes []Theme
	for rows.Next() {
		var t Theme
		var quotes string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Summary, &quotes,
			&t.Prominence, &t.CreatedAt, &t.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan theme: %w", err)
		}
		if err := json.Unmarshal([]byte(quotes), &t.Quotes); err != nil {
			return nil, fmt.Errorf("unmarshal quotes for theme %s: %w", t.ID, err)
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

// GetTheme returns a single theme owned by the user, or nil if absent.
func (s *Store) GetTheme(userID int64, themeID string) (*Theme, error) {
	var t Theme
	var quotes string
	err := s.db.QueryRow(
		`SELECT id, user_id, title, summary, quotes, prominence, created_at, last_updated
		 FROM themes WHERE id = ? AND user_id = ?`, themeID, userID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Summary, &quotes,
		&t.Prominence, &t.CreatedAt, &t.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get theme %s: %w", themeID, err)
	}
	if err := json.Unmarshal([]byte(quotes), &t.Quotes); err != nil {
		return nil, fmt.Errorf("unmarshal quotes for theme %s: %w", t.ID, err)
	}
	return &t, nil
}

// DeleteTheme removes a theme by ID. This is the only deletion path for
// themes; reconciliation never deletes, it replaces in place.
func (s *Store) DeleteTheme(userID int64, themeID string) error {
	_, err := s.db.Exec(
		"DELETE FROM themes WHERE id = ? AND user_id = ?", themeID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete theme: %w", err)
	}
	return nil
}

// Insight run history

// RecordRun stores the outcome of a reconciliation run.
func (s *Store) RecordRun(run *InsightRun) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO insight_runs (user_id, ran_at, themes_updated, themes_created, candidates_skipped, writes_failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.UserID, run.RanAt, run.Updated, run.Created, run.Skipped, run.Failed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record insight run: %w", err)
	}
	return result.LastInsertId()
}

// LastRun returns the user's most recent insight run, or nil if the
// user has never run insights.
func (s *Store) LastRun(userID int64) (*InsightRun, error) {
	var r InsightRun
	err := s.db.QueryRow(
		`SELECT id, user_id, ran_at, themes_updated, themes_created, candidates_skipped, writes_failed
		 FROM insight_runs WHERE user_id = ?
		 ORDER BY ran_at DESC, id DESC LIMIT 1`,
		userID,
	).Scan(&r.ID, &r.UserID, &r.RanAt, &r.Updated, &r.Created, &r.Skipped, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last insight run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the user's run history, newest-first.
func (s *Store) ListRuns(userID int64, limit int) ([]InsightRun, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, ran_at, themes_updated, themes_created, candidates_skipped, writes_failed
		 FROM insight_runs WHERE user_id = ?
		 ORDER BY ran_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list insight runs: %w", err)
	}
	defer rows.Close()

	var runs []InsightRun
	for rows.Next() {
		var r InsightRun
		if err := rows.Scan(&r.ID, &r.UserID, &r.RanAt, &r.Updated, &r.Created,
			&r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan insight run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// User preference management

// GetUserPreference retrieves a single preference value for a user.
func (s *Store) GetUserPreference(userID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM user_preferences WHERE user_id = ? AND key = ?",
		userID, key,
	).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetUserPreference sets a preference value, creating or updating as needed.
func (s *Store) SetUserPreference(userID int64, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO user_preferences (user_id, key, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET
		   value = excluded.value`,
		userID, key, value,
	)
	return err
}

// GetAllUserPreferences returns all preferences for a user as a key-value map.
func (s *Store) GetAllUserPreferences(userID int64) (map[string]string, error) {
	rows, err := s.db.Query(
		"SELECT key, value FROM user_preferences WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get user preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[k] = v
	}
	return prefs, rows.Err()
}

// DeleteUserPreference removes a single preference for a user.
func (s *Store) DeleteUserPreference(userID int64, key string) error {
	_, err := s.db.Exec(
		"DELETE FROM user_preferences WHERE user_id = ? AND key = ?",
		userID, key,
	)
	return err
}
