package undercurrent

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ameliahart/undercurrent/internal/ai"
	"github.com/ameliahart/undercurrent/internal/journal"
	"github.com/ameliahart/undercurrent/internal/storage"
)

// persistTheme is indirected so tests can inject per-theme write faults.
var persistTheme = func(s *storage.Store, t *storage.Theme) error {
	return s.UpsertTheme(t)
}

// Engine is the public API for undercurrent's journaling and insight
// pipeline. It wraps the internal storage, journal importer, and theme
// extraction provider.
type Engine struct {
	store     *storage.Store
	importer  *journal.Importer
	extractor ai.Extractor
	config    *storage.Config

	mu      sync.Mutex
	running map[int64]bool // userIDs with an insight run in flight
}

// NewEngine creates an undercurrent engine backed by the given SQLite
// database. The extraction provider is created eagerly but only contacts
// its backend when insights are generated. With cfg.ReadOnly set no
// provider is created and insight runs are refused, which lets read-only
// surfaces start without provider credentials.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
	}
	if cfg.OllamaBaseURL == "" {
		cfg.OllamaBaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case "openai":
			cfg.Model = "gpt-4o-mini"
		default:
			cfg.Model = "llama3"
		}
	}
	if cfg.MinEntries == 0 {
		cfg.MinEntries = 5
	}
	if cfg.CorpusEntries == 0 {
		cfg.CorpusEntries = 30
	}
	if cfg.ExtractionTimeout == 0 {
		cfg.ExtractionTimeout = 2 * time.Minute
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	storeCfg := storage.DefaultConfig()
	storeCfg.Provider = cfg.Provider
	storeCfg.Ollama.BaseURL = cfg.OllamaBaseURL
	storeCfg.Insights.MinEntries = cfg.MinEntries
	storeCfg.Insights.CorpusEntries = cfg.CorpusEntries
	storeCfg.Insights.ExtractionTimeout = int(cfg.ExtractionTimeout / time.Second)
	switch cfg.Provider {
	case "openai":
		storeCfg.OpenAI.Model = cfg.Model
	default:
		storeCfg.Ollama.Model = cfg.Model
	}

	var extractor ai.Extractor
	if !cfg.ReadOnly {
		switch cfg.Provider {
		case "ollama":
			extractor, err = ai.NewOllamaExtractor(cfg.OllamaBaseURL, cfg.Model, storeCfg.Temperatures.Extraction)
		case "openai":
			extractor, err = ai.NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.Model)
		default:
			err = fmt.Errorf("unknown provider %q", cfg.Provider)
		}
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("create extraction provider: %w", err)
		}
	}

	return &Engine{
		store:     store,
		importer:  journal.NewImporter(),
		extractor: extractor,
		config:    storeCfg,
		running:   make(map[int64]bool),
	}, nil
}

// CreateUser registers a user. The timezone must be a valid IANA zone
// name; empty means UTC.
func (e *Engine) CreateUser(name, timezone string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("user name is required")
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}
	userID, err := e.store.CreateUser(name, timezone)
	if err != nil {
		return nil, err
	}
	u, err := e.store.GetUser(userID)
	if err != nil {
		return nil, err
	}
	user := userFromInternal(*u)
	return &user, nil
}

// ResolveUser looks up a user by name (case-insensitive).
func (e *Engine) ResolveUser(name string) (*User, error) {
	u, err := e.store.GetUserByName(name)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("unknown user %q", name)
	}
	user := userFromInternal(*u)
	return &user, nil
}

// ListUsers returns all registered users.
func (e *Engine) ListUsers() ([]User, error) {
	users, err := e.store.ListUsers()
	if err != nil {
		return nil, err
	}
	out := make([]User, len(users))
	for i, u := range users {
		out[i] = userFromInternal(u)
	}
	return out, nil
}

// AddEntry stores a journal entry. A zero date means now.
func (e *Engine) AddEntry(userID int64, title, body string, date time.Time) (*Entry, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("entry body is required")
	}
	if date.IsZero() {
		date = time.Now()
	}
	entryID, err := e.store.AddEntry(&storage.Entry{
		UserID:    userID,
		Title:     title,
		Body:      body,
		EntryDate: date,
	})
	if err != nil {
		return nil, err
	}
	return e.GetEntry(userID, entryID)
}

// ImportEntries imports Markdown journal files from a file or directory.
// Files that fail to parse are skipped; their errors are returned along
// with the number of entries stored.
func (e *Engine) ImportEntries(userID int64, path string) (int, []error) {
	entries, errs := e.importer.ImportPath(path)

	imported := 0
	for _, entry := range entries {
		_, err := e.store.AddEntry(&storage.Entry{
			UserID:    userID,
			Title:     entry.Title,
			Body:      entry.Body,
			EntryDate: entry.EntryDate,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", entry.Source, err))
			continue
		}
		imported++
	}
	return imported, errs
}

// ListEntries returns a user's entries newest-first.
func (e *Engine) ListEntries(userID int64, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := e.store.ListEntries(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		out[i] = entryFromInternal(entry)
	}
	return out, nil
}

// GetEntry returns a single entry owned by the user.
func (e *Engine) GetEntry(userID, entryID int64) (*Entry, error) {
	entry, err := e.store.GetEntry(userID, entryID)
	if err != nil {
		return nil, err
	}
	result := entryFromInternal(*entry)
	return &result, nil
}

// UpdateEntry overwrites an entry's title and body.
func (e *Engine) UpdateEntry(userID, entryID int64, title, body string) (*Entry, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("entry body is required")
	}
	if err := e.store.UpdateEntry(userID, entryID, title, body); err != nil {
		return nil, err
	}
	return e.GetEntry(userID, entryID)
}

// DeleteEntry removes an entry. Retained themes are untouched; insights
// only change on the next run.
func (e *Engine) DeleteEntry(userID, entryID int64) error {
	return e.store.DeleteEntry(userID, entryID)
}

// Themes returns the user's retained themes, highest prominence first.
func (e *Engine) Themes(userID int64) ([]Theme, error) {
	themes, err := e.store.GetThemes(userID)
	if err != nil {
		return nil, err
	}
	out := make([]Theme, len(themes))
	for i, t := range themes {
		out[i] = themeFromInternal(t)
	}
	return out, nil
}

// RemoveTheme deletes a retained theme. This is a user action, never a
// side effect of reconciliation.
func (e *Engine) RemoveTheme(userID int64, themeID string) error {
	return e.store.DeleteTheme(userID, themeID)
}

// GenerateInsights runs the full insight pipeline for a user: corpus
// gate, weekly gate, extraction, reconciliation, persistence. With force
// set the weekly gate is skipped; the corpus gate always applies.
//
// Per-theme persistence failures do not abort the run. They are logged,
// counted in the report's Failed field, and the run is still recorded.
func (e *Engine) GenerateInsights(ctx context.Context, userID int64, force bool) (*InsightReport, error) {
	if e.extractor == nil {
		return nil, fmt.Errorf("no extraction provider configured")
	}

	user, err := e.store.GetUser(userID)
	if err != nil {
		return nil, err
	}

	if !e.beginRun(userID) {
		return nil, ErrRunInProgress
	}
	defer e.endRun(userID)

	count, err := e.store.CountEntries(userID)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	if count < e.config.Insights.MinEntries {
		return nil, fmt.Errorf("%w: have %d entries, need %d",
			ErrInsufficientData, count, e.config.Insights.MinEntries)
	}

	now := time.Now()
	if !force {
		lastRun, err := e.store.LastRun(userID)
		if err != nil {
			return nil, fmt.Errorf("get last run: %w", err)
		}
		if lastRun != nil && !lastRun.RanAt.Before(startOfWeek(now, userLocation(user.Timezone))) {
			return nil, ErrAlreadyRanThisWeek
		}
	}

	corpus, err := e.buildCorpus(userID)
	if err != nil {
		return nil, fmt.Errorf("build corpus: %w", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx,
		time.Duration(e.config.Insights.ExtractionTimeout)*time.Second)
	defer cancel()

	aiCandidates, err := e.extractor.ExtractThemes(extractCtx, corpus)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	candidates := make([]Candidate, len(aiCandidates))
	for i, c := range aiCandidates {
		candidates[i] = Candidate(c)
	}

	existing, err := e.Themes(userID)
	if err != nil {
		return nil, fmt.Errorf("load themes: %w", err)
	}

	result := Reconcile(existing, candidates, now)

	report := &InsightReport{
		RanAt:   now,
		Updated: len(result.Updated),
		Created: len(result.Created),
		Skipped: len(result.Skipped),
	}

	changed := make([]Theme, 0, len(result.Updated)+len(result.Created))
	changed = append(changed, result.Updated...)
	changed = append(changed, result.Created...)
	for _, theme := range changed {
		theme.UserID = userID
		if err := persistTheme(e.store, themeToInternal(theme)); err != nil {
			log.Printf("undercurrent: persist theme %q for user %d: %v", theme.Title, userID, err)
			report.Failed++
			continue
		}
		report.Themes = append(report.Themes, theme)
	}

	if _, err := e.store.RecordRun(&storage.InsightRun{
		UserID:  userID,
		RanAt:   now,
		Updated: report.Updated,
		Created: report.Created,
		Skipped: report.Skipped,
		Failed:  report.Failed,
	}); err != nil {
		log.Printf("undercurrent: record insight run for user %d: %v", userID, err)
	}

	return report, nil
}

// InsightStatus reports whether a user is currently eligible for an
// insight run and why not if they aren't.
func (e *Engine) InsightStatus(userID int64) (*RunStatus, error) {
	user, err := e.store.GetUser(userID)
	if err != nil {
		return nil, err
	}

	count, err := e.store.CountEntries(userID)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	lastRun, err := e.store.LastRun(userID)
	if err != nil {
		return nil, fmt.Errorf("get last run: %w", err)
	}

	status := &RunStatus{
		EntryCount: count,
		MinEntries: e.config.Insights.MinEntries,
		Eligible:   true,
	}
	if lastRun != nil {
		run := runFromInternal(*lastRun)
		status.LastRun = &run
	}

	if count < e.config.Insights.MinEntries {
		status.Eligible = false
		status.Reason = fmt.Sprintf("need %d entries, have %d", e.config.Insights.MinEntries, count)
		return status, nil
	}

	if lastRun != nil && !lastRun.RanAt.Before(startOfWeek(time.Now(), userLocation(user.Timezone))) {
		status.Eligible = false
		status.Reason = "insights already generated this week"
	}
	return status, nil
}

// RunHistory returns the user's insight runs, newest-first.
func (e *Engine) RunHistory(userID int64, limit int) ([]InsightRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := e.store.ListRuns(userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]InsightRun, len(runs))
	for i, r := range runs {
		out[i] = runFromInternal(r)
	}
	return out, nil
}

// GetPreference returns a user preference value, or "" when unset.
func (e *Engine) GetPreference(userID int64, key string) string {
	value, err := e.store.GetUserPreference(userID, key)
	if err != nil {
		return ""
	}
	return value
}

// SetPreference stores a user preference.
func (e *Engine) SetPreference(userID int64, key, value string) error {
	return e.store.SetUserPreference(userID, key, value)
}

// Close releases all resources held by the engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

// beginRun marks a user's insight run as in flight. Returns false when
// one is already running for that user.
func (e *Engine) beginRun(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[userID] {
		return false
	}
	e.running[userID] = true
	return true
}

func (e *Engine) endRun(userID int64) {
	e.mu.Lock()
	delete(e.running, userID)
	e.mu.Unlock()
}

// buildCorpus assembles the extraction input: the newest entries, up to
// the configured cap, presented oldest-first with date prefixes.
func (e *Engine) buildCorpus(userID int64) (string, error) {
	entries, err := e.store.RecentEntries(userID, e.config.Insights.CorpusEntries)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EntryDate.Before(entries[j].EntryDate)
	})

	var corpus strings.Builder
	for _, entry := range entries {
		corpus.WriteString(fmt.Sprintf("[%s]", entry.EntryDate.Format("2006-01-02")))
		if entry.Title != "" {
			corpus.WriteString(" " + entry.Title)
		}
		corpus.WriteString("\n")
		corpus.WriteString(entry.Body)
		corpus.WriteString("\n\n---\n\n")
	}
	return corpus.String(), nil
}

// startOfWeek returns Monday 00:00 of t's week in the given location.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	weekday := (int(t.Weekday()) + 6) % 7 // Monday = 0
	monday := t.AddDate(0, 0, -weekday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, loc)
}

// userLocation loads a user's timezone, falling back to UTC for zones
// the host can't resolve.
func userLocation(timezone string) *time.Location {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// --- internal type conversion helpers ---

func userFromInternal(u storage.User) User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		Timezone:  u.Timezone,
		CreatedAt: u.CreatedAt,
	}
}

func entryFromInternal(e storage.Entry) Entry {
	return Entry{
		ID:        e.ID,
		UserID:    e.UserID,
		Title:     e.Title,
		Body:      e.Body,
		EntryDate: e.EntryDate,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func themeFromInternal(t storage.Theme) Theme {
	return Theme{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Summary:     t.Summary,
		Quotes:      t.Quotes,
		Prominence:  t.Prominence,
		CreatedAt:   t.CreatedAt,
		LastUpdated: t.LastUpdated,
	}
}

func themeToInternal(t Theme) *storage.Theme {
	return &storage.Theme{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Summary:     t.Summary,
		Quotes:      t.Quotes,
		Prominence:  t.Prominence,
		CreatedAt:   t.CreatedAt,
		LastUpdated: t.LastUpdated,
	}
}

func runFromInternal(r storage.InsightRun) InsightRun {
	return InsightRun{
		ID:      r.ID,
		UserID:  r.UserID,
		RanAt:   r.RanAt,
		Updated: r.Updated,
		Created: r.Created,
		Skipped: r.Skipped,
		Failed:  r.Failed,
	}
}
