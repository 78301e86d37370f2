package undercurrent

import "time"

// EngineConfig configures the undercurrent insight engine.
type EngineConfig struct {
	DBPath            string
	Provider          string // "ollama" or "openai"
	OllamaBaseURL     string
	OpenAIAPIKey      string
	Model             string
	MinEntries        int           // corpus gate; extraction is refused below this
	CorpusEntries     int           // newest-N entries fed to extraction
	ExtractionTimeout time.Duration // per-call timeout on the extraction service
	ReadOnly          bool          // when true, skip extraction provider creation
}

// User represents a registered journal owner.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry represents a journal entry.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	EntryDate time.Time `json:"entry_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Theme is a retained insight theme: a recurring psychological pattern
// extracted from journal text, ranked by prominence. At most MaxThemes
// themes are retained per user at any time.
type Theme struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Quotes      []string  `json:"quotes"`
	Prominence  int       `json:"prominence_score"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Candidate is an ephemeral theme proposal from a single extraction run.
// It has no identity or timestamps until merged into the retained set.
type Candidate struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Quotes     []string `json:"quotes"`
	Prominence int      `json:"prominence_score"`
}

// ReconcileResult is the outcome of one reconciliation pass. Themes that
// were neither updated nor created are not returned; nothing changed.
type ReconcileResult struct {
	Updated []Theme     `json:"updated"`
	Created []Theme     `json:"created"`
	Skipped []Candidate `json:"skipped"`
}

// InsightRun records one completed reconciliation run for a user.
type InsightRun struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user_id"`
	RanAt   time.Time `json:"ran_at"`
	Updated int       `json:"themes_updated"`
	Created int       `json:"themes_created"`
	Skipped int       `json:"candidates_skipped"`
	Failed  int       `json:"writes_failed"`
}

// InsightReport is returned by a successful GenerateInsights call.
// Failed counts per-theme persistence errors; the run is still reported
// as partially successful when Failed > 0.
type InsightReport struct {
	RanAt   time.Time `json:"ran_at"`
	Updated int       `json:"themes_updated"`
	Created int       `json:"themes_created"`
	Skipped int       `json:"candidates_skipped"`
	Failed  int       `json:"writes_failed"`
	Themes  []Theme   `json:"themes,omitempty"` // changed themes, updated then created
}

// RunStatus describes a user's insight eligibility for status surfaces.
type RunStatus struct {
	LastRun    *InsightRun `json:"last_run,omitempty"`
	EntryCount int         `json:"entry_count"`
	MinEntries int         `json:"min_entries"`
	Eligible   bool        `json:"eligible"`
	Reason     string      `json:"reason,omitempty"`
}
