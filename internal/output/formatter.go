package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ameliahart/undercurrent"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputEntryList outputs a list of journal entries
func (f *Formatter) OutputEntryList(entries []undercurrent.Entry) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(entries)
	case FormatText:
		for _, e := range entries {
			fmt.Fprintf(f.out, "id=%d\tdate=%s\ttitle=%s\n",
				e.ID, e.EntryDate.Format("2006-01-02"), e.Title)
		}
		return nil
	case FormatHuman:
		if len(entries) == 0 {
			fmt.Fprintln(f.out, "No journal entries yet")
			return nil
		}
		fmt.Fprintf(f.out, "Journal entries (%d):\n\n", len(entries))
		for _, e := range entries {
			fmt.Fprintf(f.out, "ID: %d\n", e.ID)
			fmt.Fprintf(f.out, "Date: %s\n", e.EntryDate.Format("2006-01-02"))
			if e.Title != "" {
				fmt.Fprintf(f.out, "Title: %s\n", e.Title)
			}
			fmt.Fprintf(f.out, "%s\n", truncate(e.Body, 200))
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputEntry outputs a single journal entry in full
func (f *Formatter) OutputEntry(entry *undercurrent.Entry) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(entry)
	case FormatText:
		fmt.Fprintf(f.out, "id=%d\tdate=%s\ttitle=%s\n",
			entry.ID, entry.EntryDate.Format("2006-01-02"), entry.Title)
		fmt.Fprintln(f.out, entry.Body)
		return nil
	case FormatHuman:
		if entry.Title != "" {
			fmt.Fprintf(f.out, "# %s\n", entry.Title)
		}
		fmt.Fprintf(f.out, "%s (entry %d)\n\n", entry.EntryDate.Format("Monday, 2 January 2006"), entry.ID)
		fmt.Fprintln(f.out, entry.Body)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputThemes outputs the retained insight themes
func (f *Formatter) OutputThemes(themes []undercurrent.Theme) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(themes)
	case FormatText:
		for _, t := range themes {
			fmt.Fprintf(f.out, "id=%s\tprominence=%d\ttitle=%s\tlast_updated=%s\n",
				t.ID, t.Prominence, t.Title, t.LastUpdated.Format("2006-01-02"))
		}
		return nil
	case FormatHuman:
		if len(themes) == 0 {
			fmt.Fprintln(f.out, "No insight themes yet. Run `undercurrent insights` once you have a few entries.")
			return nil
		}
		fmt.Fprintf(f.out, "Your current themes (%d):\n\n", len(themes))
		for _, t := range themes {
			fmt.Fprintf(f.out, "%3d  %s\n", t.Prominence, t.Title)
			fmt.Fprintf(f.out, "     %s\n", t.Summary)
			for _, q := range t.Quotes {
				fmt.Fprintf(f.out, "     > %s\n", truncate(q, 120))
			}
			fmt.Fprintf(f.out, "     since %s, last seen %s\n\n",
				t.CreatedAt.Format("2 Jan 2006"), t.LastUpdated.Format("2 Jan 2006"))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputInsightReport outputs the result of an insight run
func (f *Formatter) OutputInsightReport(report *undercurrent.InsightReport) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(report)
	case FormatText:
		fmt.Fprintf(f.out, "updated=%d\n", report.Updated)
		fmt.Fprintf(f.out, "created=%d\n", report.Created)
		fmt.Fprintf(f.out, "skipped=%d\n", report.Skipped)
		fmt.Fprintf(f.out, "failed=%d\n", report.Failed)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Insights generated at %s\n", report.RanAt.Format("15:04, 2 Jan 2006"))
		fmt.Fprintf(f.out, "  %d theme(s) refreshed, %d new, %d candidate(s) didn't make the cut\n",
			report.Updated, report.Created, report.Skipped)
		if report.Failed > 0 {
			fmt.Fprintf(f.out, "  ⚠️  %d theme(s) could not be saved\n", report.Failed)
		}
		for _, t := range report.Themes {
			fmt.Fprintf(f.out, "  • %s (%d)\n", t.Title, t.Prominence)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputRunStatus outputs a user's insight eligibility
func (f *Formatter) OutputRunStatus(status *undercurrent.RunStatus) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(status)
	case FormatText:
		fmt.Fprintf(f.out, "eligible=%t\tentries=%d\tmin_entries=%d\treason=%s\n",
			status.Eligible, status.EntryCount, status.MinEntries, status.Reason)
		return nil
	case FormatHuman:
		if status.Eligible {
			fmt.Fprintln(f.out, "Ready for an insight run")
		} else {
			fmt.Fprintf(f.out, "Not eligible: %s\n", status.Reason)
		}
		fmt.Fprintf(f.out, "Entries: %d (minimum %d)\n", status.EntryCount, status.MinEntries)
		if status.LastRun != nil {
			fmt.Fprintf(f.out, "Last run: %s\n", status.LastRun.RanAt.Format("2 Jan 2006"))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
