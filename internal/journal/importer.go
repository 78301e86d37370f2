package journal

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/microcosm-cc/bluemonday"
)

// ImportedEntry is one journal entry parsed from a Markdown file.
type ImportedEntry struct {
	Title     string
	Body      string
	EntryDate time.Time
	Source    string // originating file path
}

// frontMatter is the optional TOML block between +++ fences at the top
// of a Markdown file.
type frontMatter struct {
	Title string `toml:"title"`
	Date  string `toml:"date"`
}

var datePrefixRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// Importer reads Markdown journal files from disk. Bodies are stripped
// of any HTML since entries are stored and prompted as plain text.
type Importer struct {
	policy *bluemonday.Policy
}

func NewImporter() *Importer {
	return &Importer{policy: bluemonday.StrictPolicy()}
}

// ImportPath imports a single .md file, or every .md file in a
// directory (non-recursive). Files that fail to parse are skipped and
// reported in errs; the rest still import.
func (im *Importer) ImportPath(path string) (entries []ImportedEntry, errs []error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, []error{fmt.Errorf("stat %s: %w", path, err)}
	}

	if !info.IsDir() {
		entry, err := im.ImportFile(path)
		if err != nil {
			return nil, []error{err}
		}
		return []ImportedEntry{*entry}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.md"))
	if err != nil {
		return nil, []error{fmt.Errorf("glob %s: %w", path, err)}
	}
	for _, f := range files {
		entry, err := im.ImportFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, errs
}

// ImportFile parses one Markdown file into an entry.
func (im *Importer) ImportFile(path string) (*ImportedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fm, body := splitFrontMatter(string(data))

	var meta frontMatter
	if fm != "" {
		if _, err := toml.Decode(fm, &meta); err != nil {
			return nil, fmt.Errorf("parse front matter in %s: %w", path, err)
		}
	}

	entry := &ImportedEntry{
		Title:  meta.Title,
		Body:   im.cleanBody(body),
		Source: path,
	}
	if entry.Body == "" {
		return nil, fmt.Errorf("no content in %s", path)
	}

	if entry.Title == "" {
		entry.Title = firstHeading(body)
	}

	entry.EntryDate, err = resolveDate(meta.Date, path)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// splitFrontMatter separates a leading +++ TOML block from the body.
// Files without a block return ("", whole file).
func splitFrontMatter(content string) (fm, body string) {
	const fence = "+++"
	trimmed := strings.TrimLeft(content, "\uFEFF\n\r")
	if !strings.HasPrefix(trimmed, fence) {
		return "", content
	}
	rest := trimmed[len(fence):]
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return "", content
	}
	fm = strings.TrimSpace(rest[:end])
	body = rest[end+len(fence)+1:]
	return fm, body
}

// cleanBody strips HTML tags and entities, leaving plain text Markdown.
func (im *Importer) cleanBody(body string) string {
	sanitized := im.policy.Sanitize(body)
	return strings.TrimSpace(html.UnescapeString(sanitized))
}

// firstHeading returns the text of the first # heading, or "".
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}
	return ""
}

// resolveDate picks the entry date: front matter first, then a
// YYYY-MM-DD filename prefix, then file modification time.
func resolveDate(fmDate, path string) (time.Time, error) {
	if fmDate != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, fmDate); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q in %s", fmDate, path)
	}

	base := filepath.Base(path)
	if m := datePrefixRe.FindStringSubmatch(base); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			return t, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}
