// Package parser extracts front matter, page names, and block markers from
// outline-style note files.
package parser

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/adrg/frontmatter"
)

var (
	pagePropRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*)::\s*(.*)$`)
	orgTitleRe  = regexp.MustCompile(`(?i)^#\+title:\s*(.+)$`)
	journalRe   = regexp.MustCompile(`^(\d{4})[_-](\d{2})[_-](\d{2})$`)
	bomPrefix   = "\ufeff"
	namespaceFS = "___"
	noteExts    = map[string]struct{}{".md": {}, ".markdown": {}, ".org": {}}
)

// Meta holds the note-level fields read from front matter or page properties.
type Meta struct {
	Title   string `yaml:"title" toml:"title" json:"title"`
	Tags    any    `yaml:"tags" toml:"tags" json:"tags"`
	Created any    `yaml:"created" toml:"created" json:"created"`
	Date    any    `yaml:"date" toml:"date" json:"date"`
	Updated any    `yaml:"updated" toml:"updated" json:"updated"`
}

// Result holds the output of parsing a note file.
type Result struct {
	Meta Meta
	Body string
	// Title is the front matter or page-property title, empty when absent.
	Title string
}

// Parse splits front matter (YAML, TOML or JSON) from the body and reads
// page-level title properties. Malformed front matter is treated as body.
func Parse(data []byte) *Result {
	data = bytes.TrimPrefix(data, []byte(bomPrefix))

	var meta Meta
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		// Invalid front matter: keep everything as body.
		return &Result{Body: string(data), Title: deriveTitle(Meta{}, string(data))}
	}
	b := string(body)
	return &Result{
		Meta:  meta,
		Body:  b,
		Title: deriveTitle(meta, b),
	}
}

// TagList returns the front matter tags as a string slice. Both list and
// comma-separated scalar forms are accepted.
func (m Meta) TagList() []string {
	var out []string
	switch v := m.Tags.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// CreatedAt returns the created (or date) field, if it parses.
func (m Meta) CreatedAt() (time.Time, bool) {
	if t, ok := asTime(m.Created); ok {
		return t, true
	}
	return asTime(m.Date)
}

// UpdatedAt returns the updated field, if it parses.
func (m Meta) UpdatedAt() (time.Time, bool) {
	return asTime(m.Updated)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// deriveTitle returns the front matter title if present, otherwise a
// leading "title::" page property or "#+title:" header line.
func deriveTitle(meta Meta, body string) string {
	if t := strings.TrimSpace(meta.Title); t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := orgTitleRe.FindStringSubmatch(trimmed); m != nil {
			return strings.TrimSpace(m[1])
		}
		if strings.HasPrefix(trimmed, "#+") {
			continue
		}
		m := pagePropRe.FindStringSubmatch(trimmed)
		if m == nil {
			// Page properties only appear before the first block.
			break
		}
		if strings.EqualFold(m[1], "title") {
			return strings.TrimSpace(m[2])
		}
	}
	return ""
}

// PageName derives the page name from a note path: the base name without
// extension, with namespace encodings ("___" and "%2F") decoded to "/".
func PageName(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	name := strings.TrimSuffix(base, path.Ext(base))
	name = strings.ReplaceAll(name, namespaceFS, "/")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}

// IsPageTarget reports whether the target of a "![[...]]" embed names a
// page rather than a file: it has no file extension or a note extension.
func IsPageTarget(target string) bool {
	target, _, _ = strings.Cut(target, "|")
	ext := strings.ToLower(path.Ext(strings.TrimSpace(target)))
	if ext == "" || strings.ContainsFunc(ext, unicode.IsSpace) {
		return true
	}
	_, note := noteExts[ext]
	return note
}

// JournalDate parses journal page names such as "2024_01_15".
func JournalDate(name string) (time.Time, bool) {
	m := journalRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
