// Package tags extracts note tags from link, hashtag, property and header
// syntaxes and maps hierarchical tags to directory paths.
package tags

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// inlineRe matches "[[x]]", "#[[x]]", "![[x]]" and "#token" in one pass
	// so hits come back in document order.
	inlineRe    = regexp.MustCompile(`(!?)(#?)\[\[([^\[\]\n]+)\]\]|#([\p{L}\p{N}_\-/]+)`)
	propertyRe  = regexp.MustCompile(`(?i)^(?:[-*+]\s+)?\+?tags::\s*(.*)$`)
	headerRe    = regexp.MustCompile(`(?i)^#\+tags:\s*(.*)$`)
	fileTagsRe  = regexp.MustCompile(`(?i)^#\+filetags:\s*(.*)$`)
	bracketRe   = regexp.MustCompile(`\[\[([^\[\]\n]+)\]\]`)
	inlineCode  = regexp.MustCompile("`[^`\n]*`")
	fenceOpenRe = regexp.MustCompile("^\\s*(```|~~~)")
)

// LinkPredicate decides whether the target of a bracket link is a tag.
type LinkPredicate func(target string) bool

// DefaultLinkPredicate treats hierarchical targets ("a/b") and single
// whitespace-free tokens as tags. Multi-word targets are page links.
func DefaultLinkPredicate(target string) bool {
	return strings.Contains(target, "/") || !strings.ContainsFunc(target, unicode.IsSpace)
}

// Extractor extracts tags. The zero value uses DefaultLinkPredicate.
type Extractor struct {
	IsTag LinkPredicate
}

// Extract returns the tags of content with the default predicate.
func Extract(content string) []string {
	return Extractor{}.Extract(content)
}

// Extract returns the unique tags of content in first-seen order.
func (e Extractor) Extract(content string) []string {
	isTag := e.IsTag
	if isTag == nil {
		isTag = DefaultLinkPredicate
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(t string) {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" {
			return
		}
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	fence := ""
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if m := fenceOpenRe.FindStringSubmatch(line); m != nil {
			switch {
			case fence == "":
				fence = m[1]
			case m[1] == fence:
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		if m := headerRe.FindStringSubmatch(trimmed); m != nil {
			for _, t := range splitList(m[1]) {
				add(t)
			}
			continue
		}
		if m := fileTagsRe.FindStringSubmatch(trimmed); m != nil {
			for _, t := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ':' || unicode.IsSpace(r) }) {
				add(t)
			}
			continue
		}
		if m := propertyRe.FindStringSubmatch(trimmed); m != nil {
			for _, t := range propertyTags(m[1]) {
				add(t)
			}
			continue
		}

		scan := inlineCode.ReplaceAllStringFunc(line, func(s string) string {
			return strings.Repeat(" ", len(s))
		})
		for _, loc := range inlineRe.FindAllStringSubmatchIndex(scan, -1) {
			if loc[6] >= 0 {
				// Bracket link.
				if loc[3] > loc[2] {
					continue // "![[...]]" is an embed
				}
				target := scan[loc[6]:loc[7]]
				if before, _, ok := strings.Cut(target, "|"); ok {
					target = before
				}
				target = strings.TrimSpace(target)
				if target != "" && isTag(target) {
					add(target)
				}
				continue
			}
			if loc[0] > 0 && !hashBoundary(scan[:loc[0]]) {
				continue
			}
			add(strings.TrimRight(scan[loc[8]:loc[9]], "/"))
		}
	}
	return out
}

// hashBoundary reports whether a "#" following prefix starts a hashtag.
func hashBoundary(prefix string) bool {
	r, _ := utf8.DecodeLastRuneInString(prefix)
	switch {
	case r == '&' || r == '#' || r == '/':
		return false
	case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
		return false
	}
	return true
}

// propertyTags unions the bracket tokens and the comma list of a
// "tags::" property value.
func propertyTags(value string) []string {
	var out []string
	for _, m := range bracketRe.FindAllStringSubmatch(value, -1) {
		out = append(out, m[1])
	}
	rest := bracketRe.ReplaceAllString(value, ",")
	return append(out, splitList(rest)...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Merge appends the tags of extra not already in base, preserving order.
func Merge(base []string, extra ...[]string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base))
	for _, list := range append([][]string{base}, extra...) {
		for _, t := range list {
			if _, dup := seen[t]; dup || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// ToPath maps a hierarchical tag to a relative directory path. Segments
// are split on "/", trimmed, stripped of filesystem-illegal and control
// characters (each replaced with "-"), and whitespace runs collapse to one
// space. Empty and dot-only segments are dropped.
func ToPath(tag string) string {
	var segs []string
	for _, seg := range strings.Split(tag, "/") {
		if s := sanitizeSegment(seg); s != "" {
			segs = append(segs, s)
		}
	}
	return filepath.Join(segs...)
}

// SanitizeName applies the ToPath segment rules to a single file or
// directory name.
func SanitizeName(name string) string {
	return sanitizeSegment(strings.ReplaceAll(name, "/", "-"))
}

func sanitizeSegment(seg string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(seg) {
		switch {
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
			}
			space = true
		case strings.ContainsRune(`<>:"\|?*`, r) || unicode.IsControl(r):
			b.WriteRune('-')
			space = false
		default:
			b.WriteRune(r)
			space = false
		}
	}
	s := strings.TrimRight(b.String(), " .")
	if strings.Trim(s, ".") == "" {
		return ""
	}
	return s
}
