package parser

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	caretRe      = regexp.MustCompile(`^(.*?)\s*\^(` + uuidPattern + `)\s*$`)
	drawerIDRe   = regexp.MustCompile(`(?i)^:id:\s*(` + uuidPattern + `)\s*$`)
	idPropRe     = regexp.MustCompile(`(?i)^(?:[-*+]\s+)?id::\s*(` + uuidPattern + `)\s*$`)
	propLineRe   = regexp.MustCompile(`^(?:[-*+]\s+)?[A-Za-z][A-Za-z0-9_-]*::(?:\s|$)`)
	orgHeadingRe = regexp.MustCompile(`^(\*+)\s+`)
	atxRe        = regexp.MustCompile(`^(#{1,6})\s+`)
	bulletRe     = regexp.MustCompile(`^([\t ]*)[-*+]\s+`)
	orderedRe    = regexp.MustCompile(`^\d+[.)]\s+`)
)

// Marker is one block registration found in a note body.
type Marker struct {
	ID      string // canonical lowercase UUID
	Content string
	Line    int // 1-based line of the block text
}

// ScanBlocks finds every block marker in body. Markers are returned in
// document order; duplicate ids within one body are all reported and the
// caller decides which registration wins.
//
// Two marker styles are recognized: a trailing "^uuid" on the block line,
// and a property drawer (":PROPERTIES:" ... ":END:" with ":id:", or a
// Logseq "id::" property line) following the block line. With
// includeChildren, deeper-nested lines after a drawer-style block are
// appended to its content until an outline item of equal or shallower depth.
func ScanBlocks(body string, includeChildren bool) []Marker {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var out []Marker
	anchor := -1 // last line that can own a property drawer

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			continue

		case strings.EqualFold(trimmed, ":PROPERTIES:"):
			end := i + 1
			id := ""
			for ; end < len(lines); end++ {
				t := strings.TrimSpace(lines[end])
				if strings.EqualFold(t, ":END:") {
					break
				}
				if m := drawerIDRe.FindStringSubmatch(t); m != nil && id == "" {
					id = m[1]
				}
			}
			if id != "" && anchor >= 0 {
				if mk, ok := newMarker(id, lines, anchor, end+1, includeChildren); ok {
					out = append(out, mk)
				}
			}
			i = end
			continue

		case idPropRe.MatchString(trimmed):
			m := idPropRe.FindStringSubmatch(trimmed)
			if anchor >= 0 {
				if mk, ok := newMarker(m[1], lines, anchor, i+1, includeChildren); ok {
					out = append(out, mk)
				}
			}
			continue

		case propLineRe.MatchString(trimmed):
			// Other block properties sit between the block and its id.
			continue
		}

		if m := caretRe.FindStringSubmatch(line); m != nil {
			text := StripMarkup(m[1])
			lineNo := i
			if text == "" && anchor >= 0 {
				// A marker on its own line labels the preceding block.
				text = StripMarkup(lines[anchor])
				lineNo = anchor
			}
			if id, ok := canonicalID(m[2]); ok && text != "" {
				out = append(out, Marker{ID: id, Content: text, Line: lineNo + 1})
			}
			if strings.TrimSpace(m[1]) != "" {
				anchor = i
			}
			continue
		}
		anchor = i
	}
	return out
}

func newMarker(rawID string, lines []string, anchor, next int, includeChildren bool) (Marker, bool) {
	id, ok := canonicalID(rawID)
	if !ok {
		return Marker{}, false
	}
	content := StripMarkup(lines[anchor])
	if includeChildren {
		if depth, outline := Depth(lines[anchor]); outline {
			if children := collectChildren(lines, next, depth); len(children) > 0 {
				content = content + "\n" + strings.Join(children, "\n")
			}
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Marker{}, false
	}
	return Marker{ID: id, Content: content, Line: anchor + 1}, true
}

// collectChildren gathers lines after start nested deeper than depth.
func collectChildren(lines []string, start, depth int) []string {
	var out []string
	inDrawer := false
	for i := start; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		switch {
		case inDrawer:
			if strings.EqualFold(t, ":END:") {
				inDrawer = false
			}
			continue
		case strings.EqualFold(t, ":PROPERTIES:"):
			inDrawer = true
			continue
		case t == "" || propLineRe.MatchString(t):
			continue
		}
		if d, outline := Depth(lines[i]); outline && d <= depth {
			break
		}
		if s := StripMarkup(caretRe.ReplaceAllString(lines[i], "$1")); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Depth returns the outline nesting depth of a line: the star count of an
// org heading, the hash count of a Markdown heading, or the indentation
// level plus one of a list item. outline is false for any other line.
func Depth(line string) (depth int, outline bool) {
	if m := orgHeadingRe.FindStringSubmatch(line); m != nil {
		return len(m[1]), true
	}
	if m := atxRe.FindStringSubmatch(line); m != nil {
		return len(m[1]), true
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		level := 0
		spaces := 0
		for _, r := range m[1] {
			if r == '\t' {
				level++
			} else {
				spaces++
			}
		}
		return level + spaces/2 + 1, true
	}
	return 0, false
}

// StripMarkup removes leading heading and list markup from a line.
func StripMarkup(line string) string {
	s := strings.TrimSpace(line)
	for _, re := range []*regexp.Regexp{orgHeadingRe, atxRe, bulletRe, orderedRe} {
		if loc := re.FindStringIndex(s); loc != nil {
			s = s[loc[1]:]
			break
		}
	}
	return strings.TrimSpace(s)
}

func canonicalID(raw string) (string, bool) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
