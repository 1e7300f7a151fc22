package resolver

import (
	"regexp"
	"strings"
)

var (
	drawerRe    = regexp.MustCompile(`(?ims)^[ \t]*:PROPERTIES:[ \t]*\n.*?^[ \t]*:END:[ \t]*(?:\n|$)`)
	flagLineRe  = regexp.MustCompile(`(?im)^[ \t]*(?:[-*+][ \t]+)?(?:collapsed|heading|id)::.*(?:\n|$)`)
	caretIDRe   = regexp.MustCompile(`[ \t]*\^` + idPattern + `[ \t]*$`)
	clozeRe     = regexp.MustCompile(`\{\{cloze\s+(.*?)\s*\}\}`)
	blankRunsRe = regexp.MustCompile(`\n(?:[ \t]*\n){3,}`)
)

// Cleanup strips a leading byte-order mark, property drawers, collapsed,
// heading and id property lines and trailing caret ids. Cloze markup
// becomes emphasis, runs of three or more blank lines collapse to one, and
// the result is trimmed.
func Cleanup(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = drawerRe.ReplaceAllString(text, "")
	text = flagLineRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = caretIDRe.ReplaceAllString(l, "")
	}
	text = strings.Join(lines, "\n")

	text = clozeRe.ReplaceAllString(text, "*$1*")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
