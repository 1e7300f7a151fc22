package resolver

import (
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/parser"
)

const (
	embedOpen  = "{{embed"
	linkOpen   = "[["
	linkClose  = "]]"
	embedClose = "}}"
)

var fenceRe = regexp.MustCompile("^\\s*(```|~~~)")

// RenderPageLinks rewrites "[[Name]]", "#[[Name]]", "{{embed [[Name]]}}"
// and page transclusions "![[Name]]" to "*Name*", and "[[Name|Alias]]" to
// "*Alias*". File embeds "![[file.png]]", inline code spans and fenced
// code blocks are kept.
func RenderPageLinks(text string) string {
	if !strings.Contains(text, linkOpen) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))

	fence := ""
	for i := 0; i < len(text); {
		if i == 0 || text[i-1] == '\n' {
			line := text[i:]
			if j := strings.IndexByte(line, '\n'); j >= 0 {
				line = line[:j+1]
			}
			if m := fenceRe.FindStringSubmatch(line); m != nil {
				switch {
				case fence == "":
					fence = m[1]
				case m[1] == fence:
					fence = ""
				}
				b.WriteString(line)
				i += len(line)
				continue
			}
			if fence != "" {
				b.WriteString(line)
				i += len(line)
				continue
			}
		}

		switch {
		case text[i] == '`':
			n := codeSpanAt(text[i:])
			b.WriteString(text[i : i+n])
			i += n
			continue

		case strings.HasPrefix(text[i:], embedOpen):
			if name, n, ok := pageEmbedAt(text[i:]); ok {
				writeEmphasis(&b, name)
				i += n
				continue
			}

		case strings.HasPrefix(text[i:], "!"+linkOpen):
			if end := strings.Index(text[i+3:], linkClose); end >= 0 {
				if parser.IsPageTarget(text[i+3 : i+3+end]) {
					if name, n, ok := linkAt(text[i+1:]); ok {
						writeEmphasis(&b, name)
						i += 1 + n
						continue
					}
				}
				n := 3 + end + len(linkClose)
				b.WriteString(text[i : i+n])
				i += n
				continue
			}

		case strings.HasPrefix(text[i:], "#"+linkOpen):
			if name, n, ok := linkAt(text[i+1:]); ok {
				writeEmphasis(&b, name)
				i += 1 + n
				continue
			}

		case strings.HasPrefix(text[i:], linkOpen):
			if name, n, ok := linkAt(text[i:]); ok {
				writeEmphasis(&b, name)
				i += n
				continue
			}
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

// codeSpanAt returns the length of the inline code span opening at s[0],
// or the length of the backtick run when it has no closing run on the
// same line.
func codeSpanAt(s string) int {
	run := len(s) - len(strings.TrimLeft(s, "`"))
	for j := run; j < len(s) && s[j] != '\n'; {
		if s[j] != '`' {
			j++
			continue
		}
		k := j
		for k < len(s) && s[k] == '`' {
			k++
		}
		if k-j == run {
			return k
		}
		j = k
	}
	return run
}

// linkAt parses a "[[target]]" or "[[target|alias]]" at the start of s and
// returns the display text and consumed length.
func linkAt(s string) (string, int, bool) {
	if !strings.HasPrefix(s, linkOpen) {
		return "", 0, false
	}
	end := strings.Index(s[len(linkOpen):], linkClose)
	if end < 0 {
		return "", 0, false
	}
	inner := s[len(linkOpen) : len(linkOpen)+end]
	if strings.Contains(inner, linkOpen) || strings.ContainsAny(inner, "\n") {
		return "", 0, false
	}
	if _, alias, ok := strings.Cut(inner, "|"); ok {
		inner = alias
	}
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return "", 0, false
	}
	return inner, len(linkOpen) + end + len(linkClose), true
}

// pageEmbedAt parses "{{embed [[Name]]}}" at the start of s.
func pageEmbedAt(s string) (string, int, bool) {
	rest := strings.TrimLeft(s[len(embedOpen):], " \t")
	skipped := len(s) - len(rest)
	name, n, ok := linkAt(rest)
	if !ok {
		return "", 0, false
	}
	tail := rest[n:]
	trimmed := strings.TrimLeft(tail, " \t")
	if !strings.HasPrefix(trimmed, embedClose) {
		return "", 0, false
	}
	return name, skipped + n + (len(tail) - len(trimmed)) + len(embedClose), true
}

func writeEmphasis(b *strings.Builder, name string) {
	b.WriteByte('*')
	b.WriteString(name)
	b.WriteByte('*')
}
