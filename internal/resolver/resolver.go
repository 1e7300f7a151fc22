// Package resolver rewrites block embeds, block references and page links
// in note text using an immutable block table.
package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Expansion bounds for bare block references.
const (
	DefaultMaxExpansions = 20
	MinExpansions        = 1
	MaxExpansions        = 100
)

const idPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	embedBlockRe = regexp.MustCompile(`\{\{embed\s+\(\(\s*(` + idPattern + `)\s*\)\)\s*\}\}`)
	blockRefRe   = regexp.MustCompile(`\(\(\s*(` + idPattern + `)\s*\)\)`)
)

// BlockTable looks up block content by id.
type BlockTable interface {
	Lookup(id string) (string, bool)
}

// Options configures a Resolver.
type Options struct {
	// MaxExpansions bounds block reference substitutions per text. Zero
	// selects DefaultMaxExpansions; values are clamped to 1..100.
	MaxExpansions int
}

// Resolver expands placeholders against a block table. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	blocks BlockTable
	max    int
}

// New returns a Resolver over blocks.
func New(blocks BlockTable, opts Options) *Resolver {
	return &Resolver{blocks: blocks, max: ClampExpansions(opts.MaxExpansions)}
}

// ClampExpansions normalizes a configured expansion bound.
func ClampExpansions(n int) int {
	switch {
	case n == 0:
		return DefaultMaxExpansions
	case n < MinExpansions:
		return MinExpansions
	case n > MaxExpansions:
		return MaxExpansions
	}
	return n
}

// NotFoundMarker is the inline text substituted for an unknown block id.
func NotFoundMarker(id string) string {
	return "(block not found: " + id + ")"
}

// Resolve runs Expand followed by Finish.
func (r *Resolver) Resolve(text string) (string, []models.Diagnostic) {
	out, diags := r.Expand(text)
	return r.Finish(out), diags
}

// Expand substitutes block embeds in a single pass, then bare block
// references one at a time, rescanning from the start after each
// substitution. Page links are left untouched.
func (r *Resolver) Expand(text string) (string, []models.Diagnostic) {
	var diags []models.Diagnostic
	text = r.expandEmbeds(text, &diags)

	for n := 0; ; n++ {
		loc := blockRefRe.FindStringSubmatchIndex(text)
		if loc == nil {
			break
		}
		if n >= r.max {
			diags = append(diags, models.Diagnostic{
				Err:     apperr.ErrDepthExceeded,
				Ref:     text[loc[2]:loc[3]],
				Message: fmt.Sprintf("stopped after %d block reference expansions", r.max),
			})
			break
		}
		id := text[loc[2]:loc[3]]
		text = text[:loc[0]] + r.lookup(id, &diags) + text[loc[1]:]
	}
	return text, diags
}

func (r *Resolver) expandEmbeds(text string, diags *[]models.Diagnostic) string {
	matches := embedBlockRe.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		b.WriteString(r.lookup(text[m[2]:m[3]], diags))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func (r *Resolver) lookup(id string, diags *[]models.Diagnostic) string {
	if content, ok := r.blocks.Lookup(strings.ToLower(id)); ok {
		return content
	}
	*diags = append(*diags, models.Diagnostic{
		Err:     apperr.ErrMissingReference,
		Ref:     id,
		Message: "unknown block id",
	})
	return NotFoundMarker(id)
}

// Finish renders page links as emphasis and applies the cleanup pass.
func (r *Resolver) Finish(text string) string {
	return Cleanup(RenderPageLinks(text))
}
