package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/assets"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/convert"
	"github.com/starford/ansuz/internal/enex"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/resolver"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tags"
)

// result is the outcome of processing one note.
type result struct {
	file   models.NoteFile
	note   *models.ResolvedNote
	status string
	err    error
	// output is the assembled ENEX record (container) or Markdown document (folder).
	output   []byte
	checksum string
	extra    []models.Diagnostic
}

func (r *result) diags() []models.Diagnostic {
	if r.note == nil {
		return r.extra
	}
	return append(append([]models.Diagnostic(nil), r.note.Diagnostics...), r.extra...)
}

func (r *result) warnings() int {
	return len(r.diags())
}

// pipeline holds the shared read-only components of one run.
type pipeline struct {
	opts      Options
	store     storage.Provider
	idx       *index.Index
	resolver  *resolver.Resolver
	extractor tags.Extractor
	assets    *assets.Resolver
	conv      convert.Converter
	renderer  *convert.Renderer
}

func newPipeline(e *Exporter, idx *index.Index, conv convert.Converter, exclude []string) *pipeline {
	mode := assets.Container
	if e.opts.Format == FormatFolder {
		mode = assets.Folder
	}
	p := &pipeline{
		opts:      e.opts,
		store:     e.store,
		idx:       idx,
		resolver:  resolver.New(idx, resolver.Options{MaxExpansions: e.opts.MaxExpansions}),
		extractor: tags.Extractor{IsTag: e.predicate},
		assets:    assets.New(e.store.Root(), mode, exclude...),
		conv:      conv,
	}
	if e.opts.Format == FormatContainer {
		p.renderer = convert.NewRenderer(convert.RenderOptions{HighlightCode: e.opts.HighlightCode})
	}
	return p
}

// process runs one note through expansion, tag extraction, conversion,
// asset resolution, page-link rendering and assembly.
func (p *pipeline) process(ctx context.Context, f models.NoteFile) *result {
	res := &result{file: f, status: manifest.StatusOK}
	if err := ctx.Err(); err != nil {
		res.status, res.err = manifest.StatusFailed, err
		return res
	}

	abs, err := p.store.Abs(f.Path)
	if err != nil {
		res.status, res.err = manifest.StatusFailed, fmt.Errorf("%w: %v", apperr.ErrIO, err)
		return res
	}

	note := &models.ResolvedNote{SourcePath: f.Path}
	var meta parser.Meta
	var text string
	var diags []models.Diagnostic

	needsConv := convert.NeedsConversion(f.Path)
	binary := convert.IsBinaryFormat(f.Path)
	if !binary {
		data, err := os.ReadFile(abs)
		if err != nil {
			res.status, res.err = manifest.StatusFailed, fmt.Errorf("%w: %v", apperr.ErrIO, err)
			return res
		}
		parsed := parser.Parse(data)
		meta = parsed.Meta
		note.Title = parsed.Title
		text = parsed.Body
	}

	var mediaDir string
	if needsConv {
		work, err := os.MkdirTemp("", "ansuz-convert-*")
		if err != nil {
			res.status, res.err = manifest.StatusFailed, fmt.Errorf("%w: %v", apperr.ErrIO, err)
			return res
		}
		defer os.RemoveAll(work)
		mediaDir = filepath.Join(work, "media")

		src := abs
		var preTags []string
		if !binary {
			expanded, d := p.resolver.Expand(text)
			diags = append(diags, d...)
			preTags = p.extractor.Extract(expanded)
			src = filepath.Join(work, "note"+strings.ToLower(filepath.Ext(f.Path)))
			if err := os.WriteFile(src, []byte(expanded), 0o600); err != nil {
				res.status, res.err = manifest.StatusFailed, fmt.Errorf("%w: %v", apperr.ErrIO, err)
				return res
			}
			text = expanded
		}

		var md string
		if p.conv == nil {
			err = fmt.Errorf("%w: no converter for %s", apperr.ErrDependencyMissing, filepath.Ext(f.Path))
		} else {
			md, err = p.conv.Convert(ctx, src, mediaDir)
		}
		switch {
		case err == nil:
			text = md
		case p.opts.OnFailure == convert.OnFailureFallback && !binary:
			diags = append(diags, models.Diagnostic{Err: apperr.ErrConversion, Ref: f.Path, Message: "converter failed, using source text"})
		default:
			res.status, res.err = manifest.StatusSkipped, err
			res.extra = diags
			return res
		}
		if binary {
			expanded, d := p.resolver.Expand(text)
			diags = append(diags, d...)
			text = expanded
			preTags = p.extractor.Extract(text)
		}
		note.Tags = tags.Merge(meta.TagList(), preTags)
	} else {
		expanded, d := p.resolver.Expand(text)
		diags = append(diags, d...)
		text = expanded
		note.Tags = tags.Merge(meta.TagList(), p.extractor.Extract(text))
	}

	dirs := []string{filepath.Dir(abs)}
	if mediaDir != "" {
		dirs = append([]string{mediaDir}, dirs...)
	}
	scope := assets.NewScope()
	text, d := p.assets.Resolve(text, dirs, scope)
	diags = append(diags, d...)
	note.Resources = scope.Resources()

	note.Body = p.resolver.Finish(text)
	note.Diagnostics = diags
	p.fillMeta(note, meta, f)
	res.note = note

	if p.opts.Format == FormatContainer {
		xhtml, err := p.renderer.Render(note.Body)
		if err != nil {
			res.status, res.err = manifest.StatusFailed, fmt.Errorf("%w: %v", apperr.ErrConversion, err)
			return res
		}
		res.output = enex.Assemble(note, xhtml)
	} else {
		doc, err := markdownDocument(note)
		if err != nil {
			res.status, res.err = manifest.StatusFailed, err
			return res
		}
		res.output = doc
	}
	res.checksum = outputChecksum(res.output, note.Resources)
	return res
}

// fillMeta sets the title and timestamps from front matter, the page name
// and the file modification time.
func (p *pipeline) fillMeta(note *models.ResolvedNote, meta parser.Meta, f models.NoteFile) {
	name := parser.PageName(f.Path)
	if note.Title == "" {
		if p.opts.Mode == ModeLinked {
			note.Title = name
		} else {
			base := path.Base(f.Path)
			note.Title = strings.TrimSuffix(base, path.Ext(base))
		}
	}

	if t, ok := meta.CreatedAt(); ok {
		note.CreatedAt = t
	} else if t, ok := parser.JournalDate(name); ok && p.opts.Mode == ModeLinked {
		note.CreatedAt = t
	} else {
		note.CreatedAt = f.UpdatedAt
	}
	if t, ok := meta.UpdatedAt(); ok {
		note.UpdatedAt = t
	} else {
		note.UpdatedAt = f.UpdatedAt
	}
}

type frontMatter struct {
	Title   string   `yaml:"title"`
	Tags    []string `yaml:"tags,omitempty"`
	Created string   `yaml:"created,omitempty"`
	Updated string   `yaml:"updated,omitempty"`
	Source  string   `yaml:"source"`
}

// markdownDocument renders a folder-mode note: YAML front matter then body.
func markdownDocument(note *models.ResolvedNote) ([]byte, error) {
	fm := frontMatter{Title: note.Title, Tags: note.Tags, Source: note.SourcePath}
	if !note.CreatedAt.IsZero() {
		fm.Created = note.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !note.UpdatedAt.IsZero() {
		fm.Updated = note.UpdatedAt.UTC().Format(time.RFC3339)
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("export: marshal front matter: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	b.WriteString(note.Body)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func outputChecksum(doc []byte, resources []*models.Resource) string {
	var b bytes.Buffer
	b.Write(doc)
	for _, r := range resources {
		b.WriteString("\x00")
		b.WriteString(r.Digest)
	}
	return checksum.Sum(b.Bytes())
}
