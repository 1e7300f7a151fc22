// Package export runs the per-note pipeline over an indexed corpus and
// writes either one ENEX container or a folder tree of Markdown files.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/convert"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tags"
)

// Corpus modes.
const (
	ModeLinked  = "linked"
	ModeGeneric = "generic"
)

// Output formats.
const (
	FormatContainer = "container"
	FormatFolder    = "folder"
)

// Placement policies for tag-derived folders.
const (
	PlacementFirst = "first"
	PlacementAll   = "all"
)

// DefaultExtensions returns the note extensions indexed for mode when none
// are configured. A generic directory may also hold documents the
// converter understands.
func DefaultExtensions(mode string) []string {
	exts := append([]string(nil), index.DefaultExtensions...)
	if mode == ModeGeneric {
		exts = append(exts, convert.Extensions()...)
	}
	return exts
}

// Options configures an export run.
type Options struct {
	Mode   string
	Format string
	// Output is the container file path or the folder export root.
	Output    string
	Placement string
	Workers   int
	// Incremental skips folder writes whose content is unchanged since the
	// previous run recorded in the manifest.
	Incremental     bool
	MaxExpansions   int
	IncludeChildren bool
	Extensions      []string
	InternalDir     string
	BackupDir       string

	OnFailure        string
	ConverterBinary  string
	ConverterTimeout time.Duration
	HighlightCode    bool

	Application string
	Version     string
}

// Event reports the outcome of one note.
type Event struct {
	Source   string `json:"source"`
	Status   string `json:"status"`
	Warnings int    `json:"warnings"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
}

// ProgressFunc receives one Event per note, in corpus order.
type ProgressFunc func(Event)

// Summary totals an export run.
type Summary struct {
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Unchanged  int           `json:"unchanged"`
	Warnings   int           `json:"warnings"`
	Resources  int           `json:"resources"`
	PrunedDirs int           `json:"pruned_dirs"`
	Output     string        `json:"output"`
	Duration   time.Duration `json:"duration"`
}

// Log writes the summary as one structured record.
func (s *Summary) Log(logger *slog.Logger) {
	logger.Info("export: finished",
		slog.Int("total", s.Total),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int("unchanged", s.Unchanged),
		slog.Int("warnings", s.Warnings),
		slog.Int("resources", s.Resources),
		slog.String("output", s.Output),
		slog.Duration("duration", s.Duration))
}

// Exporter runs exports of one corpus. Run may be called repeatedly.
type Exporter struct {
	store     storage.Provider
	opts      Options
	conv      convert.Converter
	manifest  manifest.Store
	logger    *slog.Logger
	progress  ProgressFunc
	now       func() time.Time
	predicate tags.LinkPredicate
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithConverter sets the converter instead of looking up pandoc.
func WithConverter(c convert.Converter) Option {
	return func(e *Exporter) { e.conv = c }
}

// WithManifest records every note outcome in m.
func WithManifest(m manifest.Store) Option {
	return func(e *Exporter) { e.manifest = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithProgress registers a per-note progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Exporter) { e.progress = fn }
}

// WithClock overrides the time source used for the export date.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLinkPredicate replaces the bracket-link tag heuristic.
func WithLinkPredicate(p tags.LinkPredicate) Option {
	return func(e *Exporter) { e.predicate = p }
}

// New returns an Exporter for the corpus in store.
func New(store storage.Provider, opts Options, options ...Option) *Exporter {
	e := &Exporter{store: store, opts: normalize(opts), now: time.Now}
	for _, o := range options {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func normalize(o Options) Options {
	if o.Mode == "" {
		o.Mode = ModeLinked
	}
	if o.Format == "" {
		o.Format = FormatContainer
	}
	if o.Placement == "" {
		o.Placement = PlacementFirst
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.OnFailure == "" {
		o.OnFailure = convert.OnFailureSkip
	}
	if o.Application == "" {
		o.Application = "ansuz"
	}
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions(o.Mode)
	}
	if o.Mode == ModeGeneric {
		o.InternalDir = ""
		o.BackupDir = ""
	}
	return o
}

// Run indexes the corpus, processes every primary note and writes the
// output. Per-note failures are counted in the Summary and never abort the
// run; only pre-flight failures and output errors are returned.
func (e *Exporter) Run(ctx context.Context) (*Summary, error) {
	start := e.now()
	opts := e.opts

	idxOpts := index.Options{
		Extensions:      opts.Extensions,
		InternalDir:     opts.InternalDir,
		BackupDir:       opts.BackupDir,
		IncludeChildren: opts.IncludeChildren,
		Logger:          e.logger,
	}
	if rel, ok := within(e.store.Root(), opts.Output); ok {
		idxOpts.Exclude = append(idxOpts.Exclude, rel)
	}
	idx, err := index.Build(ctx, e.store, idxOpts)
	if err != nil {
		return nil, err
	}

	conv := e.conv
	if conv == nil && idx.NeedsConversion(convert.Extensions()) {
		p, err := convert.NewPandoc(opts.ConverterBinary, opts.ConverterTimeout)
		if err != nil {
			return nil, err
		}
		conv = p
	}

	sk, err := e.newSink(start)
	if err != nil {
		return nil, err
	}

	p := newPipeline(e, idx, conv, idxOpts.Exclude)
	notes := idx.Notes()
	sum := &Summary{Total: len(notes), Output: sk.location()}

	slots := make([]chan *result, len(notes))
	for i := range slots {
		slots[i] = make(chan *result, 1)
	}

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- e.consume(ctx, slots, sk, sum)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, f := range notes {
		g.Go(func() error {
			slots[i] <- p.process(gctx, f)
			return nil
		})
	}
	_ = g.Wait()

	if err := <-writeErr; err != nil {
		sk.abort()
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		sk.abort()
		return sum, err
	}
	pruned, err := sk.close()
	if err != nil {
		return sum, err
	}
	sum.PrunedDirs = pruned

	if e.manifest != nil {
		keep := make(map[string]struct{}, len(notes))
		for _, f := range notes {
			keep[f.Path] = struct{}{}
		}
		if n, err := e.manifest.Prune(keep); err != nil {
			e.logger.Warn("export: manifest prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			e.logger.Debug("export: manifest pruned", slog.Int("removed", n))
		}
	}

	sum.Duration = e.now().Sub(start)
	return sum, nil
}

// consume records results in corpus order through the single writer.
func (e *Exporter) consume(ctx context.Context, slots []chan *result, sk sink, sum *Summary) error {
	for i, ch := range slots {
		res := <-ch
		if err := e.record(ctx, res, sk, sum); err != nil {
			// Drain the remaining slots so workers never block.
			for _, rest := range slots[i+1:] {
				<-rest
			}
			return err
		}
		if e.progress != nil {
			e.progress(Event{
				Source:   res.file.Path,
				Status:   res.status,
				Warnings: res.warnings(),
				Done:     i + 1,
				Total:    len(slots),
			})
		}
	}
	return nil
}

func (e *Exporter) record(_ context.Context, res *result, sk sink, sum *Summary) error {
	logger := e.logger.With(slog.String("source", res.file.Path))
	for _, d := range res.diags() {
		logger.Warn("export: "+d.Message,
			slog.String("kind", d.Err.Error()),
			slog.String("ref", d.Ref))
	}
	sum.Warnings += res.warnings()

	entry := manifest.Entry{Source: res.file.Path, Status: res.status, Warnings: res.warnings()}
	if res.note != nil {
		entry.Title = res.note.Title
		entry.Tags = res.note.Tags
		entry.Body = res.note.Body
		entry.Checksum = res.checksum
	}

	switch {
	case res.err != nil:
		if res.status == manifest.StatusSkipped {
			sum.Skipped++
			logger.Warn("export: note skipped", slog.String("error", res.err.Error()))
		} else {
			sum.Failed++
			logger.Warn("export: note failed", slog.String("error", res.err.Error()))
		}
		entry.Error = res.err.Error()

	default:
		outputs, unchanged, err := sk.write(res)
		if err != nil {
			if !errors.Is(err, apperr.ErrIO) {
				return err
			}
			sum.Failed++
			entry.Status = manifest.StatusFailed
			entry.Error = err.Error()
			res.status = manifest.StatusFailed
			logger.Warn("export: write failed", slog.String("error", err.Error()))
			break
		}
		entry.Outputs = outputs
		sum.Resources += len(res.note.Resources)
		if unchanged {
			sum.Unchanged++
			entry.Status = manifest.StatusUnchanged
			res.status = manifest.StatusUnchanged
		} else {
			sum.Succeeded++
		}
		logger.Debug("export: note written",
			slog.String("status", res.status),
			slog.Int("outputs", len(outputs)))
	}

	if e.manifest != nil {
		if err := e.manifest.Upsert(entry); err != nil {
			logger.Warn("export: manifest update failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// within reports whether p lies inside root and returns its relative path.
func within(root, p string) (string, bool) {
	if p == "" {
		return "", false
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (e *Exporter) newSink(start time.Time) (sink, error) {
	switch e.opts.Format {
	case FormatFolder:
		return newFolderSink(e.opts, e.manifest)
	case FormatContainer:
		return newContainerSink(e.opts, start)
	}
	return nil, fmt.Errorf("export: unknown format %q", e.opts.Format)
}
