// Package index builds the page and block tables of a note corpus in a
// single scan. The resulting Index is immutable and safe for concurrent use.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// DefaultExtensions are the note file extensions indexed when none are configured.
var DefaultExtensions = []string{".md", ".org"}

// Options configures Build.
type Options struct {
	// Extensions lists the note file extensions to index.
	Extensions []string
	// InternalDir is a corpus-relative directory excluded from the primary scan.
	InternalDir string
	// BackupDir is a corpus-relative directory scanned after all primary files.
	// Its notes register pages and blocks but are never exported.
	BackupDir string
	// Exclude lists further corpus-relative directories to skip, such as an
	// output directory inside the corpus.
	Exclude []string
	// IncludeChildren appends nested lines to drawer-style block content.
	IncludeChildren bool
	Logger          *slog.Logger
}

// Index holds the page-name and block-id tables.
type Index struct {
	pages  map[string]models.Page // keyed by lowercase name
	blocks map[string]models.Block
	notes  []models.NoteFile
	backup []models.NoteFile
}

// Build walks the corpus once and registers every page and block. Primary
// files are visited in lexicographic path order, then backup files; the
// first registration of a page name or block id wins.
func Build(ctx context.Context, store storage.Provider, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	skip := append([]string(nil), opts.Exclude...)
	if opts.InternalDir != "" {
		skip = append(skip, opts.InternalDir)
	}
	if opts.BackupDir != "" {
		skip = append(skip, opts.BackupDir)
	}
	primary, err := store.List("", exts, skip...)
	if err != nil {
		return nil, fmt.Errorf("index: list corpus: %w", err)
	}

	var backup []models.NoteFile
	if opts.BackupDir != "" && store.Exists(opts.BackupDir) {
		backup, err = store.List(opts.BackupDir, exts)
		if err != nil {
			return nil, fmt.Errorf("index: list backup dir: %w", err)
		}
		for i := range backup {
			backup[i].Backup = true
		}
	}

	idx := &Index{
		pages:  make(map[string]models.Page),
		blocks: make(map[string]models.Block),
		notes:  primary,
		backup: backup,
	}

	files := make([]models.NoteFile, 0, len(primary)+len(backup))
	files = append(files, primary...)
	files = append(files, backup...)

	dupes := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("index: read failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		dupes += idx.add(f, data, opts.IncludeChildren)
	}

	logger.Info("index: built",
		slog.Int("notes", len(primary)),
		slog.Int("backups", len(backup)),
		slog.Int("pages", len(idx.pages)),
		slog.Int("blocks", len(idx.blocks)),
		slog.Int("duplicate_ids", dupes))
	return idx, nil
}

// add registers the page and blocks of one file and returns the number of
// duplicate block ids dropped.
func (idx *Index) add(f models.NoteFile, data []byte, includeChildren bool) int {
	name := parser.PageName(f.Path)
	key := strings.ToLower(name)
	if _, ok := idx.pages[key]; !ok {
		idx.pages[key] = models.Page{Name: name, SourcePath: f.Path}
	}

	dupes := 0
	body := parser.Parse(data).Body
	for _, m := range parser.ScanBlocks(body, includeChildren) {
		if _, ok := idx.blocks[m.ID]; ok {
			dupes++
			continue
		}
		idx.blocks[m.ID] = models.Block{ID: m.ID, Content: m.Content, SourcePage: name}
	}
	return dupes
}

// Block returns the block registered under id. The id is matched
// case-insensitively.
func (idx *Index) Block(id string) (models.Block, bool) {
	b, ok := idx.blocks[strings.ToLower(strings.TrimSpace(id))]
	return b, ok
}

// Page returns the page registered under name, ignoring case.
func (idx *Index) Page(name string) (models.Page, bool) {
	p, ok := idx.pages[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Pages returns every page sorted by name.
func (idx *Index) Pages() []models.Page {
	out := make([]models.Page, 0, len(idx.pages))
	for _, p := range idx.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered blocks.
func (idx *Index) Len() int {
	return len(idx.blocks)
}

// Notes returns the primary (exportable) note files in corpus order.
func (idx *Index) Notes() []models.NoteFile {
	return idx.notes
}

// Backups returns the backup note files in scan order.
func (idx *Index) Backups() []models.NoteFile {
	return idx.backup
}

// Lookup returns the content of block id. It satisfies resolver.BlockTable.
func (idx *Index) Lookup(id string) (string, bool) {
	b, ok := idx.Block(id)
	return b.Content, ok
}

// NeedsConversion reports whether any primary note has one of exts.
func (idx *Index) NeedsConversion(exts []string) bool {
	for _, f := range idx.notes {
		e := strings.ToLower(path.Ext(f.Path))
		for _, x := range exts {
			if e == x {
				return true
			}
		}
	}
	return false
}
