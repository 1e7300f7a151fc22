// Package watch reports debounced batches of note file changes under a
// corpus root.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a batch of changes is reported.
const DefaultDebounce = 500 * time.Millisecond

// Options configures Watch.
type Options struct {
	// Extensions restricts reported files; empty reports every file.
	Extensions []string
	// Skip lists root-relative directories whose events are ignored.
	Skip     []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// ChangeFunc receives the sorted, root-relative slash paths changed since
// the previous batch.
type ChangeFunc func(ctx context.Context, changed []string)

// Watch starts an fsnotify watcher on root and calls onChange after each
// quiet period that follows one or more relevant events. New directories
// created at runtime are added to the watch list. Watch blocks until ctx
// is cancelled.
func Watch(ctx context.Context, root string, opts Options, onChange ChangeFunc) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	f := filter{root: root, exts: opts.Extensions, skip: make(map[string]struct{}, len(opts.Skip))}
	for _, s := range opts.Skip {
		f.skip[filepath.Clean(filepath.FromSlash(s))] = struct{}{}
	}

	if err := f.addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	// timer debounces bursts of events into one batch.
	var timer *time.Timer
	var fire <-chan time.Time
	pending := make(map[string]struct{})

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			timer = nil
			fire = nil
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})
			logger.Debug("watcher: batch", slog.Int("changed", len(changed)))
			onChange(ctx, changed)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name
			if f.ignored(abs) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := f.addDirsRecursive(w, abs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", abs))
					}
					// Files may already exist in the new directory.
					for _, p := range f.filesUnder(abs) {
						pending[p] = struct{}{}
					}
					schedule()
					continue
				}
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !f.wanted(abs) {
				continue
			}
			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

type filter struct {
	root string
	exts []string
	skip map[string]struct{}
}

// ignored reports whether p lies in a hidden or skipped directory, or is
// itself hidden.
func (f filter) ignored(p string) bool {
	rel, err := filepath.Rel(f.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for i, part := range parts {
		if strings.HasPrefix(part, ".") {
			return true
		}
		if _, ok := f.skip[filepath.Join(parts[:i+1]...)]; ok {
			return true
		}
	}
	return false
}

func (f filter) wanted(p string) bool {
	if len(f.exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range f.exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// filesUnder returns root-relative paths of wanted files below dir.
func (f filter) filesUnder(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || f.ignored(p) || !f.wanted(p) {
			return nil
		}
		if rel, relErr := filepath.Rel(f.root, p); relErr == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

// addDirsRecursive adds dir and all its non-ignored subdirectories to the watcher.
func (f filter) addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != f.root && f.ignored(p) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
