package export

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/assets"
	"github.com/starford/ansuz/internal/enex"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tags"
)

// sink receives processed notes from the single writer.
type sink interface {
	// write stores one note and returns its output locations. unchanged is
	// true when an incremental run left existing files in place.
	write(res *result) (outputs []string, unchanged bool, err error)
	// close finalizes the output and returns the number of pruned dirs.
	close() (int, error)
	abort()
	location() string
}

// containerSink streams every note into one ENEX document.
type containerSink struct {
	path string
	file *storage.AtomicFile
	buf  *bufio.Writer
	w    *enex.Writer
}

func newContainerSink(opts Options, start time.Time) (*containerSink, error) {
	out := opts.Output
	if out == "" {
		out = "export.enex"
	}
	abs, err := filepath.Abs(out)
	if err != nil {
		return nil, fmt.Errorf("export: resolve output: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %v", apperr.ErrIO, err)
	}
	dir, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	file, err := dir.Create(filepath.Base(abs))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrIO, err)
	}
	buf := bufio.NewWriter(file)
	return &containerSink{
		path: abs,
		file: file,
		buf:  buf,
		w: enex.NewWriter(buf, enex.Header{
			ExportDate:  start,
			Application: opts.Application,
			Version:     opts.Version,
		}),
	}, nil
}

func (s *containerSink) write(res *result) ([]string, bool, error) {
	if err := s.w.WriteNote(res.output); err != nil {
		return nil, false, err
	}
	return []string{s.path}, false, nil
}

func (s *containerSink) close() (int, error) {
	if err := s.w.Close(); err != nil {
		s.file.Abort()
		return 0, err
	}
	if err := s.buf.Flush(); err != nil {
		s.file.Abort()
		return 0, fmt.Errorf("export: flush container: %w", err)
	}
	return 0, s.file.Commit()
}

func (s *containerSink) abort()           { s.file.Abort() }
func (s *containerSink) location() string { return s.path }

// folderSink writes one Markdown file per destination folder.
type folderSink struct {
	out         *storage.FS
	mode        string
	placement   string
	incremental bool
	manifest    manifest.Store

	claimed map[string]struct{} // lowercase output paths used this run
	written map[string]struct{} // asset paths written this run
}

func newFolderSink(opts Options, m manifest.Store) (*folderSink, error) {
	out := opts.Output
	if out == "" {
		out = "export"
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %v", apperr.ErrIO, err)
	}
	fs, err := storage.NewFS(out)
	if err != nil {
		return nil, err
	}
	return &folderSink{
		out:         fs,
		mode:        opts.Mode,
		placement:   opts.Placement,
		incremental: opts.Incremental && m != nil,
		manifest:    m,
		claimed:     make(map[string]struct{}),
		written:     make(map[string]struct{}),
	}, nil
}

func (s *folderSink) location() string { return s.out.Root() }

func (s *folderSink) write(res *result) ([]string, bool, error) {
	name := s.fileName(res)
	var outputs []string
	for _, dir := range s.destinations(res) {
		outputs = append(outputs, s.claim(dir, name))
	}

	if s.incremental && s.upToDate(res, outputs) {
		return outputs, true, nil
	}

	for _, rel := range outputs {
		if err := s.out.Write(rel, res.output); err != nil {
			return nil, false, fmt.Errorf("%w: %v", apperr.ErrIO, err)
		}
		dir := path.Dir(rel)
		for _, r := range res.note.Resources {
			asset := path.Join(dir, assets.AssetsDir, r.FileName)
			if _, ok := s.written[asset]; ok {
				continue
			}
			if err := s.out.Write(asset, r.Data); err != nil {
				return nil, false, fmt.Errorf("%w: %v", apperr.ErrIO, err)
			}
			s.written[asset] = struct{}{}
		}
	}
	return outputs, false, nil
}

// upToDate reports whether the manifest holds the same checksum and
// outputs and every output file still exists.
func (s *folderSink) upToDate(res *result, outputs []string) bool {
	prev, err := s.manifest.Get(res.file.Path)
	if err != nil || prev.Checksum != res.checksum || len(prev.Outputs) != len(outputs) {
		return false
	}
	for i, o := range outputs {
		if prev.Outputs[i] != o || !s.out.Exists(o) {
			return false
		}
		for _, r := range res.note.Resources {
			if !s.out.Exists(path.Join(path.Dir(o), assets.AssetsDir, r.FileName)) {
				return false
			}
		}
	}
	return true
}

// destinations returns the slash-separated output dirs of a note.
func (s *folderSink) destinations(res *result) []string {
	if s.mode == ModeGeneric {
		return []string{path.Dir(res.file.Path)}
	}
	var dirs []string
	seen := make(map[string]struct{})
	for _, t := range res.note.Tags {
		d := filepath.ToSlash(tags.ToPath(t))
		if d == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(d)]; dup {
			continue
		}
		seen[strings.ToLower(d)] = struct{}{}
		dirs = append(dirs, d)
		if s.placement == PlacementFirst {
			break
		}
	}
	if len(dirs) == 0 {
		return []string{"."}
	}
	return dirs
}

func (s *folderSink) fileName(res *result) string {
	var stem string
	if s.mode == ModeGeneric {
		base := path.Base(res.file.Path)
		stem = tags.SanitizeName(strings.TrimSuffix(base, path.Ext(base)))
	} else {
		stem = tags.SanitizeName(res.note.Title)
	}
	if stem == "" {
		stem = "untitled"
	}
	return stem + ".md"
}

// claim reserves dir/name, appending -2, -3, ... on collision.
func (s *folderSink) claim(dir, name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := path.Join(dir, name)
	for n := 2; ; n++ {
		key := strings.ToLower(candidate)
		if _, taken := s.claimed[key]; !taken {
			s.claimed[key] = struct{}{}
			return candidate
		}
		candidate = path.Join(dir, stem+"-"+strconv.Itoa(n)+ext)
	}
}

func (s *folderSink) close() (int, error) {
	n, err := s.out.PruneEmptyDirs()
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	return n, nil
}

func (s *folderSink) abort() {}
