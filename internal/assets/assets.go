// Package assets locates media referenced from note bodies, deduplicates
// them by content digest and rewrites the references for the chosen output.
package assets

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/tags"
)

// Mode selects how resolved references are rewritten.
type Mode int

const (
	// Container rewrites references to <en-media> elements.
	Container Mode = iota
	// Folder rewrites references to files under AssetsDir.
	Folder
)

// AssetsDir is the per-folder directory that receives media in folder mode.
const AssetsDir = "assets"

var (
	mdLinkRe    = regexp.MustCompile(`(!?)\[([^\]\n]*)\]\(\s*(<[^>\n]+>|[^)\s]+)(\s+"[^"\n]*")?\s*\)`)
	imgTagRe    = regexp.MustCompile(`(?i)(<img\b[^>]*?\bsrc\s*=\s*)("[^"]*"|'[^']*')([^>]*>)`)
	wikiEmbedRe = regexp.MustCompile(`!\[\[([^\]|\n]+)(?:\|([^\]\n]*))?\]\]`)
	schemeRe    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)
	noteExts    = map[string]struct{}{".md": {}, ".markdown": {}, ".org": {}}
)

// Resolver finds and deduplicates media. It is safe for concurrent use.
type Resolver struct {
	root    string
	mode    Mode
	exclude []string

	once  sync.Once
	files map[string]string // lowercase base name → first path in lexicographic order
}

// New returns a Resolver searching corpusRoot as the last resort. exclude
// lists corpus-relative paths the search never descends into, such as an
// export output inside the corpus.
func New(corpusRoot string, mode Mode, exclude ...string) *Resolver {
	return &Resolver{root: corpusRoot, mode: mode, exclude: exclude}
}

// Resolve rewrites every media reference in content. dirs are searched in
// order before the corpus-wide file name search. New resources are added
// to scope. Unresolved references are kept verbatim with a diagnostic.
func (r *Resolver) Resolve(content string, dirs []string, scope *Scope) (string, []models.Diagnostic) {
	var diags []models.Diagnostic

	content = replaceAll(mdLinkRe, content, func(s string, m []int) string {
		image := m[3] > m[2]
		alt := s[m[4]:m[5]]
		ref := strings.Trim(s[m[6]:m[7]], "<>")
		if !image && !isAttachmentLink(ref) {
			return s[m[0]:m[1]]
		}
		res, ok := r.resolveRef(ref, dirs, scope, &diags)
		if !ok {
			return s[m[0]:m[1]]
		}
		if r.mode == Container {
			return enMedia(res)
		}
		prefix := ""
		if image {
			prefix = "!"
		}
		title := ""
		if m[8] >= 0 {
			title = s[m[8]:m[9]]
		}
		return prefix + "[" + alt + "](" + FolderRef(res) + title + ")"
	})

	content = replaceAll(imgTagRe, content, func(s string, m []int) string {
		quoted := s[m[4]:m[5]]
		ref := quoted[1 : len(quoted)-1]
		res, ok := r.resolveRef(ref, dirs, scope, &diags)
		if !ok {
			return s[m[0]:m[1]]
		}
		if r.mode == Container {
			return enMedia(res)
		}
		return s[m[2]:m[3]] + `"` + FolderRef(res) + `"` + s[m[6]:m[7]]
	})

	content = replaceAll(wikiEmbedRe, content, func(s string, m []int) string {
		ref := strings.TrimSpace(s[m[2]:m[3]])
		if parser.IsPageTarget(ref) {
			// Page transclusion, rendered by the page-link pass.
			return s[m[0]:m[1]]
		}
		res, ok := r.resolveRef(ref, dirs, scope, &diags)
		if !ok {
			return s[m[0]:m[1]]
		}
		if r.mode == Container {
			return enMedia(res)
		}
		alt := res.DisplayName
		if m[4] >= 0 {
			alt = s[m[4]:m[5]]
		}
		prefix := ""
		if IsImage(res.DisplayName) {
			prefix = "!"
		}
		return prefix + "[" + alt + "](" + FolderRef(res) + ")"
	})

	return content, diags
}

// resolveRef locates ref and returns its resource, registering it in scope.
func (r *Resolver) resolveRef(ref string, dirs []string, scope *Scope, diags *[]models.Diagnostic) (*models.Resource, bool) {
	p, ok, local := r.locate(ref, dirs)
	if !local {
		return nil, false
	}
	if !ok {
		*diags = append(*diags, models.Diagnostic{
			Err:     apperr.ErrAssetNotFound,
			Ref:     ref,
			Message: "referenced file not found",
		})
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		*diags = append(*diags, models.Diagnostic{
			Err:     fmt.Errorf("%w: %v", apperr.ErrIO, err),
			Ref:     ref,
			Message: "read asset",
		})
		return nil, false
	}

	digest := checksum.MediaHash(data)
	if existing, ok := scope.Get(digest); ok {
		return existing, true
	}
	name := filepath.Base(p)
	return scope.Add(&models.Resource{
		Digest:      digest,
		Mime:        MimeType(name),
		DisplayName: name,
		FileName:    FileName(name, digest),
		SourcePath:  p,
		Data:        data,
	}), true
}

// locate returns the absolute path of ref. local is false for references
// that must pass through untouched.
func (r *Resolver) locate(ref string, dirs []string) (p string, found, local bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false, false
	}
	if i := strings.IndexAny(ref, "?#"); i > 0 {
		ref = ref[:i]
	}

	candidates := []string{ref}
	if unescaped, err := url.PathUnescape(ref); err == nil && unescaped != ref {
		candidates = append(candidates, unescaped)
	}

	if isAbsolute(ref) {
		// Converter output may point into its own media directory.
		for _, c := range candidates {
			abs := filepath.Clean(filepath.FromSlash(c))
			for _, d := range dirs {
				if within(d, abs) && fileExists(abs) {
					return abs, true, true
				}
			}
		}
		return "", false, false
	}

	for _, d := range dirs {
		for _, c := range candidates {
			abs := filepath.Join(d, filepath.FromSlash(c))
			if fileExists(abs) {
				return abs, true, true
			}
		}
	}
	for _, c := range candidates {
		if abs, ok := r.search(path.Base(filepath.ToSlash(c))); ok {
			return abs, true, true
		}
	}
	return "", false, true
}

// search finds a file by base name anywhere under the corpus root. The
// directory walk runs once; the lexicographically first match wins.
func (r *Resolver) search(base string) (string, bool) {
	r.once.Do(func() {
		r.files = make(map[string]string)
		var all []string
		_ = filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || p == r.root {
				return nil
			}
			if r.excluded(p) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			all = append(all, p)
			return nil
		})
		sort.Strings(all)
		for _, p := range all {
			key := strings.ToLower(filepath.Base(p))
			if _, ok := r.files[key]; !ok {
				r.files[key] = p
			}
		}
	})
	p, ok := r.files[strings.ToLower(base)]
	return p, ok
}

func (r *Resolver) excluded(p string) bool {
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, x := range r.exclude {
		x = strings.Trim(filepath.ToSlash(x), "/")
		if x != "" && (rel == x || strings.HasPrefix(rel, x+"/")) {
			return true
		}
	}
	return false
}

// FileName returns the deterministic folder-mode file name for an asset:
// the sanitized stem, the first eight digest characters and the extension.
func FileName(name, digest string) string {
	ext := strings.ToLower(filepath.Ext(name))
	stem := tags.SanitizeName(strings.TrimSuffix(name, filepath.Ext(name)))
	stem = strings.Join(strings.Fields(stem), "_")
	if stem == "" {
		stem = "asset"
	}
	short := digest
	if len(short) > 8 {
		short = short[:8]
	}
	return stem + "_" + short + ext
}

// FolderRef returns the note-relative link target of a folder-mode asset.
func FolderRef(res *models.Resource) string {
	return AssetsDir + "/" + res.FileName
}

func enMedia(res *models.Resource) string {
	return `<en-media type="` + res.Mime + `" hash="` + res.Digest + `"/>`
}

// isAttachmentLink reports whether a plain (non-image) link targets a
// local non-note file.
func isAttachmentLink(ref string) bool {
	if isAbsolute(ref) {
		return false
	}
	clean := ref
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	ext := strings.ToLower(path.Ext(clean))
	if ext == "" {
		return false
	}
	_, note := noteExts[ext]
	return !note
}

func isAbsolute(ref string) bool {
	return schemeRe.MatchString(ref) || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, `\`) || filepath.IsAbs(ref)
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// replaceAll rewrites every match of re in s with fn's result.
func replaceAll(re *regexp.Regexp, s string, fn func(s string, m []int) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteString(fn(s, m))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
