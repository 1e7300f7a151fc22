// Package convert turns non-Markdown notes into Markdown with an external
// converter and renders Markdown into ENML-compatible XHTML.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// DefaultBinary is the converter executable looked up on PATH.
const DefaultBinary = "pandoc"

// Failure policies for a converter error.
const (
	OnFailureSkip     = "skip"
	OnFailureFallback = "fallback"
)

// inputFormats maps convertible extensions to pandoc reader names.
var inputFormats = map[string]string{
	".org":  "org",
	".docx": "docx",
	".odt":  "odt",
	".rtf":  "rtf",
	".epub": "epub",
	".html": "html",
	".htm":  "html",
}

// Converter converts one source file to Markdown. Extracted media is
// written below mediaDir.
type Converter interface {
	Convert(ctx context.Context, src, mediaDir string) (string, error)
}

// Extensions returns the extensions that need conversion, sorted.
func Extensions() []string {
	out := make([]string, 0, len(inputFormats))
	for ext := range inputFormats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// NeedsConversion reports whether a file with this name must be converted
// before it can be treated as Markdown.
func NeedsConversion(name string) bool {
	_, ok := inputFormats[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsBinaryFormat reports whether the source cannot be read as text.
func IsBinaryFormat(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx", ".odt", ".epub":
		return true
	}
	return false
}

// Pandoc runs the pandoc executable.
type Pandoc struct {
	Binary  string
	Timeout time.Duration
}

// NewPandoc resolves binary on PATH. A missing executable yields
// apperr.ErrDependencyMissing.
func NewPandoc(binary string, timeout time.Duration) (*Pandoc, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrDependencyMissing, binary, err)
	}
	return &Pandoc{Binary: path, Timeout: timeout}, nil
}

// Convert runs pandoc on src, writing GitHub-flavoured Markdown to stdout.
func (p *Pandoc) Convert(ctx context.Context, src, mediaDir string) (string, error) {
	format, ok := inputFormats[strings.ToLower(filepath.Ext(src))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported extension %q", apperr.ErrConversion, filepath.Ext(src))
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := []string{"-f", format, "-t", "gfm", "--wrap=none"}
	if mediaDir != "" {
		args = append(args, "--extract-media="+mediaDir)
	}
	args = append(args, src)

	cmd := exec.CommandContext(ctx, p.Binary, args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", apperr.ErrDependencyMissing, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if ctx.Err() != nil {
			msg = ctx.Err().Error()
		}
		return "", fmt.Errorf("%w: %s: %v: %s", apperr.ErrConversion, filepath.Base(src), err, msg)
	}
	return stdout.String(), nil
}
