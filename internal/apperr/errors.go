// Package apperr defines the error taxonomy shared by the export pipeline.
package apperr

import "errors"

// Non-fatal, per-reference conditions. They surface as diagnostics on a note.
var (
	ErrMissingReference = errors.New("missing reference")
	ErrDepthExceeded    = errors.New("resolution depth exceeded")
	ErrAssetNotFound    = errors.New("asset not found")
)

// Per-note failures. The note is skipped (or falls back) and the batch continues.
var (
	ErrConversion = errors.New("conversion failed")
	ErrIO         = errors.New("io failure")
)

// Pre-flight failures. The run aborts before any note is processed.
var (
	ErrDependencyMissing = errors.New("dependency missing")
	ErrInvalidRoot       = errors.New("invalid corpus root")
)

var (
	ErrNotFound = errors.New("not found")
)

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDependencyMissing) || errors.Is(err, ErrInvalidRoot)
}
