// Package storage defines the corpus and output file-system abstraction.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for corpus and output file operations.
// All paths are relative to the provider root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// List returns every file under dir whose extension is in exts, in
	// lexicographic path order. Hidden directories and dirs in skip are pruned.
	List(dir string, exts []string, skip ...string) ([]models.NoteFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Exists reports whether path names an existing file or directory.
	Exists(path string) bool
	// Abs resolves path against the root, rejecting traversal.
	Abs(path string) (string, error)
}
