// Package models defines the domain types for Ansuz.
package models

import (
	"errors"
	"time"
)

// Page is a note addressable by name from [[page links]].
type Page struct {
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
}

// Block is an addressable content unit identified by a UUID.
type Block struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SourcePage string `json:"source_page"`
}

// Resource is one deduplicated media file attached to a note.
type Resource struct {
	Digest      string `json:"digest"`
	Mime        string `json:"mime"`
	DisplayName string `json:"display_name"`
	FileName    string `json:"file_name,omitempty"` // folder export only
	SourcePath  string `json:"source_path"`
	Data        []byte `json:"-"`
}

// Diagnostic is a non-fatal condition found while processing a note.
type Diagnostic struct {
	Err     error  `json:"-"`
	Ref     string `json:"ref"`
	Message string `json:"message"`
}

// Is reports whether the diagnostic is of the given kind.
func (d Diagnostic) Is(target error) bool {
	return errors.Is(d.Err, target)
}

// ResolvedNote is the fully processed note, ready for assembly.
type ResolvedNote struct {
	SourcePath  string
	Title       string
	Body        string
	Tags        []string
	Resources   []*Resource
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Diagnostics []Diagnostic
}

// NoteFile is a corpus entry as enumerated by storage.
type NoteFile struct {
	Path      string    `json:"path"` // relative to the corpus root, slash separated
	Backup    bool      `json:"backup,omitempty"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
