package api

import (
	"time"

	"github.com/starford/ansuz/internal/export"
	"github.com/starford/ansuz/internal/manifest"
)

// NoteDetail is the full manifest entry of one exported note.
type NoteDetail = manifest.Entry

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	Outputs    []string  `json:"outputs"`
	Tags       []string  `json:"tags"`
	Status     string    `json:"status"`
	Warnings   int       `json:"warnings"`
	ExportedAt time.Time `json:"exported_at"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes"`
	Total int            `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []manifest.SearchResult `json:"results"`
}

// StatusResponse reports the most recent export run. Running is true
// while an export is in progress.
type StatusResponse struct {
	Running bool            `json:"running"`
	Last    *export.Summary `json:"last,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func listItem(e manifest.Entry) NoteListItem {
	return NoteListItem{
		Source:     e.Source,
		Title:      e.Title,
		Outputs:    e.Outputs,
		Tags:       e.Tags,
		Status:     e.Status,
		Warnings:   e.Warnings,
		ExportedAt: e.ExportedAt,
	}
}
