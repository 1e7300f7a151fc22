package api

import (
	"github.com/starford/ansuz/internal/manifest"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// StatusFunc reports the state of the export runner.
type StatusFunc func() StatusResponse

// Service reads the export manifest for the API layer.
type Service struct {
	db     manifest.Store
	status StatusFunc
}

// NewService creates a new API service. status may be nil.
func NewService(db manifest.Store, status StatusFunc) *Service {
	return &Service{db: db, status: status}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}

// ListNotes returns one page of manifest entries and the filtered total.
func (s *Service) ListNotes(limit, offset int, status, tag string) ([]NoteListItem, int, error) {
	if offset < 0 {
		offset = 0
	}
	entries, total, err := s.db.List(clampLimit(limit), offset, status, tag)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, listItem(e))
	}
	return items, total, nil
}

// GetNote returns the manifest entry of source, including the resolved body.
func (s *Service) GetNote(source string) (*NoteDetail, error) {
	return s.db.Get(source)
}

// Search runs a full-text query over titles, tags and resolved bodies.
func (s *Service) Search(query string, limit int) ([]manifest.SearchResult, error) {
	results, err := s.db.Search(query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []manifest.SearchResult{}
	}
	return results, nil
}

// Status returns the export runner state.
func (s *Service) Status() StatusResponse {
	if s.status == nil {
		return StatusResponse{}
	}
	return s.status()
}
