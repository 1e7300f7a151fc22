package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted.
// A non-empty token enables Bearer authentication. sseHandler, if non-nil,
// is mounted at GET /events. out, if non-nil, is served under /files.
func NewRouter(svc *Service, token string, sseHandler http.Handler, out *storage.FS) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(token))

	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)
	r.Get("/search", h.Search)
	r.Get("/status", h.Status)

	if out != nil {
		r.Get("/files/*", NewFileHandler(out).ServeFile)
	}

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
