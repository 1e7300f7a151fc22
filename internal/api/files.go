package api

import (
	"net/http"
	"os"

	"github.com/starford/ansuz/internal/storage"
)

// FileHandler serves files from the export output directory.
type FileHandler struct {
	out *storage.FS
}

// NewFileHandler creates a handler rooted at the export output directory.
func NewFileHandler(out *storage.FS) *FileHandler {
	return &FileHandler{out: out}
}

// ServeFile handles GET /files/*. Paths escaping the output root are rejected.
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	rel := wildcardPath(r)
	if rel == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	abs, err := h.out.Abs(rel)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	http.ServeFile(w, r, abs)
}
