package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/export"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

var testEntries = []manifest.Entry{
	{
		Source:   "pages/alpha.md",
		Title:    "Alpha",
		Outputs:  []string{"work/Alpha.md"},
		Tags:     []string{"work"},
		Status:   manifest.StatusOK,
		Checksum: "c1",
		Body:     "alpha body with uniquetoken",
	},
	{
		Source:   "pages/beta.md",
		Title:    "Beta",
		Outputs:  []string{"Beta.md"},
		Status:   manifest.StatusOK,
		Warnings: 2,
		Checksum: "c2",
		Body:     "beta body",
	},
	{
		Source: "pages/gamma.org",
		Title:  "Gamma",
		Status: manifest.StatusSkipped,
		Error:  "conversion failed",
	},
}

// testEnv builds a router over a manifest seeded with testEntries and an
// output directory holding one exported file.
func testEnv(t *testing.T, token string, sseHandler http.Handler) http.Handler {
	t.Helper()
	db := testutil.TestManifest(t)
	for _, e := range testEntries {
		if err := db.Upsert(e); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	outDir := t.TempDir()
	testutil.WriteFile(t, outDir, "work/Alpha.md", "---\ntitle: Alpha\n---\n\nalpha\n")
	out, err := storage.NewFS(outDir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	status := func() StatusResponse {
		return StatusResponse{Last: &export.Summary{Total: 3, Succeeded: 2, Skipped: 1}}
	}
	return NewRouter(NewService(db, status), token, sseHandler, out)
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListNotes(t *testing.T) {
	router := testEnv(t, "", nil)

	w := get(t, router, "/notes?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Notes) != 3 || resp.Total != 3 {
		t.Errorf("notes = %d, total = %d, want 3/3", len(resp.Notes), resp.Total)
	}
}

func TestListNotes_Filters(t *testing.T) {
	router := testEnv(t, "", nil)

	tests := []struct {
		query string
		want  int
	}{
		{"/notes?status=skipped", 1},
		{"/notes?tag=work", 1},
		{"/notes?limit=1", 1},
		{"/notes?offset=2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, router, tt.query)
			var resp NoteListResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if len(resp.Notes) != tt.want {
				t.Errorf("len(notes) = %d, want %d", len(resp.Notes), tt.want)
			}
		})
	}
}

func TestGetNote(t *testing.T) {
	router := testEnv(t, "", nil)

	for _, target := range []string{"/notes/pages/alpha.md", "/notes/pages%2Falpha.md"} {
		w := get(t, router, target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d, body = %s", target, w.Code, w.Body.String())
		}
		var note NoteDetail
		_ = json.Unmarshal(w.Body.Bytes(), &note)
		if note.Title != "Alpha" || note.Body != "alpha body with uniquetoken" {
			t.Errorf("note = %+v", note)
		}
	}
}

func TestGetNote_NotFound(t *testing.T) {
	router := testEnv(t, "", nil)
	if w := get(t, router, "/notes/missing.md"); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router := testEnv(t, "", nil)

	w := get(t, router, "/search?q=uniquetoken")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Source != "pages/alpha.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router := testEnv(t, "", nil)
	if w := get(t, router, "/search"); w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
}

func TestStatus(t *testing.T) {
	router := testEnv(t, "", nil)
	w := get(t, router, "/status")
	var resp StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Running || resp.Last == nil || resp.Last.Succeeded != 2 {
		t.Errorf("status = %+v", resp)
	}
}

func TestServeFile(t *testing.T) {
	router := testEnv(t, "", nil)

	w := get(t, router, "/files/work/Alpha.md")
	if w.Code != http.StatusOK {
		t.Fatalf("file = %d", w.Code)
	}
	if got := w.Body.String(); got != "---\ntitle: Alpha\n---\n\nalpha\n" {
		t.Errorf("body = %q", got)
	}
	if w := get(t, router, "/files/nope.md"); w.Code != http.StatusNotFound {
		t.Errorf("missing file = %d, want 404", w.Code)
	}
}

func TestServeFile_TraversalBlocked(t *testing.T) {
	router := testEnv(t, "", nil)
	for _, name := range []string{"..%2Fsecret.md", "..%2F..%2Fetc%2Fpasswd"} {
		w := get(t, router, "/files/"+name)
		if w.Code == http.StatusOK {
			t.Errorf("traversal %q should not return 200", name)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := testEnv(t, "secret", nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/notes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// stubSSE writes headers and blocks until the request context is done.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnv(t, "secret", stubSSE)
	if w := get(t, router, "/events"); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnv(t, "tok", stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
