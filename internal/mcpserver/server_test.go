package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/resolver"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

const (
	blockID   = "6f1c2a9e-0b3d-4c55-9a10-2f0c7e1d4b88"
	missingID = "00000000-0000-4000-8000-000000000000"
)

func testServer(t *testing.T, options ...Option) (*Server, storage.Provider) {
	t.Helper()
	_, store := testutil.TestCorpus(t, map[string]string{
		"pages/Alpha.md":          "- Alpha block ^" + blockID + "\n",
		"pages/Beta.md":           "- beta #work\n",
		"pages/proj___Roadmap.md": "- plan\n",
	})
	opts := index.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	srv, err := New(context.Background(), store, opts, "test", options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"resolve_text":   srv.resolveText,
		"extract_tags":   srv.extractTags,
		"get_block":      srv.getBlock,
		"get_page":       srv.getPage,
		"list_pages":     srv.listPages,
		"tag_path":       srv.tagPath,
		"read_note":      srv.readNote,
		"search_exports": srv.searchExports,
		"reindex":        srv.reindex,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestResolveText(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "resolve_text", map[string]any{
		"text": "see ((" + blockID + ")) and ((" + missingID + ")) in [[Beta]]",
	})
	var got resolveResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := "see Alpha block and " + resolver.NotFoundMarker(missingID) + " in *Beta*"
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Ref != missingID {
		t.Errorf("warnings = %+v", got.Warnings)
	}
}

func TestExtractTags(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "extract_tags", map[string]any{"text": "a #one and [[two/three]] #one"})
	if got := resultText(r); !strings.Contains(got, `"one"`) || !strings.Contains(got, `"two/three"`) {
		t.Errorf("tags = %s", got)
	}
}

func TestGetBlock(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_block", map[string]any{"id": strings.ToUpper(blockID)})
	if r.IsError || !strings.Contains(resultText(r), `"content": "Alpha block"`) {
		t.Errorf("get_block = %s", resultText(r))
	}

	r = callTool(t, srv, "get_block", map[string]any{"id": missingID})
	if !r.IsError {
		t.Error("expected error for unknown block")
	}
}

func TestListPages(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_pages", map[string]any{})
	if got := resultText(r); got != "Alpha\nBeta\nproj/Roadmap" {
		t.Errorf("pages = %q", got)
	}
	r = callTool(t, srv, "list_pages", map[string]any{"prefix": "PROJ"})
	if got := resultText(r); got != "proj/Roadmap" {
		t.Errorf("prefixed pages = %q", got)
	}
}

func TestGetPage(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_page", map[string]any{"name": "PROJ/roadmap"})
	if r.IsError || !strings.Contains(resultText(r), `"source_path": "pages/proj___Roadmap.md"`) {
		t.Errorf("get_page = %s", resultText(r))
	}
	if r := callTool(t, srv, "get_page", map[string]any{"name": "nope"}); !r.IsError {
		t.Error("expected error for unknown page")
	}
}

func TestTagPath(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "tag_path", map[string]any{"tag": "work/projects"})
	if got := resultText(r); got != "work/projects" && got != `work\projects` {
		t.Errorf("tag_path = %q", got)
	}
	r = callTool(t, srv, "tag_path", map[string]any{"tag": "../.."})
	if !r.IsError {
		t.Error("expected error for tag without usable segments")
	}
}

func TestReadNote(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"path": "pages/Beta.md"})
	if got := resultText(r); got != "- beta #work\n" {
		t.Errorf("read = %q", got)
	}
	r = callTool(t, srv, "read_note", map[string]any{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestSearchExports(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "search_exports", map[string]any{"query": "x"})
	if !r.IsError {
		t.Error("expected error without manifest")
	}

	db := testutil.TestManifest(t)
	_ = db.Upsert(manifest.Entry{Source: "pages/Alpha.md", Title: "Alpha", Body: "findme here"})
	srv, _ = testServer(t, WithManifest(db))
	r = callTool(t, srv, "search_exports", map[string]any{"query": "findme"})
	if r.IsError || !strings.Contains(resultText(r), "pages/Alpha.md") {
		t.Errorf("search = %s", resultText(r))
	}
}

func TestReindex(t *testing.T) {
	srv, store := testServer(t)
	const newID = "11111111-2222-4333-8444-555555555555"
	if err := store.Write("pages/New.md", []byte("- fresh ^"+newID+"\n")); err != nil {
		t.Fatal(err)
	}

	if r := callTool(t, srv, "get_block", map[string]any{"id": newID}); !r.IsError {
		t.Fatal("block should not be visible before reindex")
	}
	r := callTool(t, srv, "reindex", map[string]any{})
	if got := resultText(r); got != "indexed 4 notes, 0 backups, 2 blocks" {
		t.Errorf("reindex = %q", got)
	}
	if r := callTool(t, srv, "get_block", map[string]any{"id": newID}); r.IsError {
		t.Error("block should be visible after reindex")
	}
}
