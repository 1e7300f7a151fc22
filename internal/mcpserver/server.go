// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes block resolution and tag tools over stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/resolver"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tags"
)

const syntaxURI = "ansuz://syntax"

// Server wraps the MCP server with corpus tools.
type Server struct {
	mcp       *server.MCPServer
	store     storage.Provider
	indexOpts index.Options
	resOpts   resolver.Options
	manifest  manifest.Store
	extractor tags.Extractor

	mu       sync.RWMutex
	idx      *index.Index
	resolver *resolver.Resolver
}

// Option configures a Server.
type Option func(*Server)

// WithManifest enables the search_exports tool.
func WithManifest(m manifest.Store) Option {
	return func(s *Server) { s.manifest = m }
}

// WithResolverOptions sets the block reference expansion bound.
func WithResolverOptions(o resolver.Options) Option {
	return func(s *Server) { s.resOpts = o }
}

// New indexes the corpus and creates an MCP server with all tools registered.
func New(ctx context.Context, store storage.Provider, opts index.Options, version string, options ...Option) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{store: store, indexOpts: opts}
	for _, o := range options {
		o(s)
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("resolve_text",
		mcp.WithDescription("Expand block embeds and block references in outline text against the corpus, "+
			"render page links and strip outliner metadata. Returns the text and any warnings."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Outline text containing ((uuid)) references or {{embed ((uuid))}} embeds")),
	), s.resolveText)

	s.mcp.AddTool(mcp.NewTool("extract_tags",
		mcp.WithDescription("Extract the ordered, de-duplicated tag list from outline text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Note text")),
	), s.extractTags)

	s.mcp.AddTool(mcp.NewTool("get_block",
		mcp.WithDescription("Look up one block by its UUID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Block UUID")),
	), s.getBlock)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List page names in the corpus."),
		mcp.WithString("prefix", mcp.Description("Optional case-insensitive name prefix")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("get_page",
		mcp.WithDescription("Look up a page by name, ignoring case, and return its source path."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Page name such as proj/Roadmap")),
	), s.getPage)

	s.mcp.AddTool(mcp.NewTool("tag_path",
		mcp.WithDescription("Return the folder path a tag maps to in folder exports."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag such as work/projects")),
	), s.tagPath)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the raw content of a corpus note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. pages/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("search_exports",
		mcp.WithDescription("Full-text search through the resolved bodies recorded by the last export."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchExports)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Rescan the corpus after notes changed on disk."),
	), s.reindex)

	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Outline Syntax Reference",
			mcp.WithResourceDescription("Placeholder, tag and media syntax understood by the resolver."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
	)

	return s, nil
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) reload(ctx context.Context) error {
	idx, err := index.Build(ctx, s.store, s.indexOpts)
	if err != nil {
		return fmt.Errorf("mcpserver: index corpus: %w", err)
	}
	s.mu.Lock()
	s.idx = idx
	s.resolver = resolver.New(idx, s.resOpts)
	s.mu.Unlock()
	return nil
}

func (s *Server) current() (*index.Index, *resolver.Resolver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx, s.resolver
}

type warning struct {
	Kind    string `json:"kind"`
	Ref     string `json:"ref"`
	Message string `json:"message"`
}

type resolveResult struct {
	Text     string    `json:"text"`
	Warnings []warning `json:"warnings"`
}

func (s *Server) resolveText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, res := s.current()
	out, diags := res.Resolve(text)
	result := resolveResult{Text: out, Warnings: []warning{}}
	for _, d := range diags {
		result.Warnings = append(result.Warnings, warning{Kind: d.Err.Error(), Ref: d.Ref, Message: d.Message})
	}
	return jsonResult(result)
}

func (s *Server) extractTags(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	found := s.extractor.Extract(text)
	if found == nil {
		found = []string{}
	}
	return jsonResult(found)
}

func (s *Server) getBlock(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, _ := s.current()
	b, ok := idx.Block(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("block not found: %s", id)), nil
	}
	return jsonResult(b)
}

func (s *Server) listPages(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := ""
	if p, err := req.RequireString("prefix"); err == nil {
		prefix = strings.ToLower(p)
	}
	idx, _ := s.current()

	var names []string
	for _, p := range idx.Pages() {
		if strings.HasPrefix(strings.ToLower(p.Name), prefix) {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) getPage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, _ := s.current()
	p, ok := idx.Page(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("page not found: %s", name)), nil
	}
	return jsonResult(p)
}

func (s *Server) tagPath(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := tags.ToPath(tag)
	if p == "" {
		return mcp.NewToolResultError(fmt.Sprintf("tag %q has no usable path segments", tag)), nil
	}
	return mcp.NewToolResultText(p), nil
}

func (s *Server) readNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) searchExports(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.manifest == nil {
		return mcp.NewToolResultError("export manifest is not configured"), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.manifest.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if results == nil {
		results = []manifest.SearchResult{}
	}
	return jsonResult(results)
}

func (s *Server) reindex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.reload(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, _ := s.current()
	return mcp.NewToolResultText(fmt.Sprintf("indexed %d notes, %d backups, %d blocks",
		len(idx.Notes()), len(idx.Backups()), idx.Len())), nil
}

func (s *Server) readSyntaxResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     SyntaxReference,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
