// Package internal wires configuration, logging and storage into the
// export, serve and mcp entry points.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/assets"
	"github.com/starford/ansuz/internal/export"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/resolver"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/watch"
)

// NewLogger builds the process logger. An empty format selects text on a
// terminal and JSON otherwise.
func NewLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	format := cfg.LogFormat
	if format == "" {
		format = LogFormatJSON
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = LogFormatText
		}
	}
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if format == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		app.logger = NewLogger(app.config.App, os.Stderr)
		slog.SetDefault(app.logger)
	}
	return app, nil
}

// openCorpus validates the corpus root before any work starts.
func openCorpus(root string) (*storage.FS, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: corpus root is required", apperr.ErrInvalidRoot)
	}
	store, err := storage.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidRoot, err)
	}
	return store, nil
}

func openManifest(path string) (*manifest.DB, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	db, err := manifest.Open(path)
	if err != nil {
		return nil, fmt.Errorf("init manifest: %w", err)
	}
	return db, nil
}

func (a *application) newExporter(store storage.Provider, db *manifest.DB, extra ...export.Option) *export.Exporter {
	opts := []export.Option{export.WithLogger(a.logger)}
	if db != nil {
		opts = append(opts, export.WithManifest(db))
	}
	return export.New(store, a.config.ExportOptions(a.version), append(opts, extra...)...)
}

// watchOptions reports note and media changes and ignores the export
// output when it lies inside the corpus.
func (a *application) watchOptions(store *storage.FS) watch.Options {
	cfg := a.config
	exts := append(append([]string(nil), cfg.Corpus.NoteExtensions()...), assets.Extensions()...)
	opts := watch.Options{Extensions: exts, Logger: a.logger}
	out := cfg.Export.Output
	if out == "" {
		out = "export"
		if cfg.Export.Format == export.FormatContainer {
			out = "export.enex"
		}
	}
	if abs, err := filepath.Abs(out); err == nil {
		if cfg.Export.Format == export.FormatContainer {
			abs = filepath.Dir(abs)
		}
		if rel, err := filepath.Rel(store.Root(), abs); err == nil && rel != "." &&
			rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			opts.Skip = append(opts.Skip, filepath.ToSlash(rel))
		}
	}
	return opts
}

// Export runs one export. With WithWatch it then re-exports after every
// debounced batch of corpus changes until ctx is cancelled or a signal
// arrives.
func Export(ctx context.Context, opts ...Option) (*export.Summary, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config
	logger := app.logger

	store, err := openCorpus(cfg.Corpus.Root)
	if err != nil {
		return nil, err
	}
	db, err := openManifest(cfg.Manifest.Path)
	if err != nil {
		return nil, err
	}
	if db != nil {
		defer db.Close()
	}

	logger.Info("export: starting",
		slog.String("root", store.Root()),
		slog.String("mode", cfg.Corpus.Mode),
		slog.String("format", cfg.Export.Format),
		slog.Int("workers", cfg.Export.Workers))

	exporter := app.newExporter(store, db)
	sum, err := exporter.Run(ctx)
	if err != nil {
		return sum, err
	}
	sum.Log(logger)

	if !app.watch {
		return sum, nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	err = watch.Watch(ctx, store.Root(), app.watchOptions(store), func(ctx context.Context, changed []string) {
		logger.Info("export: corpus changed", slog.Int("files", len(changed)))
		s, err := exporter.Run(ctx)
		switch {
		case err == nil:
			s.Log(logger)
			sum = s
		case apperr.IsFatal(err):
			logger.Error("export: stopping watch", slog.String("error", err.Error()))
			cancel(err)
		case !errors.Is(err, context.Canceled):
			logger.Error("export: re-export failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return sum, err
	}
	if cause := context.Cause(ctx); apperr.IsFatal(cause) {
		return sum, cause
	}
	return sum, nil
}

// runner serializes export runs for the server and records their outcome.
type runner struct {
	exporter *export.Exporter
	broker   *sse.Broker
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	last    *export.Summary
	lastErr error
}

func (r *runner) run(ctx context.Context) {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	r.broker.Publish(sse.Event{Type: sse.TypeExportStarted, Data: map[string]string{}})

	sum, err := r.exporter.Run(ctx)

	r.mu.Lock()
	r.running = false
	r.last, r.lastErr = sum, err
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("export: run failed", slog.String("error", err.Error()))
		r.broker.Publish(sse.Event{Type: sse.TypeExportFailed, Data: map[string]string{"error": err.Error()}})
		return
	}
	sum.Log(r.logger)
	r.broker.Publish(sse.Event{Type: sse.TypeExportFinished, Data: sum})
}

func (r *runner) status() api.StatusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := api.StatusResponse{Running: r.running, Last: r.last}
	if r.lastErr != nil {
		resp.Error = r.lastErr.Error()
	}
	return resp
}

// Serve exports the corpus, then serves the manifest API and progress
// events while re-exporting on every corpus change.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	store, err := openCorpus(cfg.Corpus.Root)
	if err != nil {
		return err
	}
	if cfg.Manifest.Path == "" {
		return fmt.Errorf("serve: manifest.path is required")
	}
	db, err := openManifest(cfg.Manifest.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	runs := &runner{broker: broker, logger: logger}
	runs.exporter = app.newExporter(store, db, export.WithProgress(func(ev export.Event) {
		broker.PublishProgress(ev.Done, ev.Total, ev)
	}))

	var out *storage.FS
	if cfg.Export.Format == export.FormatFolder {
		dir := cfg.Export.Output
		if dir == "" {
			dir = "export"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if out, err = storage.NewFS(dir); err != nil {
			return fmt.Errorf("init output storage: %w", err)
		}
	}

	svc := api.NewService(db, runs.status)
	apiRouter := api.NewRouter(svc, cfg.Server.Token, broker, out)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if st := runs.status(); st.Last == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"exporting"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Initial export, then re-export on change.
	g.Go(func() error {
		runs.run(gCtx)
		err := watch.Watch(gCtx, store.Root(), app.watchOptions(store), func(ctx context.Context, changed []string) {
			logger.Info("export: corpus changed", slog.Int("files", len(changed)))
			runs.run(ctx)
		})
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("server: listening", slog.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("server: received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server: shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server: error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server: stopped")
	return nil
}

// MCP serves the corpus tools over stdio. Logs go to stderr so stdout
// stays reserved for the protocol.
func MCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	store, err := openCorpus(cfg.Corpus.Root)
	if err != nil {
		return err
	}

	var mopts []mcpserver.Option
	mopts = append(mopts, mcpserver.WithResolverOptions(resolver.Options{MaxExpansions: cfg.Resolver.MaxExpansions}))
	if cfg.Manifest.Path != "" {
		if _, statErr := os.Stat(cfg.Manifest.Path); statErr == nil {
			db, err := openManifest(cfg.Manifest.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			mopts = append(mopts, mcpserver.WithManifest(db))
		}
	}

	internalDir, backupDir := cfg.Corpus.InternalDir, cfg.Corpus.BackupDir
	if cfg.Corpus.Mode == export.ModeGeneric {
		internalDir, backupDir = "", ""
	}
	srv, err := mcpserver.New(ctx, store, index.Options{
		Extensions:      cfg.Corpus.NoteExtensions(),
		InternalDir:     internalDir,
		BackupDir:       backupDir,
		IncludeChildren: cfg.Corpus.IncludeChildren,
		Logger:          app.logger,
	}, app.version, mopts...)
	if err != nil {
		return err
	}
	app.logger.Info("mcp: serving on stdio", slog.String("root", store.Root()))
	return srv.ServeStdio()
}
