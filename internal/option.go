package internal

import "log/slog"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	logger  *slog.Logger
	version string
	watch   bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger overrides the logger built from the app config.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithVersion sets the version written into export headers.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithWatch keeps Export running and re-exports after corpus changes.
func WithWatch(watch bool) Option {
	return func(a *application) {
		a.watch = watch
	}
}
