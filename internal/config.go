package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/convert"
	"github.com/starford/ansuz/internal/export"
	"github.com/starford/ansuz/internal/resolver"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app" toml:"app"`
	Corpus    CorpusConfig      `yaml:"corpus" toml:"corpus"`
	Resolver  ResolverConfig    `yaml:"resolver" toml:"resolver"`
	Export    ExportConfig      `yaml:"export" toml:"export"`
	Converter ConverterConfig   `yaml:"converter" toml:"converter"`
	Manifest  ManifestConfig    `yaml:"manifest" toml:"manifest"`
	Server    ServerConfig      `yaml:"server" toml:"server"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Corpus.Validate(); err != nil {
		return fmt.Errorf("corpus: %w", err)
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := c.Converter.Validate(); err != nil {
		return fmt.Errorf("converter: %w", err)
	}
	return c.Server.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	// LogFormat is "json" or "text". Empty picks text on a terminal and
	// JSON otherwise.
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	)
}

// CorpusConfig describes the notes directory.
type CorpusConfig struct {
	Root            string   `yaml:"root" toml:"root"`
	Mode            string   `yaml:"mode" toml:"mode"`
	Extensions      []string `yaml:"extensions" toml:"extensions"`
	InternalDir     string   `yaml:"internal_dir" toml:"internal_dir"`
	BackupDir       string   `yaml:"backup_dir" toml:"backup_dir"`
	IncludeChildren bool     `yaml:"include_children" toml:"include_children"`
}

// NoteExtensions returns the configured extensions, or the defaults of
// the corpus mode when none are set.
func (c *CorpusConfig) NoteExtensions() []string {
	if len(c.Extensions) > 0 {
		return c.Extensions
	}
	return export.DefaultExtensions(c.Mode)
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(export.ModeLinked, export.ModeGeneric)),
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.Length(2, 0))),
	)
}

// ResolverConfig holds placeholder resolution limits.
type ResolverConfig struct {
	MaxExpansions int `yaml:"max_expansions" toml:"max_expansions"`
}

// Validate validates the resolver configuration.
func (c *ResolverConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxExpansions, validation.Min(resolver.MinExpansions), validation.Max(resolver.MaxExpansions)),
	)
}

// ExportConfig holds output settings.
type ExportConfig struct {
	Format        string `yaml:"format" toml:"format"`
	Output        string `yaml:"output" toml:"output"`
	Placement     string `yaml:"placement" toml:"placement"`
	Workers       int    `yaml:"workers" toml:"workers"`
	Incremental   bool   `yaml:"incremental" toml:"incremental"`
	HighlightCode bool   `yaml:"highlight_code" toml:"highlight_code"`
	Producer      string `yaml:"producer" toml:"producer"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Format, validation.Required, validation.In(export.FormatContainer, export.FormatFolder)),
		validation.Field(&c.Placement, validation.Required, validation.In(export.PlacementFirst, export.PlacementAll)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// ConverterConfig configures the external document converter.
type ConverterConfig struct {
	Binary    string        `yaml:"binary" toml:"binary"`
	OnFailure string        `yaml:"on_failure" toml:"on_failure"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
}

// Validate validates the converter configuration.
func (c *ConverterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.OnFailure, validation.Required, validation.In(convert.OnFailureSkip, convert.OnFailureFallback)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// ManifestConfig holds the export manifest location. An empty Path
// disables the manifest for plain exports.
type ManifestConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ServerConfig holds HTTP server configuration. A non-empty Token
// requires "Authorization: Bearer <token>" on API requests.
type ServerConfig struct {
	Port  int    `yaml:"port" toml:"port"`
	Token string `yaml:"token" toml:"token"`
}

// Address returns HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ExportOptions maps the configuration onto export.Options.
func (c *Config) ExportOptions(version string) export.Options {
	return export.Options{
		Mode:             c.Corpus.Mode,
		Format:           c.Export.Format,
		Output:           c.Export.Output,
		Placement:        c.Export.Placement,
		Workers:          c.Export.Workers,
		Incremental:      c.Export.Incremental,
		MaxExpansions:    c.Resolver.MaxExpansions,
		IncludeChildren:  c.Corpus.IncludeChildren,
		Extensions:       c.Corpus.NoteExtensions(),
		InternalDir:      c.Corpus.InternalDir,
		BackupDir:        c.Corpus.BackupDir,
		OnFailure:        c.Converter.OnFailure,
		ConverterBinary:  c.Converter.Binary,
		ConverterTimeout: c.Converter.Timeout,
		HighlightCode:    c.Export.HighlightCode,
		Application:      c.Export.Producer,
		Version:          version,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Corpus: CorpusConfig{
			Mode:        export.ModeLinked,
			InternalDir: "logseq",
			BackupDir:   "logseq/bak",
		},
		Resolver: ResolverConfig{
			MaxExpansions: resolver.DefaultMaxExpansions,
		},
		Export: ExportConfig{
			Format:    export.FormatContainer,
			Placement: export.PlacementFirst,
			Workers:   1,
			Producer:  "ansuz",
		},
		Converter: ConverterConfig{
			Binary:    convert.DefaultBinary,
			OnFailure: convert.OnFailureSkip,
		},
		Manifest: ManifestConfig{
			Path: "./ansuz.db",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}
