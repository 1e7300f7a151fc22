package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/export"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

var version = "dev"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file (.yaml or .toml)",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func corpusFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(),
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Corpus mode: linked or generic",
		},
	}
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.Args().First(); root != "" {
		cfg.Corpus.Root = root
	}
	if cmd.IsSet("mode") {
		cfg.Corpus.Mode = cmd.String("mode")
	}
	if cmd.IsSet("folders") && cmd.Bool("folders") {
		cfg.Export.Format = export.FormatFolder
	}
	if cmd.IsSet("out") {
		cfg.Export.Output = cmd.String("out")
	}
	if cmd.IsSet("placement") {
		cfg.Export.Placement = cmd.String("placement")
	}
	if cmd.IsSet("incremental") {
		cfg.Export.Incremental = cmd.Bool("incremental")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	_, err = internal.Export(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithWatch(cmd.Bool("watch")),
	)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Serve(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.MCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func exportFlags() []cli.Flag {
	return append(corpusFlags(),
		&cli.BoolFlag{
			Name:  "folders",
			Usage: "Write a folder tree of Markdown files instead of one ENEX file",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Output file (container) or directory (folders)",
		},
		&cli.StringFlag{
			Name:  "placement",
			Usage: "Tag folder placement for --folders: first or all",
		},
		&cli.BoolFlag{
			Name:  "incremental",
			Usage: "Skip writing folder notes unchanged since the last export",
		},
	)
}

func main() {
	cmd := &cli.Command{
		Name:    "ansuz",
		Usage:   "Export outline notes with block references to ENEX or a Markdown folder tree",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Export the corpus at <root>",
				ArgsUsage: "<root>",
				Action:    runExport,
				Flags: append(exportFlags(),
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Re-export whenever the corpus changes",
					},
				),
			},
			{
				Name:      "serve",
				Usage:     "Export, watch and serve the export manifest over HTTP",
				ArgsUsage: "<root>",
				Action:    runServe,
				Flags:     exportFlags(),
			},
			{
				Name:      "mcp",
				Usage:     "Serve block resolution and tag tools over MCP stdio",
				ArgsUsage: "<root>",
				Action:    runMCP,
				Flags:     corpusFlags(),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
