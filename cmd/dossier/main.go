// Command dossier generates long-form analytical research reports.
//
// Usage:
//
//	dossier serve --config dossier.yaml
//	dossier research "solid-state battery supply chain" --type industry
//	dossier export reports/topic_industry_20260820_101500.md
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/dossier"
	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the JSON-RPC research server."`
	Research ResearchCmd `cmd:"" help:"Run one research session from the terminal."`
	Export   ExportCmd   `cmd:"" help:"Convert a report artifact to DOCX and XLSX."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(dossier.GetVersion().String())
	return nil
}

// loadConfig loads the configuration file, or falls back to the
// defaulted configuration when no path was given.
func loadConfig(ctx context.Context, path string) (*config.Config, *config.Loader, error) {
	if path == "" {
		return config.Default(), nil, nil
	}
	cfg, loader, err := config.LoadConfigFile(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, loader, nil
}

// initLogger applies the logging flags. Environment variables fill in
// when flags are absent; flags win.
func initLogger(cli *CLI) (func(), error) {
	levelStr := firstOf(cli.LogLevel, os.Getenv("LOG_LEVEL"), "info")
	file := firstOf(cli.LogFile, os.Getenv("LOG_FILE"))
	format := firstOf(cli.LogFormat, os.Getenv("LOG_FORMAT"), "simple")

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = closeFn
	}

	logger.Init(level, output, format)
	return cleanup, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("dossier"),
		kong.Description("Dossier - streaming research report engine"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
