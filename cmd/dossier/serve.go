package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/dossier/pkg/server"
)

// ServeCmd starts the JSON-RPC research server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)."`
	Watch bool `help:"Watch the config file for changes and hot-reload."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	opts := server.Options{Config: cfg}
	if c.Watch {
		if loader == nil {
			return fmt.Errorf("--watch requires --config")
		}
		opts.ConfigLoader = loader
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("\nDossier server ready\n")
	fmt.Printf("   RPC:     http://%s/rpc\n", cfg.Server.Address())
	fmt.Printf("   Stream:  http://%s/rpc/stream\n", cfg.Server.Address())
	fmt.Printf("   Health:  http://%s/health\n", cfg.Server.Address())
	if cfg.Observability.MetricsEnabled {
		fmt.Printf("   Metrics: http://%s/metrics\n", cfg.Server.Address())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if c.Watch {
		slog.Info("Config hot reload enabled", "path", cli.Config)
	}

	srv.Wait()
	return nil
}
