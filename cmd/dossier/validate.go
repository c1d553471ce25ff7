package main

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/dossier/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" help:"Configuration file path." type:"path"`

	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, loader, err := config.LoadConfigFile(context.Background(), c.Config)
	if err != nil {
		return fmt.Errorf("invalid configuration %s: %w", c.Config, err)
	}
	defer loader.Close()

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("%s is valid\n", c.Config)
	return nil
}
