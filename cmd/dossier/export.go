package main

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/dossier/pkg/export"
)

// ExportCmd converts a Markdown report artifact into office formats.
type ExportCmd struct {
	Artifact string `arg:"" help:"Markdown report artifact." type:"existingfile"`

	Format string `short:"f" help:"Output format." default:"all" enum:"docx,xlsx,all"`
	Out    string `short:"o" help:"Output path base (defaults to the artifact path without extension)."`
}

func (c *ExportCmd) Run(cli *CLI) error {
	artifact, err := export.ParseFile(c.Artifact)
	if err != nil {
		return err
	}

	base := c.Out
	if base == "" {
		base = strings.TrimSuffix(c.Artifact, ".md")
	}

	if c.Format == "docx" || c.Format == "all" {
		path := base + ".docx"
		if err := export.DOCX(artifact, path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
	}
	if c.Format == "xlsx" || c.Format == "all" {
		path := base + ".xlsx"
		if err := export.XLSX(artifact, path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}
