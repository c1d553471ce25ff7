package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/kadirpekel/dossier/pkg/cli"
	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/logger"
	"github.com/kadirpekel/dossier/pkg/providers"
	"github.com/kadirpekel/dossier/pkg/ratelimit"
	"github.com/kadirpekel/dossier/pkg/research"
)

// ResearchCmd runs one research session in the terminal, streaming
// progress as colored status lines. Without a topic argument an
// interactive prompt asks for one.
type ResearchCmd struct {
	Topic string `arg:"" optional:"" help:"Topic to research."`

	Type             string   `help:"Report type (comprehensive, insight, industry, research, news_report, search, analysis, auto)." default:"auto"`
	Days             int      `help:"Recency window in days."`
	Language         string   `help:"Report language tag (e.g. en-US)."`
	MaxIterations    int      `name:"max-iterations" help:"Research loop iteration ceiling."`
	QualityThreshold float64  `name:"quality-threshold" help:"Quality accept threshold in [0, 1]."`
	Companies        []string `help:"Organizations to bias queries toward."`
	NoCitations      bool     `name:"no-citations" help:"Disable inline citations."`
	AutoConfirm      bool     `name:"auto-confirm" help:"Skip the outline approval prompt."`
}

func (c *ResearchCmd) Run(cliRoot *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, loader, err := loadConfig(ctx, cliRoot.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	topic := c.Topic
	if topic == "" {
		topic, err = cli.PromptTopic()
		if err != nil {
			return err
		}
	}

	registry, err := providers.NewFromConfig(cfg.Providers, logger.Component("cli"))
	if err != nil {
		return err
	}
	if registry.Count() == 0 {
		return fmt.Errorf("no usable search providers configured; set provider API keys or add keyless providers like arxiv")
	}

	llm, err := llms.NewFromConfig(&cfg.LLM)
	if err != nil {
		return err
	}
	if llm != nil {
		defer llm.Close()
	}

	limiter := ratelimit.New(providerCaps(cfg))
	pipeline := research.NewPipeline(cfg, llm, registry, limiter)

	req := research.Request{
		Topic:              topic,
		ReportType:         c.Type,
		DaysBack:           c.Days,
		Language:           c.Language,
		MaxIterations:      c.MaxIterations,
		QualityThreshold:   c.QualityThreshold,
		Companies:          c.Companies,
		AutoConfirmOutline: c.AutoConfirm,
	}
	if c.NoCitations {
		req.IncludeCitations = config.BoolPtr(false)
	}

	bus := events.NewBus(uuid.NewString(), 0)
	display := cli.NewDisplay(os.Stdout)

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		sub := bus.Subscribe()
		for {
			ev, ok := sub.Next(ctx)
			if !ok {
				return
			}
			display.Render(ev)
		}
	}()

	_, err = pipeline.Run(ctx, req, bus, cli.Gate(os.Stdin, os.Stdout))
	<-rendered
	return err
}

// providerCaps collects per-provider concurrency overrides.
func providerCaps(cfg *config.Config) map[string]int64 {
	caps := make(map[string]int64)
	for id, p := range cfg.Providers {
		if p != nil && p.MaxConcurrent > 0 {
			caps[id] = p.MaxConcurrent
		}
	}
	return caps
}
