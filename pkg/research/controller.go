package research

import (
	"context"
	"log/slog"
	"time"

	"github.com/kadirpekel/dossier/pkg/analysis"
	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/logger"
	"github.com/kadirpekel/dossier/pkg/queries"
	"github.com/kadirpekel/dossier/pkg/search"
)

// Controller states. The loop is linear with two side branches:
// escalation on an empty first search, regeneration below threshold.
type state int

const (
	stateGenerate state = iota
	stateSearch
	stateAnalyze
	stateGate
	stateRegenerate
	stateEscalate
	stateAccept
)

// Searcher is the retrieval surface the controller drives.
type Searcher interface {
	ParallelSearch(ctx context.Context, queries []string, sources []string, opts search.Options) ([]document.Document, error)
	SearchWithFallback(ctx context.Context, queries []string, preferred, fallback []string, opts search.Options) ([]document.Document, error)
	AllSources() []string
}

// Controller runs the quality-gated research loop for one session.
type Controller struct {
	queries   *queries.Generator
	search    Searcher
	analyzer  *analysis.Analyzer
	bus       *events.Bus
	cfg       config.ResearchConfig
	searchCfg config.SearchConfig
	log       *slog.Logger

	// Companies biases query generation when set.
	Companies []string
}

// NewController wires the loop.
func NewController(gen *queries.Generator, s Searcher, a *analysis.Analyzer, bus *events.Bus, cfg config.ResearchConfig, searchCfg config.SearchConfig) *Controller {
	return &Controller{
		queries:   gen,
		search:    s,
		analyzer:  a,
		bus:       bus,
		cfg:       cfg,
		searchCfg: searchCfg,
		log:       logger.Component("research"),
	}
}

// Result is the accepted outcome of the loop.
type Result struct {
	Documents  []document.Document
	Quality    float64
	Gap        analysis.GapReport
	Iterations int
}

// Run executes the loop until the quality gate accepts, iterations or
// budget run out, or an error terminates the session. The accumulated
// set is always scored as a whole, never the per-iteration delta.
func (c *Controller) Run(ctx context.Context, topic string) (*Result, error) {
	var (
		st          = stateGenerate
		iteration   = 0
		queryBatch  []queries.Query
		accumulated []document.Document
		quality     float64
		gap         analysis.GapReport
	)

	opts := search.Options{
		MaxResults: c.searchCfg.MaxResultsPerQuery,
		DaysBack:   c.cfg.DaysBack,
		Language:   c.cfg.Language,
	}

	for st != stateAccept {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch st {
		case stateGenerate:
			c.bus.StepStarted("generate_queries", iteration, "generating initial queries")
			qs, err := c.queries.Generate(ctx, topic, queries.StrategyInitial, queries.Context{
				Companies: c.Companies,
				Language:  c.cfg.Language,
			})
			if err != nil {
				return nil, err
			}
			queryBatch = qs
			c.bus.StepCompleted("generate_queries", iteration, "queries ready")
			st = stateSearch

		case stateSearch:
			docs, err := c.searchIteration(ctx, queryBatch, iteration, opts)
			if err != nil {
				return nil, err
			}
			if len(docs) == 0 && iteration == 0 {
				st = stateEscalate
				continue
			}
			accumulated = search.MergeDocuments(accumulated, docs)
			st = stateAnalyze

		case stateEscalate:
			c.bus.StepStarted("search", iteration, "escalating to fallback sources")
			docs, err := c.search.SearchWithFallback(ctx, queries.Texts(queryBatch),
				c.preferredSources(), c.fallbackSources(), opts)
			if err != nil {
				return nil, err
			}
			accumulated = search.MergeDocuments(accumulated, docs)
			iteration++
			c.bus.StepCompleted("search", iteration, "fallback search done")
			st = stateAnalyze

		case stateAnalyze:
			c.bus.StepStarted("analyze", iteration, "scoring accumulated documents")
			quality, gap = c.analyzer.Analyze(ctx, topic, accumulated, iteration)
			c.bus.StepCompleted("analyze", iteration, "analysis done")
			st = stateGate

		case stateGate:
			switch {
			case quality >= c.cfg.QualityThreshold:
				c.log.Info("Quality gate passed", "quality", quality, "iteration", iteration)
				st = stateAccept
			case iteration >= c.cfg.MaxIterations:
				c.log.Info("Iteration ceiling reached, accepting", "quality", quality, "iteration", iteration)
				st = stateAccept
			case c.budgetExhausted(ctx):
				c.log.Info("Session budget nearly exhausted, accepting", "quality", quality)
				st = stateAccept
			default:
				st = stateRegenerate
			}

		case stateRegenerate:
			c.bus.StepStarted("generate_queries", iteration, "targeting coverage gaps")
			qs, err := c.queries.Generate(ctx, topic, queries.StrategyIterative, queries.Context{
				MissingAspects: gap.MissingAspects,
				WeakSources:    gap.WeakSources,
				Companies:      c.Companies,
				Language:       c.cfg.Language,
			})
			if err != nil {
				return nil, err
			}
			queryBatch = qs
			iteration++
			c.bus.StepCompleted("generate_queries", iteration, "gap queries ready")
			st = stateSearch
		}
	}

	return &Result{
		Documents:  accumulated,
		Quality:    quality,
		Gap:        gap,
		Iterations: iteration,
	}, nil
}

// searchIteration runs one bounded search pass.
func (c *Controller) searchIteration(ctx context.Context, batch []queries.Query, iteration int, opts search.Options) ([]document.Document, error) {
	budget := time.Duration(c.cfg.IterationBudget) * time.Second
	searchCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	c.bus.StepStarted("search", iteration, "searching")
	docs, err := c.search.ParallelSearch(searchCtx, queries.Texts(batch), c.preferredSources(), opts)
	if err != nil {
		// An iteration deadline is absorbed: partial results flow on.
		if searchCtx.Err() != nil && ctx.Err() == nil {
			c.log.Warn("Search iteration hit its time budget", "iteration", iteration)
			c.bus.StepCompleted("search", iteration, "search truncated by iteration budget")
			return docs, nil
		}
		return nil, err
	}
	c.bus.StepCompleted("search", iteration, "search done")
	return docs, nil
}

// budgetExhausted reports whether too little of the session budget
// remains for another search+analyze round.
func (c *Controller) budgetExhausted(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return false
	}
	reserve := time.Duration(c.cfg.IterationBudget) * time.Second / 2
	return time.Until(deadline) < reserve
}

func (c *Controller) preferredSources() []string {
	if len(c.searchCfg.Preferred) > 0 {
		return c.searchCfg.Preferred
	}
	return c.search.AllSources()
}

func (c *Controller) fallbackSources() []string {
	if len(c.searchCfg.Fallback) > 0 {
		return c.searchCfg.Fallback
	}
	return c.search.AllSources()
}
