package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/dossier/pkg/analysis"
	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/extract"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/logger"
	"github.com/kadirpekel/dossier/pkg/observability"
	"github.com/kadirpekel/dossier/pkg/outline"
	"github.com/kadirpekel/dossier/pkg/providers"
	"github.com/kadirpekel/dossier/pkg/queries"
	"github.com/kadirpekel/dossier/pkg/ratelimit"
	"github.com/kadirpekel/dossier/pkg/report"
	"github.com/kadirpekel/dossier/pkg/search"
	"github.com/kadirpekel/dossier/pkg/writer"
)

// maxOutlineRefinements bounds the approval gate loop.
const maxOutlineRefinements = 3

// sectionDocLimit bounds the documents handed to one section writer.
const sectionDocLimit = 8

// OutlineGate reviews a planned outline. Returning approved=false
// with feedback triggers a refinement round; an error aborts the
// session.
type OutlineGate func(ctx context.Context, o *outline.Outline) (approved bool, feedback string, err error)

// Pipeline owns the session-independent collaborators and runs
// research sessions against them.
type Pipeline struct {
	cfg      *config.Config
	llm      llms.Provider
	registry *providers.Registry
	limiter  *ratelimit.Limiter
	sink     *report.Sink
	log      *slog.Logger
}

// NewPipeline assembles the pipeline. llm may be nil; every stage then
// uses its deterministic fallback.
func NewPipeline(cfg *config.Config, llm llms.Provider, registry *providers.Registry, limiter *ratelimit.Limiter) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		llm:      llm,
		registry: registry,
		limiter:  limiter,
		sink:     report.NewSink(cfg.Output),
		log:      logger.Component("pipeline"),
	}
}

// Run executes one research session end to end, publishing progress on
// the bus and terminating the stream with Final or Error. The returned
// report is nil when the session failed.
func (p *Pipeline) Run(ctx context.Context, req Request, bus *events.Bus, gate OutlineGate) (*report.Report, error) {
	rep, err := p.run(ctx, req, bus, gate)
	if err != nil {
		bus.Error(Classify(err), err.Error())
		return nil, err
	}
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, bus *events.Bus, gate OutlineGate) (*report.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	researchCfg := req.applyTo(p.cfg.Research)

	// The whole session lives under one wall-time budget.
	if researchCfg.SessionBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(researchCfg.SessionBudget)*time.Second)
		defer cancel()
	}

	// Per-session model handle: every successful call lands on the bus
	// as a ModelUsage event.
	llm := llms.WithUsage(p.llm, func(provider, model string, in, out int, wall time.Duration) {
		observability.Active().RecordLLMCall(context.Background(), model, wall, in, out, nil)
		bus.ModelUsage(events.UsageRecord{
			Provider:     provider,
			Model:        model,
			InputTokens:  in,
			OutputTokens: out,
			WallTimeMS:   wall.Milliseconds(),
		})
	})

	reportType := req.ReportType
	if reportType == ReportTypeAuto {
		reportType = (&classifier{llm: llm}).Classify(ctx, req.Topic)
		p.log.Info("Classified topic", "topic", req.Topic, "report_type", reportType)
	}

	bus.SessionStarted(req.Topic, reportType)

	orchestrator := search.New(p.registry, p.limiter,
		search.WithBus(bus),
		search.WithWorkers(p.cfg.Search.Workers),
	)
	analyzer := analysis.New(llm, p.cfg.Analysis, analysis.WithBus(bus))
	gen := queries.New(llm)

	controller := NewController(gen, orchestrator, analyzer, bus, researchCfg, p.cfg.Search)
	controller.Companies = req.Companies
	result, err := controller.Run(ctx, req.Topic)
	if err != nil {
		return nil, sessionErr(ctx, err, researchCfg)
	}

	// The search and analysis tasks stop here: their payload is a
	// digest of the research loop, not a sectioned report.
	if reportType == TaskSearch || reportType == TaskAnalysis {
		return p.finishDigest(bus, req.Topic, reportType, result)
	}

	if p.cfg.Extract.Enabled {
		bus.StepStarted("enrich", result.Iterations, "fetching full text for academic sources")
		result.Documents = extract.New(p.cfg.Extract).Enrich(ctx, result.Documents)
		bus.StepCompleted("enrich", result.Iterations, "full-text enrichment done")
	}

	o, err := p.planOutline(ctx, llm, bus, req, reportType, result, gate)
	if err != nil {
		return nil, sessionErr(ctx, err, researchCfg)
	}

	writerCfg := p.cfg.Writer
	if req.IncludeCitations != nil {
		writerCfg.IncludeCitations = req.IncludeCitations
	}
	w := writer.New(llm, writerCfg)
	sections, sectionsErr := p.writeSections(ctx, w, gen, orchestrator, bus, req, o, result, researchCfg)
	partial := sectionsErr != nil
	if partial {
		if !p.emitPartial(researchCfg, sectionsErr) || len(sections) == 0 {
			return nil, sessionErr(ctx, sectionsErr, researchCfg)
		}
		p.log.Warn("Assembling partial report after cancellation", "sections", len(sections))
	}

	summary, err := p.writeSummary(ctx, w, sections, researchCfg, partial)
	if err != nil {
		return nil, sessionErr(ctx, err, researchCfg)
	}

	rep := report.Assemble(req.Topic, o, sections, summary, report.Meta{
		SessionID:    bus.SessionID(),
		Iterations:   result.Iterations,
		SourceCount:  len(result.Documents),
		QualityScore: result.Quality,
		Extra:        map[string]any{"usage": bus.Totals(), "report_type": reportType},
	}, time.Now())

	path, err := p.sink.Write(rep, reportType)
	if err != nil {
		return nil, err
	}
	rep.Metadata["file_path"] = path

	bus.Final(events.FinalPayload{
		Content:  rep.Content,
		FilePath: path,
		Metadata: rep.Metadata,
	})
	return rep, nil
}

// finishDigest writes and publishes the payload of a search or
// analysis task.
func (p *Pipeline) finishDigest(bus *events.Bus, topic, taskType string, result *Result) (*report.Report, error) {
	meta := report.Meta{
		SessionID:   bus.SessionID(),
		Iterations:  result.Iterations,
		SourceCount: len(result.Documents),
	}

	var rep *report.Report
	if taskType == TaskSearch {
		rep = searchDigest(topic, result, time.Now(), meta)
	} else {
		rep = analysisDigest(topic, result, time.Now(), meta)
	}

	path, err := p.sink.Write(rep, taskType)
	if err != nil {
		return nil, err
	}
	rep.Metadata["file_path"] = path
	bus.Final(events.FinalPayload{
		Content:  rep.Content,
		FilePath: path,
		Metadata: rep.Metadata,
	})
	return rep, nil
}

// planOutline builds the outline and walks it through the approval
// gate, refining on feedback up to the bound.
func (p *Pipeline) planOutline(ctx context.Context, llm llms.Provider, bus *events.Bus, req Request, reportType string, result *Result, gate OutlineGate) (*outline.Outline, error) {
	bus.StepStarted("outline", result.Iterations, "planning outline")
	builder := outline.NewBuilder(llm)

	o, err := builder.Build(ctx, req.Topic, reportType, result.Documents)
	if err != nil {
		return nil, err
	}

	if gate != nil && !req.AutoConfirmOutline {
		for round := 0; round < maxOutlineRefinements; round++ {
			approved, feedback, err := gate(ctx, o)
			if err != nil {
				return nil, err
			}
			if approved {
				break
			}
			refined, err := builder.Refine(ctx, o, feedback)
			if err != nil {
				p.log.Warn("Outline refinement failed, keeping previous outline", "error", err)
				break
			}
			o = refined
		}
	}

	bus.StepCompleted("outline", result.Iterations, fmt.Sprintf("outline ready with %d sections", len(o.Leaves())))
	return o, nil
}

// writeSections generates every leaf section in a bounded-parallel
// pool. Cancellation returns the sections finished so far along with
// the error so the caller can assemble a partial report.
func (p *Pipeline) writeSections(ctx context.Context, w *writer.Writer, gen *queries.Generator, orchestrator *search.Orchestrator, bus *events.Bus, req Request, o *outline.Outline, result *Result, researchCfg config.ResearchConfig) ([]*writer.Section, error) {
	leaves := o.Leaves()
	bus.StepStarted("write_sections", 0, fmt.Sprintf("writing %d sections", len(leaves)))

	workers := p.cfg.Writer.SectionWorkers
	if len(leaves) < workers {
		workers = len(leaves)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		finished []*writer.Section
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, leaf := range leaves {
		g.Go(func() error {
			docs := p.sectionDocuments(gctx, gen, orchestrator, req, leaf, result, researchCfg)
			section, err := w.WriteSection(gctx, leaf, docs)
			if err != nil {
				return err
			}
			bus.SectionGenerated(events.SectionPayload{
				OutlineID: section.OutlineID,
				Title:     section.Title,
				WordCount: section.WordCount,
				Citations: len(section.Citations),
			})
			mu.Lock()
			finished = append(finished, section)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		bus.StepCompleted("write_sections", 0, "all sections written")
	}
	return finished, err
}

// sectionDocuments retrieves documents scoped to one section via
// targeted queries, topping up from the research set when retrieval
// comes back thin. Retrieval failures are not fatal: the accumulated
// set still backs the section.
func (p *Pipeline) sectionDocuments(ctx context.Context, gen *queries.Generator, orchestrator *search.Orchestrator, req Request, leaf *outline.Node, result *Result, researchCfg config.ResearchConfig) []document.Document {
	qs, err := gen.Generate(ctx, req.Topic, queries.StrategyTargeted, queries.Context{
		SectionTitle:       leaf.Title,
		SectionDescription: leaf.Description,
		KeyPoints:          leaf.KeyPoints,
		Companies:          req.Companies,
		Language:           researchCfg.Language,
	})
	if err != nil {
		return clipDocs(result.Documents, sectionDocLimit)
	}

	docs, err := orchestrator.ParallelSearch(ctx, queries.Texts(qs), orchestrator.AllSources(), search.Options{
		MaxResults: p.cfg.Search.MaxResultsPerQuery,
		DaysBack:   researchCfg.DaysBack,
		Language:   researchCfg.Language,
	})
	if err != nil && len(docs) == 0 {
		return clipDocs(result.Documents, sectionDocLimit)
	}

	merged := search.MergeDocuments(docs, result.Documents)
	return clipDocs(merged, sectionDocLimit)
}

// writeSummary renders the executive summary from the written
// sections. On the partial path the session context is already
// cancelled, so the model is out of reach and the extractive fallback
// serves directly.
func (p *Pipeline) writeSummary(ctx context.Context, w *writer.Writer, sections []*writer.Section, researchCfg config.ResearchConfig, partial bool) (string, error) {
	if len(sections) == 0 {
		return "", nil
	}
	constraints := writer.Constraints{
		Format:   writer.FormatExecutive,
		Length:   "200-300 words",
		Tone:     p.cfg.Writer.Tone,
		Audience: p.cfg.Writer.Audience,
	}
	if partial {
		return w.SummaryFallback(writer.FromSections(sections), constraints), nil
	}
	return w.WriteSummary(ctx, writer.FromSections(sections), constraints)
}

// emitPartial reports whether a cancelled session should still emit
// the sections that finished.
func (p *Pipeline) emitPartial(cfg config.ResearchConfig, err error) bool {
	return cfg.EmitPartialOnCancel &&
		(errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled))
}

// sessionErr normalizes context errors into the taxonomy.
func sessionErr(ctx context.Context, err error, cfg config.ResearchConfig) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return &TimeoutError{Stage: "session", Budget: time.Duration(cfg.SessionBudget) * time.Second}
	}
	return err
}

func clipDocs(docs []document.Document, limit int) []document.Document {
	if len(docs) <= limit {
		return docs
	}
	return docs[:limit]
}
