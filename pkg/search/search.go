// Package search fans queries out across the configured providers
// with bounded concurrency, normalizes and deduplicates what comes
// back, and returns documents ordered by score and recency.
package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/logger"
	"github.com/kadirpekel/dossier/pkg/observability"
	"github.com/kadirpekel/dossier/pkg/providers"
	"github.com/kadirpekel/dossier/pkg/ratelimit"
)

// DefaultCallTimeout bounds one provider call.
const DefaultCallTimeout = 30 * time.Second

// Options carries per-search retrieval options.
type Options struct {
	MaxResults int
	DaysBack   int
	Freshness  string
	Language   string
}

// Orchestrator coordinates retrieval fan-out for one session.
type Orchestrator struct {
	registry    *providers.Registry
	limiter     *ratelimit.Limiter
	bus         *events.Bus
	log         *slog.Logger
	workers     int
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus attaches the session event bus for progress reporting.
func WithBus(bus *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithWorkers sets the caller's worker cap (default 6). The effective
// cap is the minimum of this and the sum of per-provider caps.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithCallTimeout bounds a single provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// New creates an orchestrator over the registered providers.
func New(reg *providers.Registry, limiter *ratelimit.Limiter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    reg,
		limiter:     limiter,
		log:         logger.Component("search"),
		workers:     6,
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// task is one cell of the queries × sources product.
type task struct {
	query  string
	source string
}

// ParallelSearch fans queries across sources. Task failures are
// recorded on the bus and do not abort siblings; the call returns the
// deduplicated, ordered union of whatever succeeded. Empty queries or
// sources yield an empty result and no error.
func (o *Orchestrator) ParallelSearch(ctx context.Context, queries []string, sources []string, opts Options) ([]document.Document, error) {
	if len(queries) == 0 || len(sources) == 0 {
		return nil, nil
	}

	ctx, span := otel.Tracer("dossier/search").Start(ctx, "search.parallel")
	defer span.End()
	span.SetAttributes(
		attribute.Int("search.queries", len(queries)),
		attribute.Int("search.sources", len(sources)),
	)

	tasks := make([]task, 0, len(queries)*len(sources))
	for _, q := range queries {
		for _, s := range sources {
			tasks = append(tasks, task{query: q, source: s})
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		docs []document.Document
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.effectiveWorkers(sources))

	for _, t := range tasks {
		g.Go(func() error {
			results, err := o.runTask(gctx, t, opts)
			if err != nil {
				o.reportTaskFailure(t, err)
				return nil // siblings keep going
			}

			adapter, ok := o.registry.Get(t.source)
			if !ok {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, raw := range results {
				doc, ok := document.Normalize(t.source, adapter.Category(), raw)
				if !ok {
					continue
				}
				// First-wins dedup: the first task to return a URL
				// keeps its adapter attribution.
				if _, dup := seen[doc.URL]; dup {
					continue
				}
				seen[doc.URL] = struct{}{}
				docs = append(docs, doc)
			}
			return nil
		})
	}

	_ = g.Wait() // task errors never propagate; only ctx matters
	if err := ctx.Err(); err != nil {
		// Keep what we have; the controller decides whether partial
		// data is sufficient.
		OrderDocuments(docs)
		return docs, err
	}

	OrderDocuments(docs)
	span.SetAttributes(attribute.Int("search.documents", len(docs)))
	return docs, nil
}

// SearchByCategory restricts sources to the adapters registered under
// the category.
func (o *Orchestrator) SearchByCategory(ctx context.Context, queries []string, category document.SourceType, opts Options) ([]document.Document, error) {
	return o.ParallelSearch(ctx, queries, o.registry.ByCategory(category), opts)
}

// SearchWithFallback runs the preferred sources first and consults the
// fallback set when the preferred yield falls below half the requested
// volume. The merged result preserves first-wins dedup.
func (o *Orchestrator) SearchWithFallback(ctx context.Context, queries []string, preferred, fallback []string, opts Options) ([]document.Document, error) {
	docs, err := o.ParallelSearch(ctx, queries, preferred, opts)
	if err != nil {
		return docs, err
	}

	// Ceiling division: an odd requested volume still demands a strict
	// majority before the fallback is skipped.
	threshold := (len(queries)*opts.MaxResults + 1) / 2
	if len(docs) >= threshold {
		return docs, nil
	}
	if len(fallback) == 0 {
		return docs, nil
	}

	o.log.Info("Preferred sources under-delivered, consulting fallback",
		"got", len(docs), "threshold", threshold, "fallback", fallback)
	if o.bus != nil {
		o.bus.StepProgress("search", 0, "fallback", "escalating to fallback sources", map[string]any{
			"preferred_count": len(docs),
			"threshold":       threshold,
		})
	}

	more, err := o.ParallelSearch(ctx, queries, fallback, opts)
	merged := MergeDocuments(docs, more)
	OrderDocuments(merged)
	return merged, err
}

// AllSources returns every registered provider id.
func (o *Orchestrator) AllSources() []string {
	return o.registry.Names()
}

// Sources returns the provider ids for a category.
func (o *Orchestrator) Sources(category document.SourceType) []string {
	return o.registry.ByCategory(category)
}

// effectiveWorkers is min(caller cap, sum of per-provider caps).
func (o *Orchestrator) effectiveWorkers(sources []string) int {
	limit := o.workers
	if total := int(o.limiter.TotalCap(sources)); total < limit {
		limit = total
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// runTask performs one provider call under the provider's in-flight
// cap and the per-call timeout.
func (o *Orchestrator) runTask(ctx context.Context, t task, opts Options) ([]document.RawResult, error) {
	adapter, ok := o.registry.Get(t.source)
	if !ok {
		return nil, &providers.Error{Provider: t.source, Err: errUnknownProvider}
	}

	// Excess tasks wait on the provider's bucket, not the pool.
	if err := o.limiter.Acquire(ctx, t.source); err != nil {
		return nil, err
	}
	defer o.limiter.Release(t.source)

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := time.Now()
	results, err := adapter.Search(callCtx, t.query, providers.SearchOptions{
		MaxResults: opts.MaxResults,
		DaysBack:   opts.DaysBack,
		Freshness:  opts.Freshness,
		Language:   opts.Language,
	})
	observability.Active().RecordSearch(ctx, t.source, time.Since(start), len(results), err)
	return results, err
}

func (o *Orchestrator) reportTaskFailure(t task, err error) {
	o.log.Warn("Search task failed", "provider", t.source, "query", t.query, "error", err)
	if o.bus != nil {
		o.bus.StepProgress("search", 0, "task_failed", "search task failed", map[string]any{
			"provider": t.source,
			"query":    t.query,
			"error":    err.Error(),
		})
	}
}

var errUnknownProvider = &unknownProviderError{}

type unknownProviderError struct{}

func (*unknownProviderError) Error() string { return "provider not registered" }

// MergeDocuments unions b into a with first-wins URL dedup.
func MergeDocuments(a, b []document.Document) []document.Document {
	seen := make(map[string]struct{}, len(a))
	merged := make([]document.Document, 0, len(a)+len(b))
	for _, d := range a {
		seen[d.URL] = struct{}{}
		merged = append(merged, d)
	}
	for _, d := range b {
		if _, dup := seen[d.URL]; dup {
			continue
		}
		seen[d.URL] = struct{}{}
		merged = append(merged, d)
	}
	return merged
}
