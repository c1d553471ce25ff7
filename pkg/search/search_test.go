package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/providers"
	"github.com/kadirpekel/dossier/pkg/ratelimit"
)

// ============================================================================
// Test fixtures
// ============================================================================

// mockAdapter records in-flight concurrency and serves canned results.
type mockAdapter struct {
	id       string
	category document.SourceType
	results  func(query string) []document.RawResult
	err      error
	delay    time.Duration

	inFlight int64
	maxSeen  int64
	calls    int64
}

func (m *mockAdapter) ID() string                    { return m.id }
func (m *mockAdapter) Category() document.SourceType { return m.category }

func (m *mockAdapter) Search(ctx context.Context, query string, opts providers.SearchOptions) ([]document.RawResult, error) {
	atomic.AddInt64(&m.calls, 1)
	cur := atomic.AddInt64(&m.inFlight, 1)
	defer atomic.AddInt64(&m.inFlight, -1)

	for {
		max := atomic.LoadInt64(&m.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt64(&m.maxSeen, max, cur) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.results == nil {
		return nil, nil
	}
	return m.results(query), nil
}

func rawResult(title, url string) []document.RawResult {
	return []document.RawResult{{Title: title, URL: url, Content: "body of " + title}}
}

func newTestRegistry(t *testing.T, adapters ...*mockAdapter) *providers.Registry {
	t.Helper()
	reg := providers.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a.id, a))
	}
	return reg
}

// ============================================================================
// Fan-out and dedup
// ============================================================================

func TestParallelSearchDeduplicatesFirstWins(t *testing.T) {
	shared := "https://example.com/shared"
	fast := &mockAdapter{
		id:       "fast",
		category: document.SourceTypeWeb,
		results:  func(q string) []document.RawResult { return rawResult("fast "+q, shared) },
	}
	slow := &mockAdapter{
		id:       "slow",
		category: document.SourceTypeWeb,
		delay:    50 * time.Millisecond,
		results:  func(q string) []document.RawResult { return rawResult("slow "+q, shared) },
	}

	o := New(newTestRegistry(t, fast, slow), ratelimit.New(nil))
	docs, err := o.ParallelSearch(context.Background(), []string{"q"}, []string{"fast", "slow"}, Options{MaxResults: 5})
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "fast q", docs[0].Title)
	assert.Equal(t, "fast", docs[0].Source)
}

func TestParallelSearchEmptyInputs(t *testing.T) {
	o := New(newTestRegistry(t), ratelimit.New(nil))

	docs, err := o.ParallelSearch(context.Background(), nil, []string{"fast"}, Options{})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = o.ParallelSearch(context.Background(), []string{"q"}, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestParallelSearchSurvivesPartialFailure(t *testing.T) {
	good := &mockAdapter{
		id:       "good",
		category: document.SourceTypeWeb,
		results:  func(q string) []document.RawResult { return rawResult(q, "https://example.com/"+q) },
	}
	broken := &mockAdapter{
		id:       "broken",
		category: document.SourceTypeWeb,
		err:      fmt.Errorf("boom"),
	}

	bus := events.NewBus("sess", 64)
	sub := bus.Subscribe()

	o := New(newTestRegistry(t, good, broken), ratelimit.New(nil), WithBus(bus))
	docs, err := o.ParallelSearch(context.Background(), []string{"a", "b"}, []string{"good", "broken"}, Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	bus.Final(events.FinalPayload{}) // terminate the stream so draining ends

	var failures int
	for {
		ev, ok := sub.Next(context.Background())
		if !ok {
			break
		}
		if ev.Kind != events.KindStepProgress {
			continue
		}
		if p, ok := ev.Payload.(events.ProgressPayload); ok && p.Status == "task_failed" {
			failures++
		}
	}
	assert.Equal(t, 2, failures, "one progress event per failed task")
}

// ============================================================================
// Concurrency caps
// ============================================================================

func TestParallelSearchHonorsProviderCap(t *testing.T) {
	capped := &mockAdapter{
		id:       "capped",
		category: document.SourceTypeWeb,
		delay:    20 * time.Millisecond,
		results:  func(q string) []document.RawResult { return rawResult(q, "https://example.com/"+q) },
	}

	limiter := ratelimit.New(map[string]int64{"capped": 2})
	o := New(newTestRegistry(t, capped), limiter, WithWorkers(6))

	queries := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	docs, err := o.ParallelSearch(context.Background(), queries, []string{"capped"}, Options{MaxResults: 1})
	require.NoError(t, err)

	assert.Len(t, docs, len(queries))
	assert.LessOrEqual(t, atomic.LoadInt64(&capped.maxSeen), int64(2),
		"in-flight requests must stay within the provider cap")
	assert.Equal(t, int64(len(queries)), atomic.LoadInt64(&capped.calls))
}

func TestEffectiveWorkersShrinksToProviderBudget(t *testing.T) {
	limiter := ratelimit.New(map[string]int64{"solo": 2})
	o := New(providers.NewRegistry(), limiter, WithWorkers(6))

	assert.Equal(t, 2, o.effectiveWorkers([]string{"solo"}))
	assert.Equal(t, 5, o.effectiveWorkers([]string{"solo", "other"})) // other gets the default cap of 3
}

// ============================================================================
// Ordering
// ============================================================================

func TestOrderDocuments(t *testing.T) {
	date := func(s string) *time.Time {
		ts, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return &ts
	}
	score := func(v float64) *float64 { return &v }

	docs := []document.Document{
		{URL: "undated-low"},
		{URL: "old", PublishDate: date("2024-01-01")},
		{URL: "scored", Score: score(0.9), PublishDate: date("2023-01-01")},
		{URL: "new", PublishDate: date("2025-06-01")},
		{URL: "scored-undated", Score: score(0.9)},
	}

	OrderDocuments(docs)

	got := make([]string, len(docs))
	for i, d := range docs {
		got[i] = d.URL
	}
	assert.Equal(t, []string{"scored", "scored-undated", "new", "old", "undated-low"}, got)
}

// ============================================================================
// Fallback
// ============================================================================

func TestSearchWithFallback(t *testing.T) {
	thin := &mockAdapter{
		id:       "thin",
		category: document.SourceTypeWeb,
		results: func(q string) []document.RawResult {
			if q != "a" {
				return nil
			}
			return rawResult("thin", "https://example.com/thin")
		},
	}
	deep := &mockAdapter{
		id:       "deep",
		category: document.SourceTypeAcademic,
		results: func(q string) []document.RawResult {
			return rawResult("deep "+q, "https://example.com/deep-"+q)
		},
	}

	o := New(newTestRegistry(t, thin, deep), ratelimit.New(nil))

	// 2 queries x 4 results wanted => threshold 4; thin yields 1.
	docs, err := o.SearchWithFallback(context.Background(),
		[]string{"a", "b"}, []string{"thin"}, []string{"deep"}, Options{MaxResults: 4})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Equal(t, int64(2), atomic.LoadInt64(&deep.calls), "fallback consulted")
}

func TestSearchWithFallbackSkippedWhenSatisfied(t *testing.T) {
	rich := &mockAdapter{
		id:       "rich",
		category: document.SourceTypeWeb,
		results: func(q string) []document.RawResult {
			var out []document.RawResult
			for i := 0; i < 4; i++ {
				out = append(out, document.RawResult{
					Title: fmt.Sprintf("%s-%d", q, i),
					URL:   fmt.Sprintf("https://example.com/%s/%d", q, i),
				})
			}
			return out
		},
	}
	spare := &mockAdapter{id: "spare", category: document.SourceTypeWeb}

	o := New(newTestRegistry(t, rich, spare), ratelimit.New(nil))
	docs, err := o.SearchWithFallback(context.Background(),
		[]string{"a"}, []string{"rich"}, []string{"spare"}, Options{MaxResults: 4})
	require.NoError(t, err)
	assert.Len(t, docs, 4)
	assert.Zero(t, atomic.LoadInt64(&spare.calls), "fallback must not run when the threshold is met")
}

func TestSearchWithFallbackThresholdRoundsUp(t *testing.T) {
	// 3 queries x 5 results wanted => threshold ceil(15/2) = 8.
	perQuery := map[string]int{"a": 3, "b": 3, "c": 1}
	uneven := &mockAdapter{
		id:       "uneven",
		category: document.SourceTypeWeb,
		results: func(q string) []document.RawResult {
			var out []document.RawResult
			for i := 0; i < perQuery[q]; i++ {
				out = append(out, document.RawResult{
					Title: fmt.Sprintf("%s-%d", q, i),
					URL:   fmt.Sprintf("https://example.com/%s/%d", q, i),
				})
			}
			return out
		},
	}
	extra := &mockAdapter{
		id:       "extra",
		category: document.SourceTypeAcademic,
		results: func(q string) []document.RawResult {
			return rawResult("extra "+q, "https://example.com/extra-"+q)
		},
	}

	o := New(newTestRegistry(t, uneven, extra), ratelimit.New(nil))

	// 7 preferred documents sit below the rounded-up threshold of 8.
	docs, err := o.SearchWithFallback(context.Background(),
		[]string{"a", "b", "c"}, []string{"uneven"}, []string{"extra"}, Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&extra.calls), "7 of 15 is a minority, fallback must run")
	assert.Len(t, docs, 10)

	// One more preferred document reaches the threshold exactly.
	perQuery["c"] = 2
	atomic.StoreInt64(&extra.calls, 0)
	docs, err = o.SearchWithFallback(context.Background(),
		[]string{"a", "b", "c"}, []string{"uneven"}, []string{"extra"}, Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt64(&extra.calls), "8 of 15 meets the threshold")
	assert.Len(t, docs, 8)
}

// ============================================================================
// Merge
// ============================================================================

func TestMergeDocumentsFirstWins(t *testing.T) {
	a := []document.Document{{URL: "u1", Title: "A"}}
	b := []document.Document{{URL: "u1", Title: "B"}, {URL: "u2", Title: "C"}}

	merged := MergeDocuments(a, b)
	require.Len(t, merged, 2)
	assert.Equal(t, "A", merged[0].Title)
	assert.Equal(t, "C", merged[1].Title)
}
