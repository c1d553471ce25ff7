package research

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/outline"
	"github.com/kadirpekel/dossier/pkg/providers"
	"github.com/kadirpekel/dossier/pkg/ratelimit"
	"github.com/kadirpekel/dossier/pkg/writer"
)

// cannedAdapter serves deterministic results for pipeline tests.
type cannedAdapter struct {
	id       string
	category document.SourceType
}

func (c *cannedAdapter) ID() string                    { return c.id }
func (c *cannedAdapter) Category() document.SourceType { return c.category }

func (c *cannedAdapter) Search(ctx context.Context, query string, opts providers.SearchOptions) ([]document.RawResult, error) {
	content := fmt.Sprintf("Findings for %q: market data shows growth, policy review is under way, the technology assessment cites research evidence, investment reached 4.2 billion according to the published survey, and risk analysis flags three concerns. ", query)
	for len(content) < 2100 {
		content += content
	}
	return []document.RawResult{
		{
			Title:   fmt.Sprintf("%s report on %s", c.id, query),
			URL:     fmt.Sprintf("https://site-%s.example/%x", c.id, len(query)),
			Content: content,
		},
	}, nil
}

func testPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	reg := providers.NewRegistry()
	for _, id := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, reg.Register(id, &cannedAdapter{id: id, category: document.SourceTypeWeb}))
	}

	dir := t.TempDir()
	cfg := config.Default()
	cfg.SetDefaults()
	cfg.Output.Dir = dir
	cfg.Research.QualityThreshold = 0.5
	cfg.Research.SessionBudget = 60

	return NewPipeline(cfg, nil, reg, ratelimit.New(nil)), dir
}

func TestPipelineEndToEnd(t *testing.T) {
	p, dir := testPipeline(t)
	bus := events.NewBus("session-1", 0)
	sub := bus.Subscribe()

	rep, err := p.Run(context.Background(), Request{
		Topic:              "grid scale storage market",
		ReportType:         outline.TypeComprehensive,
		AutoConfirmOutline: true,
	}, bus, nil)
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.NotEmpty(t, rep.Sections, "every outline leaf gets a section")
	assert.NotEmpty(t, rep.Content)
	assert.Contains(t, rep.Content, "# grid scale storage market")
	assert.Contains(t, rep.Content, "## Table of Contents")

	// Stream terminates with exactly one Final carrying the artifact.
	var kinds []events.Kind
	var final events.FinalPayload
	for {
		ev, ok := sub.Next(context.Background())
		if !ok {
			break
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == events.KindFinal {
			final = ev.Payload.(events.FinalPayload)
		}
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, events.KindSessionStarted, kinds[0])
	assert.Equal(t, events.KindFinal, kinds[len(kinds)-1])

	// Artifact on disk, BOM first.
	require.NotEmpty(t, final.FilePath)
	data, err := os.ReadFile(final.FilePath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	assert.Contains(t, final.FilePath, dir)
}

func TestPipelineRejectsInvalidRequest(t *testing.T) {
	p, _ := testPipeline(t)
	bus := events.NewBus("session-2", 0)
	sub := bus.Subscribe()

	_, err := p.Run(context.Background(), Request{Topic: ""}, bus, nil)
	require.Error(t, err)
	assert.Equal(t, ErrTypeValidation, Classify(err))

	// The stream terminates with an Error event carrying the taxonomy.
	var last events.Event
	for {
		ev, ok := sub.Next(context.Background())
		if !ok {
			break
		}
		last = ev
	}
	require.Equal(t, events.KindError, last.Kind)
	assert.Equal(t, ErrTypeValidation, last.Payload.(events.ErrorPayload).Type)
}

func TestPipelineOutlineGateReceivesOutline(t *testing.T) {
	p, _ := testPipeline(t)
	bus := events.NewBus("session-3", 0)

	var seen *outline.Outline
	gate := func(ctx context.Context, o *outline.Outline) (bool, string, error) {
		seen = o
		return true, "", nil
	}

	_, err := p.Run(context.Background(), Request{
		Topic:      "battery recycling",
		ReportType: outline.TypeIndustry,
	}, bus, gate)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, outline.TypeIndustry, seen.ReportType)
}

// downedLLM refuses every call, surfacing the context error when the
// session is already cancelled.
type downedLLM struct{}

func (downedLLM) ProviderName() string { return "down" }
func (downedLLM) ModelName() string    { return "down-model" }
func (downedLLM) Close() error         { return nil }

func (downedLLM) Generate(ctx context.Context, _ llms.Request) (*llms.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("model unreachable")
}

func TestPartialSummarySurvivesCancelledSession(t *testing.T) {
	p, _ := testPipeline(t)
	p.cfg.Research.EmitPartialOnCancel = true

	require.True(t, p.emitPartial(p.cfg.Research, context.Canceled))
	require.True(t, p.emitPartial(p.cfg.Research, fmt.Errorf("run: %w", ErrCancelled)))
	assert.False(t, p.emitPartial(p.cfg.Research, fmt.Errorf("boom")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := writer.New(downedLLM{}, p.cfg.Writer)
	sections := []*writer.Section{{
		Title:   "Market findings",
		Content: "Installed capacity grew 40% in 2025. Storage costs fell 18% over the same period.",
	}}

	// The non-partial path cannot reach the model once the session is
	// cancelled.
	_, err := p.writeSummary(ctx, w, sections, p.cfg.Research, false)
	require.ErrorIs(t, err, context.Canceled)

	// The partial path summarizes extractively and still delivers.
	summary, err := p.writeSummary(ctx, w, sections, p.cfg.Research, true)
	require.NoError(t, err)
	assert.Contains(t, summary, "40%")
}

func TestClassifierKeywordRouting(t *testing.T) {
	c := &classifier{}
	cases := map[string]string{
		"semiconductor industry market structure": outline.TypeIndustry,
		"latest news on chip export controls":     outline.TypeNewsReport,
		"survey of diffusion model research":      outline.TypeResearch,
		"something entirely neutral":              outline.TypeComprehensive,
	}
	for topic, want := range cases {
		assert.Equal(t, want, c.Classify(context.Background(), topic), topic)
	}
}

func TestPipelineSearchTask(t *testing.T) {
	p, _ := testPipeline(t)
	bus := events.NewBus("session-4", 0)

	rep, err := p.Run(context.Background(), Request{
		Topic:      "perovskite solar cells",
		ReportType: TaskSearch,
	}, bus, nil)
	require.NoError(t, err)

	assert.Contains(t, rep.Content, "# Search results: perovskite solar cells")
	assert.Empty(t, rep.Sections, "search task skips section writing")
}

func TestPipelineAnalysisTask(t *testing.T) {
	p, _ := testPipeline(t)
	bus := events.NewBus("session-5", 0)

	rep, err := p.Run(context.Background(), Request{
		Topic:      "perovskite solar cells",
		ReportType: TaskAnalysis,
	}, bus, nil)
	require.NoError(t, err)

	assert.Contains(t, rep.Content, "# Analysis: perovskite solar cells")
	assert.Contains(t, rep.Content, "## Coverage")
}
