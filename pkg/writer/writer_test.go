package writer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/outline"
)

func writerConfig() config.WriterConfig {
	cfg := config.WriterConfig{MinSectionChars: 50, MaxSectionChars: 5000}
	cfg.SetDefaults()
	return cfg
}

// sequenceLLM returns scripted responses in order, recording prompts.
type sequenceLLM struct {
	responses []string
	prompts   []string
	calls     int
	err       error
}

func (s *sequenceLLM) ProviderName() string { return "seq" }
func (s *sequenceLLM) ModelName() string    { return "seq-model" }
func (s *sequenceLLM) Close() error         { return nil }

func (s *sequenceLLM) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.prompts = append(s.prompts, req.Prompt)
	idx := len(s.prompts) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return &llms.Response{Text: s.responses[idx]}, nil
}

func sectionNode() *outline.Node {
	return &outline.Node{
		ID:          3,
		Title:       "Market Dynamics",
		Description: "supply and demand forces",
		KeyPoints:   []string{"pricing trends", "demand drivers"},
	}
}

func sectionDocs() []document.Document {
	return []document.Document{
		{Title: "Pricing study", URL: "https://example.com/pricing", Content: "Prices fell 12% year over year according to the study."},
		{Title: "Demand outlook", URL: "https://example.com/demand", Content: "Demand is projected to double by 2030."},
	}
}

// ============================================================================
// Section writing
// ============================================================================

func TestWriteSectionCollectsCitations(t *testing.T) {
	body := strings.Repeat("Analysis of the market follows. ", 10) +
		"Prices fell sharply ([Pricing study](https://example.com/pricing)) while demand grew " +
		"([Demand outlook](https://example.com/demand)) and an uncited link ([x](https://other.com/x)) appears."
	llm := &sequenceLLM{responses: []string{body}}

	w := New(llm, writerConfig())
	section, err := w.WriteSection(context.Background(), sectionNode(), sectionDocs())
	require.NoError(t, err)

	assert.Equal(t, 3, section.OutlineID)
	require.Len(t, section.Citations, 2, "links outside the document set are not citations")
	assert.Equal(t, "https://example.com/pricing", section.Citations[0].URL)
	assert.Positive(t, section.WordCount)
}

func TestWriteSectionExpandsShortDraft(t *testing.T) {
	short := "Too short."
	long := strings.Repeat("A fuller treatment of the market. ", 20)
	llm := &sequenceLLM{responses: []string{short, long}}

	w := New(llm, writerConfig())
	section, err := w.WriteSection(context.Background(), sectionNode(), sectionDocs())
	require.NoError(t, err)

	require.Len(t, llm.prompts, 2, "short draft triggers one expand retry")
	assert.Contains(t, llm.prompts[1], "too short")
	assert.Equal(t, strings.TrimSpace(long), section.Content)
}

func TestWriteSectionRetriesAreCapped(t *testing.T) {
	llm := &sequenceLLM{responses: []string{"tiny"}}

	w := New(llm, writerConfig())
	_, err := w.WriteSection(context.Background(), sectionNode(), sectionDocs())
	require.NoError(t, err)

	assert.Len(t, llm.prompts, 1+maxLengthRetries, "initial call plus capped retries")
}

func TestWriteSectionFallbackWithoutModel(t *testing.T) {
	w := New(nil, writerConfig())
	section, err := w.WriteSection(context.Background(), sectionNode(), sectionDocs())
	require.NoError(t, err)

	assert.Contains(t, section.Content, "### pricing trends")
	require.NotEmpty(t, section.Citations)
	assert.Equal(t, "https://example.com/pricing", section.Citations[0].URL)
}

func TestWriteSectionModelErrorSurfaces(t *testing.T) {
	modelErr := &llms.ModelError{Provider: "seq", Model: "seq-model", Err: errors.New("overloaded")}
	llm := &sequenceLLM{err: modelErr}

	w := New(llm, writerConfig())
	section, err := w.WriteSection(context.Background(), sectionNode(), sectionDocs())

	require.Error(t, err)
	assert.Nil(t, section, "a configured model that keeps failing must not yield a fallback section")
	var me *llms.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 1+maxModelRetries, llm.calls, "initial call plus capped retries")
}

func TestComprehensiveSectionsNeedSubheadings(t *testing.T) {
	cfg := writerConfig()
	cfg.Depth = "comprehensive"
	cfg.MaxSectionChars = 4000

	flat := strings.Repeat("Prose without structure. ", 30)
	structured := "## A\ntext\n## B\ntext\n### C\ntext\n### D\ntext\n#### E\ntext\n## F\ntext\n### G\ntext\n" +
		strings.Repeat("More prose. ", 20)
	llm := &sequenceLLM{responses: []string{flat, structured}}

	w := New(llm, cfg)
	section, err := w.WriteSection(context.Background(), sectionNode(), sectionDocs())
	require.NoError(t, err)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "sub-headings")
	assert.GreaterOrEqual(t, countSubheadings(section.Content), minSubheadings)
}

func TestCountSubheadings(t *testing.T) {
	content := "# H1 ignored\n## one\n### two\n#### three\n##### five ignored\ntext ## not a heading"
	assert.Equal(t, 3, countSubheadings(content))
}

// ============================================================================
// Summaries
// ============================================================================

func TestWriteSummaryExtractiveFallback(t *testing.T) {
	w := New(nil, writerConfig())

	inputs := []Input{
		{Title: "grid batteries", Body: "Grid batteries stored 42 GWh last year. The weather was pleasant in spring. Battery costs dropped 30% since 2020. Unrelated filler sentence about nothing in particular here."},
	}
	got, err := w.WriteSummary(context.Background(), inputs, Constraints{
		Length:     "20 words",
		Format:     FormatParagraph,
		FocusAreas: []string{"batteries"},
	})
	require.NoError(t, err)

	assert.Contains(t, got, "42 GWh", "numeric, on-topic sentences win")
	assert.NotContains(t, got, "weather")
}

func TestWriteSummaryBulletFormat(t *testing.T) {
	w := New(nil, writerConfig())
	inputs := []Input{{Title: "topic", Body: "First topic finding with number 1. Second topic finding with number 2."}}

	got, err := w.WriteSummary(context.Background(), inputs, Constraints{Format: FormatBulletPoints, Length: "200 words"})
	require.NoError(t, err)
	for _, line := range strings.Split(got, "\n") {
		assert.True(t, strings.HasPrefix(line, "- "), "line %q is not a bullet", line)
	}
}

func TestWriteSummaryEmptyInput(t *testing.T) {
	w := New(nil, writerConfig())
	_, err := w.WriteSummary(context.Background(), nil, Constraints{})
	assert.Error(t, err)
}

func TestSummaryFallbackSkipsModel(t *testing.T) {
	llm := &sequenceLLM{err: context.Canceled}
	w := New(llm, writerConfig())

	inputs := []Input{
		{Title: "storage", Body: "Storage capacity reached 42 GWh in 2025. An unrelated aside about lunch breaks. Costs per kWh fell 30% over five years."},
	}
	got := w.SummaryFallback(inputs, Constraints{Length: "40 words"})

	assert.Zero(t, llm.calls, "extractive path never touches the model")
	assert.Contains(t, got, "42 GWh")
	assert.NotContains(t, got, "lunch")
}

func TestWriteMultiLevel(t *testing.T) {
	w := New(nil, writerConfig())
	inputs := []Input{{Title: "t", Body: "A finding about t worth 100 units. Another finding about t worth 200 units."}}

	got, err := w.WriteMultiLevel(context.Background(), inputs, []Constraints{
		{Format: FormatParagraph, Length: "50 words"},
		{Format: FormatBulletPoints, Length: "50 words"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[FormatParagraph])
	assert.True(t, strings.HasPrefix(got[FormatBulletPoints], "- "))
}

func TestParseLength(t *testing.T) {
	cases := []struct {
		spec     string
		min, max int
		unit     string
	}{
		{"150-250 words", 150, 250, "words"},
		{"500 chars", 500, 500, "chars"},
		{"300", 300, 300, "words"},
		{"", 150, 250, "words"},
		{"garbage", 150, 250, "words"},
	}
	for _, tc := range cases {
		min, max, unit := parseLength(tc.spec)
		assert.Equal(t, tc.min, min, tc.spec)
		assert.Equal(t, tc.max, max, tc.spec)
		assert.Equal(t, tc.unit, unit, tc.spec)
	}
}

func TestCountWordsCJK(t *testing.T) {
	assert.Equal(t, 4, countWords("four words right here"))
	dense := strings.Repeat("储能电池市场分析", 10)
	assert.Equal(t, len([]rune(dense)), countWords(dense))
}
