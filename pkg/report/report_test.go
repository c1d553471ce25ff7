package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/outline"
	"github.com/kadirpekel/dossier/pkg/writer"
)

func sampleOutline() *outline.Outline {
	return &outline.Outline{
		Topic:      "grid storage",
		ReportType: outline.TypeComprehensive,
		Nodes: []*outline.Node{
			{ID: 1, Title: "Background", KeyPoints: []string{"a"}},
			{ID: 2, Title: "Analysis", Children: []*outline.Node{
				{ID: 3, Title: "Costs", KeyPoints: []string{"b"}},
				{ID: 4, Title: "Policy", KeyPoints: []string{"c"}},
			}},
		},
	}
}

func sampleSections() []*writer.Section {
	return []*writer.Section{
		{OutlineID: 1, Title: "Background", Content: "History here.", Citations: []writer.Citation{
			{Title: "Origin study", URL: "https://example.com/origins"},
		}},
		{OutlineID: 3, Title: "Costs", Content: "Costs fell.", Citations: []writer.Citation{
			{Title: "Cost data", URL: "https://example.com/costs"},
			{Title: "Origin study", URL: "https://example.com/origins"},
		}},
		{OutlineID: 4, Title: "Policy", Content: "Policy shifted."},
	}
}

func TestAssembleLayout(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	r := Assemble("grid storage", sampleOutline(), sampleSections(), "Summary of it all.",
		Meta{SessionID: "s-1", Iterations: 2, SourceCount: 9, QualityScore: 0.81}, now)

	content := r.Content

	// Deterministic ordering of the top-level blocks.
	h1 := strings.Index(content, "# grid storage")
	summary := strings.Index(content, "## Executive Summary")
	toc := strings.Index(content, "## Table of Contents")
	background := strings.Index(content, "## Background")
	refs := strings.Index(content, "## References")
	require.True(t, h1 >= 0 && summary > h1 && toc > summary && background > toc && refs > background,
		"layout out of order: %d %d %d %d %d", h1, summary, toc, background, refs)

	// Nested sections get deeper headings under their parent.
	assert.Contains(t, content, "## Analysis")
	assert.Contains(t, content, "### Costs")
	assert.Contains(t, content, "### Policy")

	// ToC anchors.
	assert.Contains(t, content, "- [Background](#background)")
	assert.Contains(t, content, "  - [Costs](#costs)")

	// Metadata block.
	assert.Contains(t, content, "session `s-1`")
	assert.Contains(t, content, "9 sources")
}

func TestReferencesFirstAppearanceOrder(t *testing.T) {
	r := Assemble("t", sampleOutline(), sampleSections(), "", Meta{}, time.Now())

	require.Len(t, r.References, 2, "duplicate URLs collapse")
	assert.Equal(t, "https://example.com/origins", r.References[0].URL, "first appearance wins")
	assert.Equal(t, "https://example.com/costs", r.References[1].URL)

	// Closure: every citation URL is in the references.
	refURLs := map[string]bool{}
	for _, ref := range r.References {
		refURLs[ref.URL] = true
	}
	for _, s := range r.Sections {
		for _, c := range s.Citations {
			assert.True(t, refURLs[c.URL], "citation %s missing from references", c.URL)
		}
	}
}

func TestAssemblePartialSections(t *testing.T) {
	// Only one of three leaves finished, as after a cancellation.
	sections := sampleSections()[:1]
	r := Assemble("t", sampleOutline(), sections, "", Meta{}, time.Now())

	assert.Len(t, r.Sections, 1)
	assert.Contains(t, r.Content, "## Background")
	assert.NotContains(t, r.Content, "### Costs")
	assert.NotContains(t, r.Content, "- [Costs]", "unwritten leaves drop from the ToC")
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, "market-dynamics", anchor("Market Dynamics"))
	assert.Equal(t, "whats-next-2026", anchor("What's Next: 2026?"))
	assert.Equal(t, "储能市场", anchor("储能市场"))
}

func TestSinkWritesBOM(t *testing.T) {
	dir := t.TempDir()
	cfg := config.OutputConfig{Dir: dir}
	cfg.SetDefaults()
	cfg.Dir = dir

	sink := NewSink(cfg)
	r := &Report{Topic: "Grid Storage: 2026 Outlook", Content: "# hi\n"}

	path, err := sink.Write(r, "comprehensive")
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "Grid_Storage_2026_Outlook_comprehensive_"), base)
	assert.True(t, strings.HasSuffix(base, ".md"), base)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	assert.Equal(t, "# hi\n", string(data[3:]))
}

func TestSafeTopic(t *testing.T) {
	assert.Equal(t, "a_b_c", SafeTopic("a/b\\c"))
	assert.Equal(t, "report", SafeTopic("!!!"))
	long := strings.Repeat("x", 100)
	assert.Len(t, SafeTopic(long), maxTopicSlug)
}
