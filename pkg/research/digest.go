package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/dossier/pkg/report"
	"github.com/kadirpekel/dossier/pkg/search"
)

// digestExcerptChars bounds the snippet shown per document in the
// search digest.
const digestExcerptChars = 240

// searchDigest renders the retrieval-only payload: the accumulated
// documents in rank order, no outline or sections.
func searchDigest(topic string, result *Result, generatedAt time.Time, meta report.Meta) *report.Report {
	docs := result.Documents
	search.OrderDocuments(docs)

	var b strings.Builder
	fmt.Fprintf(&b, "# Search results: %s\n\n", topic)
	fmt.Fprintf(&b, "> Generated %s · %d documents · %d iterations\n\n",
		generatedAt.Format("2006-01-02 15:04"), len(docs), result.Iterations)

	for i, d := range docs {
		fmt.Fprintf(&b, "## %d. [%s](%s)\n\n", i+1, d.Title, d.URL)
		fmt.Fprintf(&b, "- Source: %s (%s)\n", d.Source, d.Domain)
		if d.PublishDate != nil {
			fmt.Fprintf(&b, "- Published: %s\n", d.PublishDate.Format("2006-01-02"))
		}
		if d.Score != nil {
			fmt.Fprintf(&b, "- Score: %.2f\n", *d.Score)
		}
		if excerpt := clipText(d.Content, digestExcerptChars); excerpt != "" {
			fmt.Fprintf(&b, "\n%s\n", excerpt)
		}
		b.WriteString("\n")
	}

	return digestReport(topic, generatedAt, b.String(), meta)
}

// analysisDigest renders the retrieval + scoring payload: the quality
// verdict, coverage gaps, and the scored document list.
func analysisDigest(topic string, result *Result, generatedAt time.Time, meta report.Meta) *report.Report {
	docs := result.Documents
	search.OrderDocuments(docs)

	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis: %s\n\n", topic)
	fmt.Fprintf(&b, "> Generated %s · %d documents · %d iterations · quality %.2f\n\n",
		generatedAt.Format("2006-01-02 15:04"), len(docs), result.Iterations, result.Quality)

	b.WriteString("## Coverage\n\n")
	if len(result.Gap.MissingAspects) > 0 {
		fmt.Fprintf(&b, "- Missing aspects: %s\n", strings.Join(result.Gap.MissingAspects, ", "))
	}
	if len(result.Gap.WeakSources) > 0 {
		fmt.Fprintf(&b, "- Under-represented sources: %s\n", strings.Join(result.Gap.WeakSources, ", "))
	}
	fmt.Fprintf(&b, "- Staleness: %.0f%% of dated documents beyond the horizon\n\n", result.Gap.Staleness*100)

	b.WriteString("## Documents\n\n")
	for i, d := range docs {
		score := ""
		if d.Score != nil {
			score = fmt.Sprintf(" · %.2f", *d.Score)
		}
		fmt.Fprintf(&b, "%d. [%s](%s) · %s%s\n", i+1, d.Title, d.URL, d.Source, score)
	}
	b.WriteString("\n")

	return digestReport(topic, generatedAt, b.String(), meta)
}

func digestReport(topic string, generatedAt time.Time, content string, meta report.Meta) *report.Report {
	return &report.Report{
		Topic:       topic,
		GeneratedAt: generatedAt,
		Content:     content,
		Metadata: map[string]any{
			"session_id":   meta.SessionID,
			"iterations":   meta.Iterations,
			"source_count": meta.SourceCount,
		},
	}
}

func clipText(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
