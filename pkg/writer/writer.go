// Package writer turns outline sections and document sets into
// long-form Markdown. Output length is validated against a band with
// bounded expand/tighten retries; citations are rendered as Markdown
// links and collected for the reference list.
package writer

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/logger"
	"github.com/kadirpekel/dossier/pkg/utils"
)

// maxLengthRetries caps expand/tighten re-invocations per section.
const maxLengthRetries = 2

// maxModelRetries caps retries of a failed section generation before
// the section fails with the model error.
const maxModelRetries = 2

// minSubheadings applies to comprehensive sections with a length band
// of at least comprehensiveBand characters.
const (
	minSubheadings    = 7
	comprehensiveBand = 1500
)

// Citation records one cited document.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Section is the written form of one outline leaf.
type Section struct {
	OutlineID int        `json:"outline_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	WordCount int        `json:"word_count"`
}

// Writer generates sections and summaries for one session.
type Writer struct {
	llm    llms.Provider
	cfg    config.WriterConfig
	tokens *utils.Counter
	log    *slog.Logger
}

// New creates a writer. llm may be nil; the extractive fallback then
// serves every call.
func New(llm llms.Provider, cfg config.WriterConfig) *Writer {
	var tokens *utils.Counter
	if llm != nil {
		tokens, _ = utils.NewCounter(llm.ModelName())
	}
	return &Writer{llm: llm, cfg: cfg, tokens: tokens, log: logger.Component("writer")}
}

var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)\s]+)\)`)

// extractCitations collects Markdown links whose URL belongs to the
// provided document set, preserving first-appearance order.
func extractCitations(content string, allowed map[string]string) []Citation {
	seen := make(map[string]struct{})
	var out []Citation
	for _, m := range markdownLink.FindAllStringSubmatch(content, -1) {
		url := m[2]
		title, ok := allowed[url]
		if !ok {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		if linkText := strings.TrimSpace(m[1]); linkText != "" {
			title = linkText
		}
		out = append(out, Citation{Title: title, URL: url})
	}
	return out
}

var subheading = regexp.MustCompile(`(?m)^#{2,4}\s+\S`)

// countSubheadings counts H2-H4 headings.
func countSubheadings(content string) int {
	return len(subheading.FindAllString(content, -1))
}

// countWords approximates word count: whitespace-delimited tokens for
// spaced scripts, runes for CJK-heavy text where spaces are scarce.
func countWords(content string) int {
	fields := len(strings.Fields(content))
	runes := len([]rune(content))
	if fields > 0 && runes/fields > 12 {
		// Dense script: almost no spaces, count characters instead.
		return runes
	}
	return fields
}

// charCount measures content length in runes for band validation.
func charCount(content string) int {
	return len([]rune(content))
}
