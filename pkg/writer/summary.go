package writer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/llms"
)

// Summary formats.
const (
	FormatParagraph    = "paragraph"
	FormatBulletPoints = "bullet_points"
	FormatStructured   = "structured"
	FormatExecutive    = "executive"
	FormatAcademic     = "academic"
)

// Input is one summarizable unit: a document or a written section.
type Input struct {
	Title string
	Body  string
}

// FromDocuments adapts retrieved documents for summarization.
func FromDocuments(docs []document.Document) []Input {
	out := make([]Input, len(docs))
	for i, d := range docs {
		out[i] = Input{Title: d.Title, Body: d.Content}
	}
	return out
}

// FromSections adapts written sections for summarization.
func FromSections(sections []*Section) []Input {
	out := make([]Input, len(sections))
	for i, s := range sections {
		out[i] = Input{Title: s.Title, Body: s.Content}
	}
	return out
}

// Constraints bound one summary rendering.
type Constraints struct {
	Length     string   // "150-250 words", "500 chars", or empty
	Format     string   // one of the Format constants
	FocusAreas []string
	Tone       string
	Audience   string
}

// WriteSummary condenses the inputs under the constraints. The model
// path must not introduce facts absent from the input; the fallback is
// extractive sentence selection so it cannot.
func (w *Writer) WriteSummary(ctx context.Context, inputs []Input, c Constraints) (string, error) {
	if len(inputs) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}
	if c.Format == "" {
		c.Format = FormatParagraph
	}

	if w.llm == nil {
		return w.extractiveSummary(inputs, c), nil
	}

	resp, err := w.llm.Generate(ctx, llms.Request{
		System:    summarySystem(c),
		Prompt:    summaryPrompt(inputs, c),
		MaxTokens: 2048,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		w.log.Warn("Summary generation failed, using extractive fallback", "format", c.Format, "error", err)
		return w.extractiveSummary(inputs, c), nil
	}
	return strings.TrimSpace(resp.Text), nil
}

// SummaryFallback renders the extractive summary directly, bypassing
// the model. Callers whose context is already cancelled (a session
// assembling its partial report) summarize through here.
func (w *Writer) SummaryFallback(inputs []Input, c Constraints) string {
	if len(inputs) == 0 {
		return ""
	}
	if c.Format == "" {
		c.Format = FormatParagraph
	}
	return w.extractiveSummary(inputs, c)
}

// WriteMultiLevel renders the same inputs into several formats; each
// output independently satisfies its constraints.
func (w *Writer) WriteMultiLevel(ctx context.Context, inputs []Input, constraints []Constraints) (map[string]string, error) {
	out := make(map[string]string, len(constraints))
	for _, c := range constraints {
		s, err := w.WriteSummary(ctx, inputs, c)
		if err != nil {
			return nil, err
		}
		key := c.Format
		if key == "" {
			key = FormatParagraph
		}
		out[key] = s
	}
	return out, nil
}

func summarySystem(c Constraints) string {
	var b strings.Builder
	b.WriteString("You summarize source material. Use only facts present in the input; never invent numbers, names, or claims.\n")
	switch c.Format {
	case FormatBulletPoints:
		b.WriteString("Render the summary as Markdown bullet points, one finding per bullet.\n")
	case FormatStructured:
		b.WriteString("Render the summary under short Markdown headings grouping related findings.\n")
	case FormatExecutive:
		b.WriteString("Write an executive summary: lead with the conclusion, then the supporting findings, then implications.\n")
	case FormatAcademic:
		b.WriteString("Write an academic abstract: context, method or scope, findings, significance.\n")
	default:
		b.WriteString("Write flowing paragraphs.\n")
	}
	if c.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", c.Tone)
	}
	if c.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s.\n", c.Audience)
	}
	return b.String()
}

func summaryPrompt(inputs []Input, c Constraints) string {
	var b strings.Builder
	if c.Length != "" {
		fmt.Fprintf(&b, "Length constraint: %s.\n", c.Length)
	}
	if len(c.FocusAreas) > 0 {
		fmt.Fprintf(&b, "Focus on: %s.\n", strings.Join(c.FocusAreas, ", "))
	}
	b.WriteString("\nMaterial to summarize:\n")
	for _, in := range inputs {
		fmt.Fprintf(&b, "\n## %s\n%s\n", in.Title, excerpt(in.Body, 1200))
	}
	return b.String()
}

// ----------------------------------------------------------------------------
// Extractive fallback
// ----------------------------------------------------------------------------

var sentenceEnd = regexp.MustCompile(`[.!?。！？]\s*`)

// extractiveSummary selects the highest-scoring sentences up to the
// length bound. Scoring favors focus-area keyword overlap and numeric
// content, so nothing outside the input can appear.
func (w *Writer) extractiveSummary(inputs []Input, c Constraints) string {
	type scored struct {
		text  string
		score float64
		order int
	}

	keywords := make(map[string]struct{})
	for _, area := range c.FocusAreas {
		for _, term := range strings.Fields(strings.ToLower(area)) {
			keywords[term] = struct{}{}
		}
	}
	for _, in := range inputs {
		for _, term := range strings.Fields(strings.ToLower(in.Title)) {
			keywords[term] = struct{}{}
		}
	}

	var sentences []scored
	order := 0
	for _, in := range inputs {
		for _, s := range splitSentences(in.Body) {
			if len([]rune(s)) < 20 {
				continue
			}
			lower := strings.ToLower(s)
			var score float64
			for kw := range keywords {
				if strings.Contains(lower, kw) {
					score++
				}
			}
			if numericToken.MatchString(s) {
				score += 0.5
			}
			sentences = append(sentences, scored{text: s, score: score, order: order})
			order++
		}
	}
	if len(sentences) == 0 {
		return ""
	}

	sort.SliceStable(sentences, func(i, j int) bool { return sentences[i].score > sentences[j].score })

	_, maxUnits, unit := parseLength(c.Length)
	var picked []scored
	used := 0
	for _, s := range sentences {
		if s.score == 0 && len(picked) > 0 {
			break // sorted: everything after is noise
		}
		cost := len(strings.Fields(s.text))
		if unit == "chars" {
			cost = len([]rune(s.text))
		}
		if used+cost > maxUnits && len(picked) > 0 {
			continue
		}
		picked = append(picked, s)
		used += cost
		if used >= maxUnits {
			break
		}
	}

	// Restore source order for readability.
	sort.Slice(picked, func(i, j int) bool { return picked[i].order < picked[j].order })

	if c.Format == FormatBulletPoints {
		var b strings.Builder
		for _, s := range picked {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(s.text))
		}
		return strings.TrimSpace(b.String())
	}

	parts := make([]string, len(picked))
	for i, s := range picked {
		parts[i] = strings.TrimSpace(s.text)
	}
	return strings.Join(parts, " ")
}

var numericToken = regexp.MustCompile(`\d`)

// splitSentences breaks text on sentence-ending punctuation, keeping
// the terminator with its sentence.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[last:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

var lengthSpec = regexp.MustCompile(`(\d+)\s*(?:[-–]\s*(\d+))?\s*(words?|chars?|characters?|字)?`)

// parseLength interprets "150-250 words", "500 chars", or a bare
// number (words). Empty or unparseable specs default to 150-250 words.
func parseLength(spec string) (min, max int, unit string) {
	min, max, unit = 150, 250, "words"
	m := lengthSpec.FindStringSubmatch(strings.ToLower(strings.TrimSpace(spec)))
	if m == nil || m[1] == "" {
		return
	}
	min, _ = strconv.Atoi(m[1])
	max = min
	if m[2] != "" {
		max, _ = strconv.Atoi(m[2])
	}
	if strings.HasPrefix(m[3], "char") || m[3] == "字" {
		unit = "chars"
	}
	return
}
