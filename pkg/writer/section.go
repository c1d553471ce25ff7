package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/outline"
)

// docExcerptChars bounds the per-document excerpt in section prompts.
const docExcerptChars = 800

// promptDocBudget bounds the token cost of the source-document block of
// a section prompt. Documents past the budget are dropped, weakest
// last, so the prompt stays inside the model context window.
const promptDocBudget = 6000

// WriteSection generates the content for one outline leaf from the
// documents scoped to it. Length is validated against the configured
// band; a short draft is expanded and a long one tightened, with at
// most two re-invocations.
func (w *Writer) WriteSection(ctx context.Context, node *outline.Node, docs []document.Document) (*Section, error) {
	if node == nil {
		return nil, fmt.Errorf("nil outline node")
	}

	if w.llm == nil {
		return w.fallbackSection(node, docs), nil
	}

	// Sections have no extractive fallback once a model is configured:
	// a model outage fails the section after the retries, it does not
	// degrade into a report that claims success.
	allowed := allowedURLs(docs)
	var content string
	var err error
	for attempt := 0; attempt <= maxModelRetries; attempt++ {
		content, err = w.generateSection(ctx, node, docs, "")
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.log.Warn("Section generation failed", "section", node.Title, "attempt", attempt+1, "error", err)
	}
	if err != nil {
		return nil, err
	}

	for retry := 0; retry < maxLengthRetries; retry++ {
		adjust := w.lengthAdjustment(content)
		if adjust == "" {
			break
		}
		adjusted, err := w.generateSection(ctx, node, docs, adjust)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			break // keep the out-of-band draft over failing the section
		}
		content = adjusted
	}

	return &Section{
		OutlineID: node.ID,
		Title:     node.Title,
		Content:   content,
		Citations: extractCitations(content, allowed),
		WordCount: countWords(content),
	}, nil
}

// lengthAdjustment returns the re-invocation instruction a draft
// needs, or "" when it fits.
func (w *Writer) lengthAdjustment(content string) string {
	n := charCount(content)
	switch {
	case n < w.cfg.MinSectionChars:
		return fmt.Sprintf("The draft is too short at %d characters. Expand it to at least %d characters with more depth and evidence; do not pad with filler.", n, w.cfg.MinSectionChars)
	case n > w.cfg.MaxSectionChars:
		return fmt.Sprintf("The draft is too long at %d characters. Tighten it to at most %d characters, keeping the strongest material.", n, w.cfg.MaxSectionChars)
	}
	if w.requiresSubheadings() && countSubheadings(content) < minSubheadings {
		return fmt.Sprintf("Restructure the draft to contain at least %d sub-headings (mix of ##, ###, ####) so it scans well. Keep the substance.", minSubheadings)
	}
	return ""
}

// requiresSubheadings reports whether the hierarchical structure rule
// is in force: comprehensive depth with a band of 1500+ characters.
func (w *Writer) requiresSubheadings() bool {
	return w.cfg.Depth == "comprehensive" && w.cfg.MaxSectionChars >= comprehensiveBand
}

func (w *Writer) generateSection(ctx context.Context, node *outline.Node, docs []document.Document, adjustment string) (string, error) {
	resp, err := w.llm.Generate(ctx, llms.Request{
		System:    w.sectionSystem(),
		Prompt:    w.sectionPrompt(node, docs, adjustment),
		MaxTokens: 4096,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (w *Writer) sectionSystem() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write report sections in Markdown. Style: %s. Tone: %s. Audience: %s.\n", w.cfg.Style, w.cfg.Tone, w.cfg.Audience)
	if w.includeCitations() {
		b.WriteString("Cite at least one source document per substantive claim as an inline Markdown link using the exact URLs provided. Never cite a URL that was not provided.\n")
	}
	if w.cfg.IncludeExamples {
		b.WriteString("Work concrete examples from the sources into the prose.\n")
	}
	b.WriteString("Do not repeat the section title as a heading; start with the prose.")
	return b.String()
}

func (w *Writer) sectionPrompt(node *outline.Node, docs []document.Document, adjustment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\n", node.Title)
	if node.Description != "" {
		fmt.Fprintf(&b, "Scope: %s\n", node.Description)
	}
	if len(node.KeyPoints) > 0 {
		b.WriteString("Cover these key points:\n")
		for _, kp := range node.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
	}
	fmt.Fprintf(&b, "\nTarget length: %d-%d characters. Depth: %s.\n", w.cfg.MinSectionChars, w.cfg.MaxSectionChars, w.cfg.Depth)
	if w.requiresSubheadings() {
		fmt.Fprintf(&b, "Structure the section with at least %d sub-headings (##/###/####).\n", minSubheadings)
	}

	b.WriteString("\nSource documents:\n")
	remaining := promptDocBudget
	for i, doc := range docs {
		entry := fmt.Sprintf("\n[%d] %s\nURL: %s\n%s\n", i+1, doc.Title, doc.URL, excerpt(doc.Content, docExcerptChars))
		cost := w.tokens.Count(entry)
		if cost > remaining {
			break
		}
		remaining -= cost
		b.WriteString(entry)
	}
	if adjustment != "" {
		fmt.Fprintf(&b, "\nRevision instruction: %s\n", adjustment)
	}
	return b.String()
}

// fallbackSection assembles a section without a model: key points as
// structure, document excerpts as evidence, every excerpt cited.
func (w *Writer) fallbackSection(node *outline.Node, docs []document.Document) *Section {
	var b strings.Builder
	if node.Description != "" {
		b.WriteString(node.Description)
		b.WriteString("\n\n")
	}

	allowed := allowedURLs(docs)
	for i, kp := range node.KeyPoints {
		fmt.Fprintf(&b, "### %s\n\n", kp)
		if i < len(docs) {
			doc := docs[i]
			fmt.Fprintf(&b, "%s ([%s](%s))\n\n", excerpt(doc.Content, 500), doc.Title, doc.URL)
		}
	}
	// Remaining documents land under a collective heading so no
	// retrieved evidence is silently dropped.
	if len(docs) > len(node.KeyPoints) {
		b.WriteString("### Further reading\n\n")
		for _, doc := range docs[len(node.KeyPoints):] {
			fmt.Fprintf(&b, "- [%s](%s)\n", doc.Title, doc.URL)
		}
	}

	content := strings.TrimSpace(b.String())
	return &Section{
		OutlineID: node.ID,
		Title:     node.Title,
		Content:   content,
		Citations: extractCitations(content, allowed),
		WordCount: countWords(content),
	}
}

func (w *Writer) includeCitations() bool {
	return w.cfg.IncludeCitations == nil || *w.cfg.IncludeCitations
}

func allowedURLs(docs []document.Document) map[string]string {
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		out[d.URL] = d.Title
	}
	return out
}

func excerpt(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
