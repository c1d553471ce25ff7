package outline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/logger"
)

// sampleDocLimit bounds how many documents inform outline planning.
const sampleDocLimit = 12

// Builder plans outlines. llm may be nil; the report-type templates
// then serve directly.
type Builder struct {
	llm llms.Provider
	log *slog.Logger
}

// NewBuilder creates a builder.
func NewBuilder(llm llms.Provider) *Builder {
	return &Builder{llm: llm, log: logger.Component("outline")}
}

// outlineNode is the shape the model returns; ids are assigned here.
type outlineNode struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	KeyPoints   []string      `json:"key_points"`
	Children    []outlineNode `json:"children"`
}

// Build plans an outline for the topic. An invalid model outline falls
// back to the report-type template rather than failing the session.
func (b *Builder) Build(ctx context.Context, topic, reportType string, sampleDocs []document.Document) (*Outline, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is empty")
	}
	if !KnownType(reportType) {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}

	if b.llm != nil {
		o, err := b.buildLLM(ctx, topic, reportType, sampleDocs)
		if err == nil {
			return o, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Warn("Outline planning via model failed, using template", "report_type", reportType, "error", err)
	}

	o := templateOutline(topic, reportType)
	o.assignIDs()
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("template outline invalid: %w", err)
	}
	return o, nil
}

// Refine re-plans an outline from free-form feedback. Sections whose
// titles survive keep their ids so downstream caching holds.
func (b *Builder) Refine(ctx context.Context, o *Outline, feedback string) (*Outline, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return o, nil
	}
	if b.llm == nil {
		return nil, fmt.Errorf("outline refinement requires a model")
	}

	current, _ := outlineJSON(o)
	prompt := fmt.Sprintf(`Current outline for the report on %q:

%s

Reader feedback:
%s

Revise the outline to address the feedback. Keep section titles that the feedback does not touch. Respond with JSON: {"sections":[{"title":"...","description":"...","key_points":["..."],"children":[...]}]}`,
		o.Topic, current, feedback)

	resp, err := b.llm.Generate(ctx, llms.Request{
		System:    "You are a report planner. Respond only with the requested JSON.",
		Prompt:    prompt,
		JSON:      true,
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, err
	}

	refined, err := b.parseOutline(resp.Text, o.Topic, o.ReportType)
	if err != nil {
		return nil, err
	}
	preserveIDs(o, refined)
	if err := refined.Validate(); err != nil {
		return nil, fmt.Errorf("refined outline invalid: %w", err)
	}
	return refined, nil
}

func (b *Builder) buildLLM(ctx context.Context, topic, reportType string, sampleDocs []document.Document) (*Outline, error) {
	var docContext strings.Builder
	for i, doc := range sampleDocs {
		if i >= sampleDocLimit {
			break
		}
		fmt.Fprintf(&docContext, "- %s (%s)\n", doc.Title, doc.Domain)
	}

	prompt := fmt.Sprintf(`Plan the section outline for a %s report on %q.

%s
Representative sources gathered so far:
%s
Rules:
- 4 to 7 top-level sections; nest subsections only where the material demands it (max depth %d).
- Every leaf section needs 3-6 key points that a writer can expand.
- Titles must be unique among siblings.

Respond with JSON: {"sections":[{"title":"...","description":"...","key_points":["..."],"children":[...]}]}`,
		reportType, topic, typeGuidance(reportType), docContext.String(), MaxDepth)

	resp, err := b.llm.Generate(ctx, llms.Request{
		System:    "You are a report planner. Respond only with the requested JSON.",
		Prompt:    prompt,
		JSON:      true,
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, err
	}

	o, err := b.parseOutline(resp.Text, topic, reportType)
	if err != nil {
		return nil, err
	}
	o.assignIDs()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (b *Builder) parseOutline(text, topic, reportType string) (*Outline, error) {
	var parsed struct {
		Sections []outlineNode `json:"sections"`
	}
	if err := llms.DecodeJSON(text, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Sections) == 0 {
		return nil, fmt.Errorf("model returned no sections")
	}

	var convert func(ns []outlineNode) []*Node
	convert = func(ns []outlineNode) []*Node {
		out := make([]*Node, 0, len(ns))
		for _, n := range ns {
			out = append(out, &Node{
				Title:       strings.TrimSpace(n.Title),
				Description: strings.TrimSpace(n.Description),
				KeyPoints:   trimAll(n.KeyPoints),
				Children:    convert(n.Children),
			})
		}
		return out
	}

	return &Outline{Topic: topic, ReportType: reportType, Nodes: convert(parsed.Sections)}, nil
}

// preserveIDs copies ids from old to new where titles match
// case-insensitively; remaining nodes get fresh ids above the old max.
func preserveIDs(old, refined *Outline) {
	byTitle := make(map[string]int)
	old.Walk(func(n *Node, _ int) {
		byTitle[strings.ToLower(strings.TrimSpace(n.Title))] = n.ID
	})

	next := old.maxID() + 1
	refined.Walk(func(n *Node, _ int) {
		if id, ok := byTitle[strings.ToLower(strings.TrimSpace(n.Title))]; ok {
			n.ID = id
			return
		}
		n.ID = next
		next++
	})
}

func outlineJSON(o *Outline) (string, error) {
	var b strings.Builder
	o.Walk(func(n *Node, depth int) {
		fmt.Fprintf(&b, "%s- %s: %s\n", strings.Repeat("  ", depth-1), n.Title, n.Description)
	})
	return b.String(), nil
}

func typeGuidance(reportType string) string {
	switch reportType {
	case TypeInsight:
		return "The report distills strategic insights: emphasize implications, second-order effects, and recommendations over background."
	case TypeIndustry:
		return "The report maps an industry: emphasize market structure, competitive landscape, value chain, and forward outlook."
	case TypeResearch:
		return "The report surveys the research landscape: emphasize methodology, findings, open problems, and literature context."
	case TypeNewsReport:
		return "The report covers recent events: emphasize the timeline, stakeholders, immediate consequences, and what to watch next."
	default:
		return "The report is a comprehensive reference: balance background, current state, analysis, and outlook."
	}
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
