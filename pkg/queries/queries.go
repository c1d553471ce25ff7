// Package queries derives search queries from a topic and a strategy.
// Generation prefers the LLM; a deterministic template fallback keeps
// the pipeline moving when no model is configured or the call fails.
package queries

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/logger"
)

// Strategy tags a query with the intent that produced it. The tag only
// influences generation, never retrieval.
type Strategy string

const (
	StrategyInitial   Strategy = "initial"
	StrategyIterative Strategy = "iterative"
	StrategyTargeted  Strategy = "targeted"
	StrategyAcademic  Strategy = "academic"
	StrategyNews      Strategy = "news"
)

// Query is a search string plus the strategy that produced it.
type Query struct {
	Text     string   `json:"text"`
	Strategy Strategy `json:"strategy"`
}

// Texts flattens queries to their strings for the orchestrator.
func Texts(qs []Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

// Context carries strategy-specific inputs: gap descriptors for
// iterative, section scope for targeted.
type Context struct {
	MissingAspects     []string
	WeakSources        []string
	SectionTitle       string
	SectionDescription string
	KeyPoints          []string

	// Companies biases query wording toward the named organizations.
	Companies []string
	Language  string
}

// Generator produces queries for one session.
type Generator struct {
	llm llms.Provider
	log *slog.Logger
	now func() time.Time
}

// New creates a generator. llm may be nil; the template fallback then
// serves every call.
func New(llm llms.Provider) *Generator {
	return &Generator{
		llm: llm,
		log: logger.Component("queries"),
		now: time.Now,
	}
}

// countRange bounds how many queries a strategy yields.
func countRange(strategy Strategy) (min, max int) {
	if strategy == StrategyInitial {
		return 3, 6
	}
	return 2, 4
}

// Generate derives queries for a topic under a strategy. The result is
// deduplicated case-insensitively and clamped to the strategy's range.
// Generation never fails outright: LLM errors fall back to templates.
func (g *Generator) Generate(ctx context.Context, topic string, strategy Strategy, qctx Context) ([]Query, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is empty")
	}

	if g.llm != nil {
		if queries, err := g.generateLLM(ctx, topic, strategy, qctx); err == nil && len(queries) > 0 {
			return queries, nil
		} else if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Warn("Query generation via model failed, using templates",
				"strategy", strategy, "error", err)
		}
	}

	return g.fallback(topic, strategy, qctx), nil
}

func (g *Generator) generateLLM(ctx context.Context, topic string, strategy Strategy, qctx Context) ([]Query, error) {
	min, max := countRange(strategy)
	prompt := buildPrompt(topic, strategy, qctx, min, max)

	resp, err := g.llm.Generate(ctx, llms.Request{
		System:    "You are a research assistant generating search engine queries. Output one query per line, numbered. No commentary.",
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil {
		return nil, err
	}

	lines := parseQueryLines(resp.Text)
	queries := dedupe(lines, strategy)
	if len(queries) > max {
		queries = queries[:max]
	}
	if len(queries) < min {
		// Top up from templates rather than re-prompting.
		queries = mergeQueries(queries, g.fallback(topic, strategy, qctx), max)
	}
	return queries, nil
}

func buildPrompt(topic string, strategy Strategy, qctx Context, min, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	if qctx.Language != "" {
		fmt.Fprintf(&b, "Queries should be in the language of tag %q.\n", qctx.Language)
	}
	if len(qctx.Companies) > 0 {
		fmt.Fprintf(&b, "Where relevant, mention these organizations: %s\n", strings.Join(qctx.Companies, ", "))
	}

	switch strategy {
	case StrategyInitial:
		fmt.Fprintf(&b, "Generate %d-%d broad search queries covering an overview of the topic, its key subtopics, and recent developments.\n", min, max)
	case StrategyIterative:
		fmt.Fprintf(&b, "Earlier research on this topic left coverage gaps. Generate %d-%d queries that target these gaps directly.\n", min, max)
		if len(qctx.MissingAspects) > 0 {
			fmt.Fprintf(&b, "Missing aspects: %s\n", strings.Join(qctx.MissingAspects, ", "))
		}
		if len(qctx.WeakSources) > 0 {
			fmt.Fprintf(&b, "Under-represented sources: %s\n", strings.Join(qctx.WeakSources, ", "))
		}
	case StrategyTargeted:
		fmt.Fprintf(&b, "Generate %d-%d queries narrowly scoped to one report section.\n", min, max)
		fmt.Fprintf(&b, "Section: %s\n", qctx.SectionTitle)
		if qctx.SectionDescription != "" {
			fmt.Fprintf(&b, "Description: %s\n", qctx.SectionDescription)
		}
		if len(qctx.KeyPoints) > 0 {
			fmt.Fprintf(&b, "Key points: %s\n", strings.Join(qctx.KeyPoints, "; "))
		}
	case StrategyAcademic:
		fmt.Fprintf(&b, "Generate %d-%d queries phrased for academic search engines. Favor terminology found in paper titles and abstracts (survey, evaluation, benchmark, state of the art).\n", min, max)
	case StrategyNews:
		fmt.Fprintf(&b, "Generate %d-%d queries phrased for news search. Favor recent events, announcements, and named entities. The current year is %d.\n", min, max, time.Now().Year())
	}

	return b.String()
}

// numberedLine strips list markers: "1. ", "2) ", "- ", "* ".
var numberedLine = regexp.MustCompile(`^\s*(?:\d+[.)]\s*|[-*]\s*)`)

// parseQueryLines extracts one query per line from model output,
// stripping list markers and surrounding quotes.
func parseQueryLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = numberedLine.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// dedupe removes case-insensitive duplicates, keeping first occurrence.
func dedupe(texts []string, strategy Strategy) []Query {
	seen := make(map[string]struct{}, len(texts))
	var out []Query
	for _, t := range texts {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Query{Text: strings.TrimSpace(t), Strategy: strategy})
	}
	return out
}

// mergeQueries appends extras onto base up to limit, preserving the
// case-insensitive dedup guarantee.
func mergeQueries(base, extras []Query, limit int) []Query {
	seen := make(map[string]struct{}, len(base))
	for _, q := range base {
		seen[strings.ToLower(q.Text)] = struct{}{}
	}
	for _, q := range extras {
		if len(base) >= limit {
			break
		}
		key := strings.ToLower(q.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		base = append(base, q)
	}
	return base
}

// fallback builds deterministic template queries. Same topic and
// context always produce the same queries.
func (g *Generator) fallback(topic string, strategy Strategy, qctx Context) []Query {
	year := g.now().Year()
	var texts []string

	switch strategy {
	case StrategyIterative:
		for _, aspect := range qctx.MissingAspects {
			texts = append(texts, fmt.Sprintf("%s %s", topic, aspect))
		}
		if len(texts) == 0 {
			texts = []string{
				topic + " in-depth analysis",
				topic + " expert assessment",
			}
		}
		if len(texts) > 4 {
			texts = texts[:4]
		}
	case StrategyTargeted:
		if qctx.SectionTitle != "" {
			texts = append(texts, fmt.Sprintf("%s %s", topic, qctx.SectionTitle))
		}
		for _, kp := range qctx.KeyPoints {
			if len(texts) >= 4 {
				break
			}
			texts = append(texts, fmt.Sprintf("%s %s", topic, kp))
		}
		if len(texts) == 0 {
			texts = []string{topic + " detailed analysis", topic + " case studies"}
		}
	case StrategyAcademic:
		texts = []string{
			topic + " survey",
			topic + " research paper",
			topic + " state of the art",
		}
	case StrategyNews:
		texts = []string{
			fmt.Sprintf("%s news %d", topic, year),
			topic + " latest announcement",
			topic + " industry update",
		}
	default: // initial
		texts = []string{
			topic + " overview",
			fmt.Sprintf("%s latest developments %d", topic, year),
			topic + " key challenges",
			topic + " market analysis",
		}
		for _, company := range qctx.Companies {
			if len(texts) >= 6 {
				break
			}
			texts = append(texts, fmt.Sprintf("%s %s", company, topic))
		}
	}

	return dedupe(texts, strategy)
}
