package research

import (
	"context"
	"strings"

	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/outline"
)

// classifier picks a report type for topics submitted with
// report_type "auto". The keyword pass is cheap and usually enough;
// the model breaks ties when available.
type classifier struct {
	llm llms.Provider
}

var typeSignals = map[string][]string{
	outline.TypeNewsReport: {
		"news", "announcement", "launch", "acquisition", "lawsuit",
		"this week", "yesterday", "breaking", "最新", "新闻",
	},
	outline.TypeIndustry: {
		"industry", "market", "sector", "competitive landscape",
		"supply chain", "vendors", "行业", "市场",
	},
	outline.TypeResearch: {
		"research", "paper", "survey", "state of the art", "algorithm",
		"benchmark", "literature", "研究", "论文",
	},
	outline.TypeInsight: {
		"implications", "should we", "strategy", "outlook for",
		"what does", "impact of", "洞察",
	},
}

// Classify returns a concrete report type for the topic.
func (c *classifier) Classify(ctx context.Context, topic string) string {
	lower := strings.ToLower(topic)

	best, bestHits := outline.TypeComprehensive, 0
	for rt, signals := range typeSignals {
		hits := 0
		for _, s := range signals {
			if strings.Contains(lower, s) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = rt, hits
		}
	}
	if bestHits > 0 {
		return best
	}

	if c.llm != nil {
		if rt := c.classifyLLM(ctx, topic); outline.KnownType(rt) {
			return rt
		}
	}
	return outline.TypeComprehensive
}

func (c *classifier) classifyLLM(ctx context.Context, topic string) string {
	resp, err := c.llm.Generate(ctx, llms.Request{
		System: "Classify research topics. Answer with exactly one word from: comprehensive, insight, industry, research, news_report.",
		Prompt: "Topic: " + topic,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.ToLower(resp.Text))
}
