package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/logger"
)

// maxSemanticDocs bounds how many documents one model call scores.
const maxSemanticDocs = 20

// snippetChars bounds the per-document excerpt sent to the model.
const snippetChars = 400

// Analyzer scores documents and document sets. It is the only
// component that publishes AnalysisResult events.
type Analyzer struct {
	llm llms.Provider
	bus *events.Bus
	cfg config.AnalysisConfig
	log *slog.Logger
	now func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithBus attaches the session event bus.
func WithBus(bus *events.Bus) Option {
	return func(a *Analyzer) { a.bus = bus }
}

// New creates an analyzer. llm may be nil; heuristic scoring then
// serves relevance, practicality, and accuracy.
func New(llm llms.Provider, cfg config.AnalysisConfig, opts ...Option) *Analyzer {
	a := &Analyzer{
		llm: llm,
		cfg: cfg,
		log: logger.Component("analysis"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// semanticScore is the model-assessed slice of the dimensions.
type semanticScore struct {
	Relevance    float64
	Practicality float64
	Accuracy     float64
}

// ScoreDocuments scores every document. Deterministic dimensions
// (timeliness, authority, completeness) never touch the model; the
// semantic ones use one batched model call with a heuristic fallback.
func (a *Analyzer) ScoreDocuments(ctx context.Context, topic string, docs []document.Document) []QualityScore {
	semantic := a.scoreSemantic(ctx, topic, docs)

	now := a.now().UTC()
	scores := make([]QualityScore, len(docs))
	for i, doc := range docs {
		scores[i] = NewQualityScore(Dimensions{
			Relevance:    semantic[i].Relevance,
			Practicality: semantic[i].Practicality,
			Accuracy:     semantic[i].Accuracy,
			Timeliness:   TimelinessScore(doc.PublishDate, now),
			Authority:    AuthorityScore(doc.Domain),
			Completeness: CompletenessScore(doc.Content),
		})
	}
	return scores
}

// Analyze scores the accumulated set, assesses coverage gaps, and
// publishes the AnalysisResult event. The returned quality is the mean
// document total reduced by the diversity penalty.
func (a *Analyzer) Analyze(ctx context.Context, topic string, docs []document.Document, iteration int) (float64, GapReport) {
	if len(docs) == 0 {
		gap := GapReport{MissingAspects: append([]string(nil), fallbackAspects...)}
		a.publish(iteration, 0, nil, gap, 0)
		return 0, gap
	}

	scores := a.ScoreDocuments(ctx, topic, docs)
	quality := a.SetQuality(scores, docs)
	gap := a.AnalyzeGaps(ctx, topic, docs)
	gap.Score = quality

	a.publish(iteration, quality, scores, gap, len(docs))
	return quality, gap
}

// SetQuality averages document totals and applies the source diversity
// penalty when the source distribution is lopsided.
func (a *Analyzer) SetQuality(scores []QualityScore, docs []document.Document) float64 {
	if len(scores) == 0 {
		return 0
	}
	totals := make([]float64, len(scores))
	for i, s := range scores {
		totals[i] = s.Total
	}
	mean, err := stats.Mean(totals)
	if err != nil {
		return 0
	}

	diversity := sourceDiversity(docs)
	if diversity < 0.5 {
		mean -= a.cfg.DiversityPenalty * (0.5 - diversity) * 2
	}
	return clamp01(mean)
}

// sourceDiversity is the normalized entropy of the source distribution
// in [0,1]. A single source yields 0; a uniform spread yields 1.
func sourceDiversity(docs []document.Document) float64 {
	counts := make(map[string]int)
	for _, d := range docs {
		counts[d.Source]++
	}
	if len(counts) <= 1 {
		return 0
	}

	n := float64(len(docs))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log(p)
	}
	return entropy / math.Log(float64(len(counts)))
}

// Staleness is the fraction of dated documents older than the horizon.
// Undated documents do not count as stale.
func (a *Analyzer) Staleness(docs []document.Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	horizon := a.cfg.StalenessHorizonDays
	if horizon <= 0 {
		horizon = 365
	}
	cutoff := a.now().UTC().AddDate(0, 0, -horizon)

	var stale int
	for _, d := range docs {
		if d.PublishDate != nil && d.PublishDate.Before(cutoff) {
			stale++
		}
	}
	return float64(stale) / float64(len(docs))
}

// AnalyzeGaps identifies missing coverage aspects and weak sources.
// The model path asks for a structured gap assessment; the fallback
// checks the fixed aspect list and flags any backed by at most one
// document.
func (a *Analyzer) AnalyzeGaps(ctx context.Context, topic string, docs []document.Document) GapReport {
	report := GapReport{Staleness: a.Staleness(docs)}

	if a.llm != nil {
		if gaps, err := a.gapsLLM(ctx, topic, docs); err == nil {
			report.MissingAspects = gaps.MissingAspects
			report.WeakSources = gaps.WeakSources
			return report
		} else if ctx.Err() == nil {
			a.log.Warn("Gap analysis via model failed, using aspect heuristics", "error", err)
		}
	}

	report.MissingAspects = missingAspects(docs)
	report.WeakSources = weakSources(docs)
	return report
}

// missingAspects flags the fixed aspects backed by zero or one doc.
func missingAspects(docs []document.Document) []string {
	counts := make(map[string]int, len(fallbackAspects))
	for _, doc := range docs {
		text := strings.ToLower(doc.Title + " " + doc.Content)
		for aspect, keywords := range aspectKeywords {
			for _, kw := range keywords {
				if strings.Contains(text, kw) {
					counts[aspect]++
					break
				}
			}
		}
	}

	var missing []string
	for _, aspect := range fallbackAspects {
		if counts[aspect] <= 1 {
			missing = append(missing, aspect)
		}
	}
	return missing
}

// weakSources flags sources contributing a single document while
// others contribute several.
func weakSources(docs []document.Document) []string {
	counts := make(map[string]int)
	for _, d := range docs {
		counts[d.Source]++
	}
	var weak []string
	for source, c := range counts {
		if c == 1 && len(docs) >= 4 {
			weak = append(weak, source)
		}
	}
	return weak
}

// scoreSemantic returns the model-assessed dimensions for each doc,
// falling back to heuristics per document on any failure.
func (a *Analyzer) scoreSemantic(ctx context.Context, topic string, docs []document.Document) []semanticScore {
	out := make([]semanticScore, len(docs))

	if a.llm != nil && len(docs) > 0 {
		if scored, err := a.semanticLLM(ctx, topic, docs); err == nil {
			return scored
		} else if ctx.Err() == nil {
			a.log.Warn("Semantic scoring via model failed, using heuristics", "error", err)
		}
	}

	for i, doc := range docs {
		out[i] = semanticScore{
			Relevance:    heuristicRelevance(topic, doc),
			Practicality: heuristicPracticality(doc),
			Accuracy:     heuristicAccuracy(doc),
		}
	}
	return out
}

func (a *Analyzer) semanticLLM(ctx context.Context, topic string, docs []document.Document) ([]semanticScore, error) {
	batch := docs
	if len(batch) > maxSemanticDocs {
		batch = batch[:maxSemanticDocs]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nRate each document for relevance to the topic, practicality (actionable detail), and factual accuracy signals, each 0.0-1.0.\n\n", topic)
	for i, doc := range batch {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, doc.Title, snippet(doc.Content))
	}
	b.WriteString(`Respond with JSON: {"scores":[{"index":1,"relevance":0.0,"practicality":0.0,"accuracy":0.0}, ...]}`)

	resp, err := a.llm.Generate(ctx, llms.Request{
		System:    "You are a research quality assessor. Respond only with the requested JSON.",
		Prompt:    b.String(),
		JSON:      true,
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Scores []struct {
			Index        int     `json:"index"`
			Relevance    float64 `json:"relevance"`
			Practicality float64 `json:"practicality"`
			Accuracy     float64 `json:"accuracy"`
		} `json:"scores"`
	}
	if err := llms.DecodeJSON(resp.Text, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("model returned no scores")
	}

	out := make([]semanticScore, len(docs))
	// Docs beyond the batch window keep heuristic scores.
	for i := range docs {
		out[i] = semanticScore{
			Relevance:    heuristicRelevance(topic, docs[i]),
			Practicality: heuristicPracticality(docs[i]),
			Accuracy:     heuristicAccuracy(docs[i]),
		}
	}
	for _, s := range parsed.Scores {
		idx := s.Index - 1
		if idx < 0 || idx >= len(batch) {
			continue
		}
		out[idx] = semanticScore{
			Relevance:    clamp01(s.Relevance),
			Practicality: clamp01(s.Practicality),
			Accuracy:     clamp01(s.Accuracy),
		}
	}
	return out, nil
}

func (a *Analyzer) gapsLLM(ctx context.Context, topic string, docs []document.Document) (GapReport, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nThe documents below were gathered to cover this topic. Identify aspects of the topic that remain uncovered and source ids that contribute weakly.\n\n", topic)
	for i, doc := range docs {
		if i >= maxSemanticDocs {
			break
		}
		fmt.Fprintf(&b, "[%s] %s\n", doc.Source, doc.Title)
	}
	b.WriteString(`
Respond with JSON: {"missing_aspects":["..."],"weak_sources":["..."]}`)

	resp, err := a.llm.Generate(ctx, llms.Request{
		System:    "You are a research coverage assessor. Respond only with the requested JSON.",
		Prompt:    b.String(),
		JSON:      true,
		MaxTokens: 1024,
	})
	if err != nil {
		return GapReport{}, err
	}

	var parsed struct {
		MissingAspects []string `json:"missing_aspects"`
		WeakSources    []string `json:"weak_sources"`
	}
	if err := llms.DecodeJSON(resp.Text, &parsed); err != nil {
		return GapReport{}, err
	}
	return GapReport{MissingAspects: parsed.MissingAspects, WeakSources: parsed.WeakSources}, nil
}

func (a *Analyzer) publish(iteration int, quality float64, scores []QualityScore, gap GapReport, docCount int) {
	if a.bus == nil {
		return
	}
	dims := meanDimensions(scores)
	a.bus.AnalysisResult("analyze", iteration, events.AnalysisPayload{
		Total:          quality,
		Dimensions:     dims,
		DocumentCount:  docCount,
		MissingAspects: gap.MissingAspects,
		WeakSources:    gap.WeakSources,
		Staleness:      gap.Staleness,
	})
}

// meanDimensions averages per-document dimensions for the event.
func meanDimensions(scores []QualityScore) map[string]float64 {
	out := map[string]float64{
		"relevance": 0, "practicality": 0, "timeliness": 0,
		"authority": 0, "completeness": 0, "accuracy": 0,
	}
	if len(scores) == 0 {
		return out
	}
	for _, s := range scores {
		for k, v := range s.Map() {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(scores))
	}
	return out
}

// snippet truncates content for prompt inclusion.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetChars {
		return content
	}
	return string(runes[:snippetChars]) + "..."
}
