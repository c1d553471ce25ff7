// Package analysis scores retrieved documents along six quality
// dimensions, aggregates set-level quality with a source diversity
// penalty, and identifies coverage gaps that drive iterative research.
package analysis

import (
	"math"
)

// Dimension weights for the aggregate total. They sum to 1.
const (
	WeightRelevance    = 0.25
	WeightPracticality = 0.20
	WeightTimeliness   = 0.15
	WeightAuthority    = 0.15
	WeightCompleteness = 0.15
	WeightAccuracy     = 0.10
)

// Dimensions holds the six per-document quality scores, each in [0,1].
type Dimensions struct {
	Relevance    float64 `json:"relevance"`
	Practicality float64 `json:"practicality"`
	Timeliness   float64 `json:"timeliness"`
	Authority    float64 `json:"authority"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
}

// QualityScore is the per-document assessment. Total is always the
// weighted sum of the dimensions; construct via NewQualityScore so it
// can never drift.
type QualityScore struct {
	Dimensions
	Total float64 `json:"total"`
}

// NewQualityScore clamps each dimension into [0,1] and computes Total.
func NewQualityScore(d Dimensions) QualityScore {
	d.Relevance = clamp01(d.Relevance)
	d.Practicality = clamp01(d.Practicality)
	d.Timeliness = clamp01(d.Timeliness)
	d.Authority = clamp01(d.Authority)
	d.Completeness = clamp01(d.Completeness)
	d.Accuracy = clamp01(d.Accuracy)

	total := d.Relevance*WeightRelevance +
		d.Practicality*WeightPracticality +
		d.Timeliness*WeightTimeliness +
		d.Authority*WeightAuthority +
		d.Completeness*WeightCompleteness +
		d.Accuracy*WeightAccuracy

	return QualityScore{Dimensions: d, Total: total}
}

// Map returns the dimensional breakdown for event payloads.
func (q QualityScore) Map() map[string]float64 {
	return map[string]float64{
		"relevance":    q.Relevance,
		"practicality": q.Practicality,
		"timeliness":   q.Timeliness,
		"authority":    q.Authority,
		"completeness": q.Completeness,
		"accuracy":     q.Accuracy,
	}
}

// GapReport is the set-level coverage assessment.
type GapReport struct {
	Score          float64  `json:"score"`
	MissingAspects []string `json:"missing_aspects"`
	WeakSources    []string `json:"weak_sources"`
	Staleness      float64  `json:"staleness"`
}

// fallbackAspects are the coverage dimensions checked when no model is
// available: an aspect backed by zero or one document is flagged.
var fallbackAspects = []string{"market", "policy", "technology", "investment", "risk"}

// aspectKeywords maps each fallback aspect to the words that count a
// document toward it.
var aspectKeywords = map[string][]string{
	"market":     {"market", "revenue", "demand", "customer", "competition", "share"},
	"policy":     {"policy", "regulation", "law", "government", "compliance", "legislation"},
	"technology": {"technology", "technical", "architecture", "algorithm", "engineering", "system"},
	"investment": {"investment", "funding", "capital", "valuation", "investor", "financing"},
	"risk":       {"risk", "threat", "vulnerability", "challenge", "limitation", "concern"},
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
