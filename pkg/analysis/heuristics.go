package analysis

import (
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/dossier/pkg/document"
)

// TimelinessScore rates recency on a piecewise scale. A missing date
// scores neutral rather than bad: many authoritative pages are undated.
func TimelinessScore(publishDate *time.Time, now time.Time) float64 {
	if publishDate == nil {
		return 0.5
	}
	days := int(now.Sub(*publishDate).Hours() / 24)
	switch {
	case days <= 30:
		return 1.0
	case days <= 90:
		return 0.9
	case days <= 180:
		return 0.8
	case days <= 365:
		return 0.6
	case days <= 730:
		return 0.4
	default:
		return 0.2
	}
}

// CompletenessScore rates content volume in characters.
func CompletenessScore(content string) float64 {
	n := len([]rune(content))
	switch {
	case n >= 2000:
		return 1.0
	case n >= 1000:
		return 0.8
	case n >= 500:
		return 0.6
	case n >= 200:
		return 0.4
	default:
		return 0.2
	}
}

// practicalityIndicators mark actionable, hands-on content.
var practicalityIndicators = []string{
	"how to", "guide", "tutorial", "case study", "implementation",
	"step", "example", "best practice", "in practice", "deployment",
	"lessons learned", "benchmark", "comparison",
}

// accuracyIndicators mark verifiable, sourced content.
var accuracyIndicators = []string{
	"according to", "study", "survey", "report", "data", "research",
	"source", "published", "measured", "evidence", "cited",
}

var numericToken = regexp.MustCompile(`\d`)

// heuristicRelevance scores keyword overlap between the topic terms
// and the document's title and content. Title hits weigh double.
func heuristicRelevance(topic string, doc document.Document) float64 {
	terms := tokenize(topic)
	if len(terms) == 0 {
		return 0.5
	}
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)

	var hits float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			hits += 2
		} else if strings.Contains(content, term) {
			hits++
		}
	}
	return clamp01(hits / float64(2*len(terms)))
}

// heuristicPracticality counts indicator phrases and numeric density.
func heuristicPracticality(doc document.Document) float64 {
	text := strings.ToLower(doc.Title + " " + doc.Content)
	score := 0.3
	for _, ind := range practicalityIndicators {
		if strings.Contains(text, ind) {
			score += 0.1
		}
	}
	return clamp01(score)
}

// heuristicAccuracy uses sourcing signals: indicator phrases, numbers,
// named authors, and a venue all raise confidence.
func heuristicAccuracy(doc document.Document) float64 {
	text := strings.ToLower(doc.Content)
	score := 0.3
	for _, ind := range accuracyIndicators {
		if strings.Contains(text, ind) {
			score += 0.07
		}
	}
	if numericToken.MatchString(doc.Content) {
		score += 0.1
	}
	if len(doc.Authors) > 0 {
		score += 0.1
	}
	if doc.Venue != "" {
		score += 0.1
	}
	return clamp01(score)
}

// tokenize lowercases and splits a topic into terms, dropping single
// characters and common stop words.
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()[]`)
		if len([]rune(f)) < 2 {
			continue
		}
		if stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "are": true, "was": true, "what": true,
	"how": true, "why": true, "about": true, "into": true, "over": true,
	"of": true, "in": true, "on": true, "to": true, "an": true, "is": true,
}
