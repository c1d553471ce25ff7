package analysis

import "strings"

// domainAuthority classifies well-known hosts. Lookup matches the
// registered suffix, so subdomains inherit their parent's score.
var domainAuthority = map[string]float64{
	// Academic and scientific
	"arxiv.org":           0.95,
	"nature.com":          0.95,
	"science.org":         0.95,
	"ieee.org":            0.90,
	"acm.org":             0.90,
	"springer.com":        0.85,
	"sciencedirect.com":   0.85,
	"nih.gov":             0.90,
	"semanticscholar.org": 0.85,

	// Wire services and financial press
	"reuters.com":   0.85,
	"apnews.com":    0.85,
	"bloomberg.com": 0.85,
	"ft.com":        0.85,
	"wsj.com":       0.80,
	"economist.com": 0.80,
	"nytimes.com":   0.80,
	"bbc.com":       0.80,
	"bbc.co.uk":     0.80,
	"xinhuanet.com": 0.75,
	"caixin.com":    0.75,

	// Technology press and developer platforms
	"techcrunch.com":    0.70,
	"wired.com":         0.70,
	"arstechnica.com":   0.70,
	"theverge.com":      0.65,
	"github.com":        0.70,
	"stackoverflow.com": 0.65,

	// Institutions
	"worldbank.org": 0.90,
	"imf.org":       0.90,
	"oecd.org":      0.90,
	"un.org":        0.85,
	"europa.eu":     0.85,

	// Aggregators sit low: their content is derivative.
	"medium.com":   0.45,
	"substack.com": 0.45,
	"reddit.com":   0.35,
	"quora.com":    0.30,
	"zhihu.com":    0.40,
}

// tldAuthority scores unknown domains by their top-level domain.
var tldAuthority = map[string]float64{
	"gov": 0.90,
	"edu": 0.85,
	"mil": 0.85,
	"int": 0.80,
	"org": 0.60,
	"com": 0.50,
	"net": 0.45,
	"io":  0.50,
	"ai":  0.50,
	"co":  0.45,
}

const unknownAuthority = 0.40

// AuthorityScore rates a document's host. Known domains use the static
// table; unknown ones fall back to TLD heuristics.
func AuthorityScore(domain string) float64 {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	if domain == "" {
		return unknownAuthority
	}

	// Walk the suffixes so news.bbc.co.uk matches bbc.co.uk.
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		if score, ok := domainAuthority[strings.Join(labels[i:], ".")]; ok {
			return score
		}
	}

	// Country-code second-level domains like ac.uk and gov.cn carry
	// the institutional signal of their generic counterpart.
	if len(labels) >= 2 {
		second := labels[len(labels)-2]
		switch second {
		case "gov":
			return tldAuthority["gov"]
		case "ac", "edu":
			return tldAuthority["edu"]
		}
	}

	if score, ok := tldAuthority[labels[len(labels)-1]]; ok {
		return score
	}
	return unknownAuthority
}
