package document

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date layouts accepted by ParseDate, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01",
	time.RFC1123,
	time.RFC1123Z,
}

var bareYearRe = regexp.MustCompile(`^\d{4}$`)

// Normalize converts a provider result into a canonical Document. The second
// return value is false when the record must be dropped (missing or invalid
// URL). Normalize performs no network or model calls and is deterministic.
func Normalize(providerID string, category SourceType, raw RawResult) (Document, bool) {
	rawURL := strings.TrimSpace(raw.URL)
	if rawURL == "" {
		return Document{}, false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Document{}, false
	}

	doc := Document{
		Title:       strings.TrimSpace(raw.Title),
		Content:     firstNonEmpty(raw.Content, raw.Summary, raw.Abstract, raw.Snippet, raw.Description),
		URL:         rawURL,
		Source:      providerID,
		SourceType:  category,
		PublishDate: parseDateFields(raw),
		Authors:     normalizeAuthors(raw.Authors),
		Venue:       strings.TrimSpace(raw.Venue),
		Score:       raw.Score,
		Language:    strings.TrimSpace(raw.Language),
		Domain:      strings.ToLower(parsed.Hostname()),
	}

	return doc, true
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// parseDateFields applies the priority order publish_date, published, date,
// year, publication_date.
func parseDateFields(raw RawResult) *time.Time {
	for _, candidate := range []string{raw.PublishDate, raw.Published, raw.Date, raw.Year, raw.PubDate} {
		if t := ParseDate(candidate); t != nil {
			return t
		}
	}
	return nil
}

// ParseDate parses a provider date string. A bare year becomes January 1 of
// that year. Unparseable input yields nil, never an error.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if bareYearRe.MatchString(value) {
		year, err := strconv.Atoi(value)
		if err != nil || year < 1000 || year > 3000 {
			return nil
		}
		t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return &t
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t := parsed.UTC().Truncate(24 * time.Hour)
			return &t
		}
	}
	return nil
}

var authorSplitRe = regexp.MustCompile(`[,;]`)

// normalizeAuthors accepts a string ("A, B; C") or a list of strings and
// returns a trimmed, order-preserving slice. Anything else yields nil.
func normalizeAuthors(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return splitAuthors(v)
	case []string:
		var out []string
		for _, a := range v {
			if trimmed := strings.TrimSpace(a); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					out = append(out, trimmed)
				}
			}
		}
		return out
	default:
		return nil
	}
}

func splitAuthors(s string) []string {
	var out []string
	for _, part := range authorSplitRe.Split(s, -1) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
