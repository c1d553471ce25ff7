// Package document defines the canonical retrieved record and the
// normalization rules that turn provider-specific results into it.
package document

import (
	"time"
)

// SourceType classifies the retrieval channel a document came from.
type SourceType string

const (
	SourceTypeWeb      SourceType = "web"
	SourceTypeAcademic SourceType = "academic"
	SourceTypeNews     SourceType = "news"
)

// Document is the canonical record of a single retrieved item. Documents are
// immutable after normalization: they are created by Normalize and shared by
// reference within a session.
type Document struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	SourceType  SourceType `json:"source_type"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	Authors     []string   `json:"authors,omitempty"`
	Venue       string     `json:"venue,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Language    string     `json:"language,omitempty"`
	Domain      string     `json:"domain"`
}

// ScoreValue returns the provider score or 0 when absent.
func (d Document) ScoreValue() float64 {
	if d.Score == nil {
		return 0
	}
	return *d.Score
}

// AgeDays returns whole days since publication relative to now, or -1 when
// the document is undated.
func (d Document) AgeDays(now time.Time) int {
	if d.PublishDate == nil {
		return -1
	}
	age := now.Sub(*d.PublishDate)
	if age < 0 {
		return 0
	}
	return int(age.Hours() / 24)
}

// RawResult is the provider-agnostic shape adapters hand to the normalizer.
// Providers fill only the fields their API returns; the normalizer applies
// the field-priority rules. Authors may be a string ("A, B; C") or a
// []string, matching the two shapes provider APIs use.
type RawResult struct {
	Title       string
	URL         string
	Content     string
	Summary     string
	Abstract    string
	Snippet     string
	Description string
	Authors     any
	PublishDate string
	Published   string
	Date        string
	Year        string
	PubDate     string
	Venue       string
	Score       *float64
	Language    string
}
