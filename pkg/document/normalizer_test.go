package document

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalize_DropsMissingURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"no host", "https://"},
		{"relative", "/path/only"},
		{"bad scheme", "ftp://example.com/file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Normalize("brave", SourceTypeWeb, RawResult{Title: "x", URL: tt.url})
			if ok {
				t.Errorf("Normalize() ok = true for url %q, want false", tt.url)
			}
		})
	}
}

func TestNormalize_ContentPriority(t *testing.T) {
	tests := []struct {
		name string
		raw  RawResult
		want string
	}{
		{"content wins", RawResult{Content: "c", Summary: "s", Snippet: "sn"}, "c"},
		{"summary next", RawResult{Summary: "s", Abstract: "a"}, "s"},
		{"abstract next", RawResult{Abstract: "a", Snippet: "sn"}, "a"},
		{"snippet next", RawResult{Snippet: "sn", Description: "d"}, "sn"},
		{"description last", RawResult{Description: "d"}, "d"},
		{"blank content skipped", RawResult{Content: "  ", Summary: "s"}, "s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.raw.URL = "https://example.com/a"
			doc, ok := Normalize("tavily", SourceTypeWeb, tt.raw)
			if !ok {
				t.Fatal("Normalize() dropped a valid record")
			}
			if doc.Content != tt.want {
				t.Errorf("Content = %q, want %q", doc.Content, tt.want)
			}
		})
	}
}

func TestNormalize_DomainLowercasedHost(t *testing.T) {
	doc, ok := Normalize("google", SourceTypeWeb, RawResult{
		URL: "https://ArXiv.ORG/abs/2401.00001?v=2",
	})
	if !ok {
		t.Fatal("Normalize() dropped a valid record")
	}
	if doc.Domain != "arxiv.org" {
		t.Errorf("Domain = %q, want arxiv.org", doc.Domain)
	}
}

func TestNormalize_AuthorsStringAndList(t *testing.T) {
	tests := []struct {
		name    string
		authors any
		want    []string
	}{
		{"comma string", "Alice Chen, Bob Osei", []string{"Alice Chen", "Bob Osei"}},
		{"semicolon string", "Alice Chen; Bob Osei;", []string{"Alice Chen", "Bob Osei"}},
		{"mixed separators", "A, B; C", []string{"A", "B", "C"}},
		{"string slice", []string{" A ", "B", ""}, []string{"A", "B"}},
		{"any slice", []any{"A", 42, "B"}, []string{"A", "B"}},
		{"nil", nil, nil},
		{"unsupported", 3.14, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, _ := Normalize("arxiv", SourceTypeAcademic, RawResult{
				URL:     "https://arxiv.org/abs/1",
				Authors: tt.authors,
			})
			if len(doc.Authors) != len(tt.want) {
				t.Fatalf("Authors = %v, want %v", doc.Authors, tt.want)
			}
			for i := range tt.want {
				if doc.Authors[i] != tt.want[i] {
					t.Errorf("Authors[%d] = %q, want %q", i, doc.Authors[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseDate_Layouts(t *testing.T) {
	tests := []struct {
		in   string
		want string // YYYY-MM-DD, or "" for nil
	}{
		{"2024-03-15", "2024-03-15"},
		{"2024-03-15T10:30:00Z", "2024-03-15"},
		{"2024/03/15", "2024-03-15"},
		{"Mar 15, 2024", "2024-03-15"},
		{"15 Mar 2024", "2024-03-15"},
		{"2024", "2024-01-01"},
		{"2024-03", "2024-03-01"},
		{"not a date", ""},
		{"", ""},
		{"0000", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseDate(tt.in)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ParseDate(%q) = %v, want nil", tt.in, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseDate(%q) = nil, want %s", tt.in, tt.want)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestNormalize_DatePriority(t *testing.T) {
	doc, _ := Normalize("news", SourceTypeNews, RawResult{
		URL:         "https://news.example.com/a",
		PublishDate: "2024-06-01",
		Published:   "2023-01-01",
		Year:        "2020",
	})
	if doc.PublishDate == nil || doc.PublishDate.Format("2006-01-02") != "2024-06-01" {
		t.Errorf("PublishDate = %v, want 2024-06-01 (highest-priority field)", doc.PublishDate)
	}

	doc, _ = Normalize("news", SourceTypeNews, RawResult{
		URL:  "https://news.example.com/b",
		Year: "2020",
	})
	if doc.PublishDate == nil || doc.PublishDate.Format("2006-01-02") != "2020-01-01" {
		t.Errorf("PublishDate = %v, want 2020-01-01 (bare year)", doc.PublishDate)
	}

	doc, _ = Normalize("news", SourceTypeNews, RawResult{
		URL:  "https://news.example.com/c",
		Date: "garbage",
	})
	if doc.PublishDate != nil {
		t.Errorf("PublishDate = %v, want nil for unparseable date", doc.PublishDate)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := RawResult{
		Title:       "  Solid-state batteries  ",
		URL:         "https://Example.com/Research?id=7",
		Summary:     "A survey of recent progress.",
		Authors:     "Chen, Osei",
		PublishDate: "2024-05-20",
		Language:    "en",
	}

	first, ok1 := Normalize("arxiv", SourceTypeAcademic, raw)
	second, ok2 := Normalize("arxiv", SourceTypeAcademic, raw)
	if !ok1 || !ok2 {
		t.Fatal("Normalize() dropped a valid record")
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("Normalize not idempotent:\n%s\n%s", a, b)
	}
}

func TestDocument_AgeDays(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	published := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	doc := Document{PublishDate: &published}
	if got := doc.AgeDays(now); got != 10 {
		t.Errorf("AgeDays = %d, want 10", got)
	}

	undated := Document{}
	if got := undated.AgeDays(now); got != -1 {
		t.Errorf("AgeDays (undated) = %d, want -1", got)
	}

	future := now.Add(48 * time.Hour)
	doc = Document{PublishDate: &future}
	if got := doc.AgeDays(now); got != 0 {
		t.Errorf("AgeDays (future) = %d, want 0", got)
	}
}
