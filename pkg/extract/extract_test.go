package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
)

func testConfig() config.ExtractConfig {
	cfg := config.ExtractConfig{Enabled: true}
	cfg.SetDefaults()
	return cfg
}

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><style>body{color:red}</style><script>alert(1)</script></head>` +
			`<body><h1>Grid storage</h1><p>Batteries &amp; flywheels.</p></body></html>`))
	}))
	defer srv.Close()

	f := New(testConfig())
	text, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(text, "Grid storage") || !strings.Contains(text, "Batteries & flywheels.") {
		t.Errorf("extracted text missing content: %q", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") {
		t.Errorf("script or style leaked into text: %q", text)
	}
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  raw body  "))
	}))
	defer srv.Close()

	f := New(testConfig())
	text, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if text != "raw body" {
		t.Errorf("Fetch() = %q, want %q", text, "raw body")
	}
}

func TestFetchEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBytes = 1024
	f := New(cfg)
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch() should fail when the body exceeds max_bytes")
	}
}

func TestFetchRejectsMalformedPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 but not really"))
	}))
	defer srv.Close()

	f := New(testConfig())
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch() should fail on unparseable PDF bytes")
	}
}

func TestFullTextURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://arxiv.org/abs/2406.01234", want: "https://arxiv.org/pdf/2406.01234"},
		{in: "https://example.com/paper.pdf", want: "https://example.com/paper.pdf"},
	}
	for _, tt := range tests {
		if got := fullTextURL(tt.in); got != tt.want {
			t.Errorf("fullTextURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSniffContentType(t *testing.T) {
	tests := []struct {
		name   string
		header string
		data   []byte
		want   string
	}{
		{name: "header pdf", header: "application/pdf", data: []byte("x"), want: "application/pdf"},
		{name: "magic bytes beat header", header: "text/plain", data: []byte("%PDF-1.7"), want: "application/pdf"},
		{name: "html with charset", header: "text/html; charset=utf-8", data: []byte("<p>"), want: "text/html"},
		{name: "sniffed html", header: "", data: []byte("<!DOCTYPE html><html></html>"), want: "text/html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffContentType(tt.header, tt.data); got != tt.want {
				t.Errorf("sniffContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnrichReplacesShortAcademicContent(t *testing.T) {
	full := strings.Repeat("Detailed findings on tandem cell degradation. ", 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(full))
	}))
	defer srv.Close()

	docs := []document.Document{
		{Title: "paper", URL: srv.URL, SourceType: document.SourceTypeAcademic, Content: "short abstract"},
		{Title: "article", URL: srv.URL, SourceType: document.SourceTypeWeb, Content: "web snippet"},
	}

	f := New(testConfig())
	out := f.Enrich(context.Background(), docs)

	if out[0].Content == "short abstract" {
		t.Error("academic document content was not enriched")
	}
	if out[1].Content != "web snippet" {
		t.Error("web document must not be fetched")
	}
}

func TestEnrichHonorsMaxDocs(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("full text ", 50)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxDocs = 1
	f := New(cfg)

	docs := []document.Document{
		{URL: srv.URL, SourceType: document.SourceTypeAcademic, Content: "a"},
		{URL: srv.URL, SourceType: document.SourceTypeAcademic, Content: "b"},
	}
	f.Enrich(context.Background(), docs)

	if hits != 1 {
		t.Errorf("fetches = %d, want 1", hits)
	}
}

func TestHTMLText(t *testing.T) {
	in := []byte("<div>one</div>\n\n\n\n<div>two &lt;3</div>")
	got := htmlText(in)
	if !strings.Contains(got, "one") || !strings.Contains(got, "two <3") {
		t.Errorf("htmlText() = %q", got)
	}
	if strings.Contains(got, "<div>") {
		t.Errorf("tags left in output: %q", got)
	}
}
