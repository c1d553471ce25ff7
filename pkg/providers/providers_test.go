package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
)

const arxivSampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <title>Deep  Learning
      for Energy Grids</title>
    <summary>We study   grid
      forecasting.</summary>
    <published>2024-01-02T00:00:00Z</published>
    <author><name>A. Researcher</name></author>
    <author><name>B. Author</name></author>
    <journal_ref>Energy Systems 12</journal_ref>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2001.00002v1</id>
    <title>An Older Paper</title>
    <summary>Stale result.</summary>
    <published>2020-01-01T00:00:00Z</published>
    <author><name>C. Writer</name></author>
  </entry>
</feed>`

func TestArxivSearchParsesAtomFeed(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		fmt.Fprint(w, arxivSampleFeed)
	}))
	defer server.Close()

	cfg := &config.ProviderConfig{Category: "academic", BaseURL: server.URL}
	cfg.SetDefaults("arxiv")
	adapter := NewArxivAdapter(cfg)

	results, err := adapter.Search(context.Background(), "energy grids", SearchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery != "all:energy grids" {
		t.Errorf("search_query = %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	first := results[0]
	if first.Title != "Deep Learning for Energy Grids" {
		t.Errorf("Title = %q, hard wraps should collapse", first.Title)
	}
	if first.Abstract != "We study grid forecasting." {
		t.Errorf("Abstract = %q", first.Abstract)
	}
	if first.URL != "http://arxiv.org/abs/2401.00001v1" {
		t.Errorf("URL = %q", first.URL)
	}
	authors, ok := first.Authors.([]string)
	if !ok || len(authors) != 2 || authors[0] != "A. Researcher" {
		t.Errorf("Authors = %v", first.Authors)
	}
	if first.Venue != "Energy Systems 12" {
		t.Errorf("Venue = %q", first.Venue)
	}
}

func TestArxivSearchEmulatesFreshness(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, arxivSampleFeed)
	}))
	defer server.Close()

	cfg := &config.ProviderConfig{Category: "academic", BaseURL: server.URL}
	cfg.SetDefaults("arxiv")
	adapter := NewArxivAdapter(cfg)
	adapter.now = func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }

	results, err := adapter.Search(context.Background(), "energy", SearchOptions{Freshness: FreshnessPastMonth})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want only the recent entry", len(results))
	}
	if results[0].URL != "http://arxiv.org/abs/2401.00001v1" {
		t.Errorf("kept %q", results[0].URL)
	}
}

func TestBraveSearchSendsTokenAndFreshness(t *testing.T) {
	var gotToken, gotFreshness string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotFreshness = r.URL.Query().Get("freshness")
		fmt.Fprint(w, `{"web":{"results":[{"title":"A","url":"https://a.example","description":"d","page_age":"2024-05-01"}]}}`)
	}))
	defer server.Close()

	cfg := &config.ProviderConfig{Category: "web", APIKey: "brave-key", BaseURL: server.URL}
	cfg.SetDefaults("brave")
	adapter := NewBraveAdapter(cfg)

	results, err := adapter.Search(context.Background(), "topic", SearchOptions{Freshness: FreshnessPastWeek})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotToken != "brave-key" {
		t.Errorf("X-Subscription-Token = %q", gotToken)
	}
	if gotFreshness != "pw" {
		t.Errorf("freshness = %q, want pw", gotFreshness)
	}
	if len(results) != 1 || results[0].URL != "https://a.example" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := &config.ProviderConfig{Category: "academic", BaseURL: server.URL}
	cfg.SetDefaults("arxiv")
	adapter := NewArxivAdapter(cfg)

	_, err := adapter.Search(context.Background(), "q", SearchOptions{})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if pe.Provider != "arxiv" {
		t.Errorf("Provider = %q", pe.Provider)
	}
}

func TestEmulateFreshnessDropsUndatedUnderConstraint(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	results := []document.RawResult{
		{URL: "https://dated.example", PublishDate: "2024-05-28"},
		{URL: "https://undated.example"},
		{URL: "https://old.example", PublishDate: "2023-01-01"},
	}

	got := emulateFreshness(results, SearchOptions{Freshness: FreshnessPastWeek}, now)
	if len(got) != 1 || got[0].URL != "https://dated.example" {
		t.Errorf("strict filter kept %+v", got)
	}

	got = emulateFreshness(results, SearchOptions{DaysBack: 7}, now)
	if len(got) != 2 {
		t.Errorf("DaysBack-only filter kept %d items, undated should survive", len(got))
	}
}

func TestNewFromConfigSkipsKeylessProviders(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "")
	cfgs := map[string]*config.ProviderConfig{
		"brave": {Category: "web"},
		"arxiv": {Category: "academic"},
	}
	for id, cfg := range cfgs {
		cfg.SetDefaults(id)
	}

	reg, err := NewFromConfig(cfgs, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count = %d, want only the keyless arxiv adapter", reg.Count())
	}
	if _, ok := reg.Get("arxiv"); !ok {
		t.Error("arxiv not registered")
	}
	if got := reg.ByCategory(document.SourceTypeAcademic); len(got) != 1 || got[0] != "arxiv" {
		t.Errorf("ByCategory(academic) = %v", got)
	}
}

func TestNewFromConfigRejectsUnknownProvider(t *testing.T) {
	cfgs := map[string]*config.ProviderConfig{"mystery": {Category: "web", APIKey: "k"}}
	cfgs["mystery"].SetDefaults("mystery")

	if _, err := NewFromConfig(cfgs, nil); err == nil {
		t.Error("unknown provider id accepted")
	}
}
