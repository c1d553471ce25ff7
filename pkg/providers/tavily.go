package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/httpclient"
)

// TavilyAdapter queries the Tavily search API.
type TavilyAdapter struct {
	cfg  *config.ProviderConfig
	http *httpclient.Client
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Days       int    `json:"days,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Content       string   `json:"content"`
	Score         *float64 `json:"score"`
	PublishedDate string   `json:"published_date"`
}

// NewTavilyAdapter creates the adapter.
func NewTavilyAdapter(cfg *config.ProviderConfig) *TavilyAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	return &TavilyAdapter{cfg: cfg, http: newProviderHTTPClient(cfg)}
}

// ID returns "tavily".
func (a *TavilyAdapter) ID() string { return "tavily" }

// Category returns the configured category.
func (a *TavilyAdapter) Category() document.SourceType {
	return document.SourceType(a.cfg.Category)
}

// Search performs one Tavily search. Freshness maps onto the API's day
// window; "news" topic activates Tavily's date-aware ranking.
func (a *TavilyAdapter) Search(ctx context.Context, query string, opts SearchOptions) ([]document.RawResult, error) {
	body := tavilyRequest{
		Query:      query,
		MaxResults: opts.MaxResults,
	}
	if days, ok := FreshnessDays(opts.Freshness); ok {
		body.Days = days
		body.Topic = "news"
	} else if opts.DaysBack > 0 {
		body.Days = opts.DaysBack
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, providerErr("tavily", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, providerErr("tavily", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, providerErr("tavily", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, providerErr("tavily", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providerErr("tavily", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerErr("tavily", err)
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, providerErr("tavily", fmt.Errorf("failed to decode response: %w", err))
	}

	results := make([]document.RawResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, document.RawResult{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Score:       r.Score,
			PublishDate: r.PublishedDate,
		})
	}
	return results, nil
}
