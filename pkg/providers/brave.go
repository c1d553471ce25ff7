package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/httpclient"
)

// BraveAdapter queries the Brave Search API.
type BraveAdapter struct {
	cfg  *config.ProviderConfig
	http *httpclient.Client
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PageAge     string `json:"page_age"`
	Language    string `json:"language"`
}

// NewBraveAdapter creates the adapter.
func NewBraveAdapter(cfg *config.ProviderConfig) *BraveAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.search.brave.com/res/v1"
	}
	return &BraveAdapter{cfg: cfg, http: newProviderHTTPClient(cfg)}
}

// ID returns "brave".
func (a *BraveAdapter) ID() string { return "brave" }

// Category returns the configured category.
func (a *BraveAdapter) Category() document.SourceType {
	return document.SourceType(a.cfg.Category)
}

// braveFreshness maps the uniform freshness values to Brave's codes.
func braveFreshness(freshness string) string {
	switch freshness {
	case FreshnessPastDay:
		return "pd"
	case FreshnessPastWeek:
		return "pw"
	case FreshnessPastMonth:
		return "pm"
	default:
		return ""
	}
}

// Search performs one Brave web search.
func (a *BraveAdapter) Search(ctx context.Context, query string, opts SearchOptions) ([]document.RawResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if opts.MaxResults > 0 {
		params.Set("count", strconv.Itoa(opts.MaxResults))
	}
	if code := braveFreshness(opts.Freshness); code != "" {
		params.Set("freshness", code)
	}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, providerErr("brave", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", a.cfg.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, providerErr("brave", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, providerErr("brave", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providerErr("brave", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerErr("brave", err)
	}

	var parsed braveResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, providerErr("brave", fmt.Errorf("failed to decode response: %w", err))
	}

	results := make([]document.RawResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, document.RawResult{
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
			PublishDate: r.PageAge,
			Language:    r.Language,
		})
	}
	return results, nil
}
