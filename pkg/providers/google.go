package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/httpclient"
)

// GoogleAdapter queries Google results through a Serper-style JSON API.
type GoogleAdapter struct {
	cfg  *config.ProviderConfig
	http *httpclient.Client
}

type googleRequest struct {
	Query    string `json:"q"`
	Num      int    `json:"num,omitempty"`
	TBS      string `json:"tbs,omitempty"`
	Language string `json:"hl,omitempty"`
}

type googleResponse struct {
	Organic []googleResult `json:"organic"`
}

type googleResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

// NewGoogleAdapter creates the adapter.
func NewGoogleAdapter(cfg *config.ProviderConfig) *GoogleAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://google.serper.dev"
	}
	return &GoogleAdapter{cfg: cfg, http: newProviderHTTPClient(cfg)}
}

// ID returns "google".
func (a *GoogleAdapter) ID() string { return "google" }

// Category returns the configured category.
func (a *GoogleAdapter) Category() document.SourceType {
	return document.SourceType(a.cfg.Category)
}

// googleTBS maps freshness onto Google's time-based search operator.
func googleTBS(freshness string) string {
	switch freshness {
	case FreshnessPastDay:
		return "qdr:d"
	case FreshnessPastWeek:
		return "qdr:w"
	case FreshnessPastMonth:
		return "qdr:m"
	default:
		return ""
	}
}

// Search performs one Google search.
func (a *GoogleAdapter) Search(ctx context.Context, query string, opts SearchOptions) ([]document.RawResult, error) {
	body := googleRequest{
		Query:    query,
		Num:      opts.MaxResults,
		TBS:      googleTBS(opts.Freshness),
		Language: opts.Language,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, providerErr("google", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, providerErr("google", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", a.cfg.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, providerErr("google", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, providerErr("google", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providerErr("google", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerErr("google", err)
	}

	var parsed googleResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, providerErr("google", fmt.Errorf("failed to decode response: %w", err))
	}

	results := make([]document.RawResult, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		results = append(results, document.RawResult{
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Snippet,
			PublishDate: r.Date,
		})
	}
	// Serper's qdr window is coarse; apply the exact DaysBack filter on
	// top without dropping undated results.
	if opts.Freshness == "" && opts.DaysBack > 0 {
		results = emulateFreshness(results, opts, time.Now().UTC())
	}
	return results, nil
}
