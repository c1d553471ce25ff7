package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/httpclient"
)

// NewsAdapter queries a NewsAPI.org-style REST endpoint.
type NewsAdapter struct {
	cfg  *config.ProviderConfig
	http *httpclient.Client
	now  func() time.Time
}

type newsResponse struct {
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Articles []newsArticle `json:"articles"`
}

type newsArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Content     string `json:"content"`
	PublishedAt string `json:"publishedAt"`
	Author      string `json:"author"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

// NewNewsAdapter creates the adapter.
func NewNewsAdapter(cfg *config.ProviderConfig) *NewsAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://newsapi.org/v2"
	}
	return &NewsAdapter{cfg: cfg, http: newProviderHTTPClient(cfg), now: time.Now}
}

// ID returns "news".
func (a *NewsAdapter) ID() string { return "news" }

// Category returns the configured category.
func (a *NewsAdapter) Category() document.SourceType {
	return document.SourceType(a.cfg.Category)
}

// Search performs one news query. Freshness and DaysBack both map
// onto the API's "from" parameter.
func (a *NewsAdapter) Search(ctx context.Context, query string, opts SearchOptions) ([]document.RawResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	if opts.MaxResults > 0 {
		params.Set("pageSize", strconv.Itoa(opts.MaxResults))
	}
	if days, _ := effectiveWindow(opts); days > 0 {
		from := a.now().UTC().AddDate(0, 0, -days)
		params.Set("from", from.Format("2006-01-02"))
	}
	if opts.Language != "" {
		params.Set("language", shortLanguage(opts.Language))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, providerErr("news", err)
	}
	req.Header.Set("X-Api-Key", a.cfg.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, providerErr("news", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, providerErr("news", ErrRateLimited)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerErr("news", err)
	}

	var parsed newsResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, providerErr("news", fmt.Errorf("failed to decode response: %w", err))
	}
	if parsed.Status != "ok" {
		return nil, providerErr("news", fmt.Errorf("api error: %s", parsed.Message))
	}

	results := make([]document.RawResult, 0, len(parsed.Articles))
	for _, article := range parsed.Articles {
		results = append(results, document.RawResult{
			Title:       article.Title,
			URL:         article.URL,
			Content:     article.Content,
			Description: article.Description,
			Published:   article.PublishedAt,
			Authors:     article.Author,
			Venue:       article.Source.Name,
		})
	}
	return results, nil
}

// shortLanguage reduces a BCP 47 tag to the two-letter code NewsAPI
// expects ("zh-CN" → "zh").
func shortLanguage(tag string) string {
	if len(tag) > 2 {
		return tag[:2]
	}
	return tag
}
