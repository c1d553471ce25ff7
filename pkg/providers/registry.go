package providers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/httpclient"
	"github.com/kadirpekel/dossier/pkg/registry"
)

// Registry holds the configured adapters by id.
type Registry struct {
	*registry.BaseRegistry[Adapter]
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Adapter]()}
}

// ByCategory returns the ids of adapters registered under a category,
// in sorted order.
func (r *Registry) ByCategory(category document.SourceType) []string {
	var ids []string
	for _, id := range r.Names() {
		if a, ok := r.Get(id); ok && a.Category() == category {
			ids = append(ids, id)
		}
	}
	return ids
}

// NewFromConfig builds the adapter registry. Providers whose API key
// is missing are skipped with a startup notice rather than failing:
// the system must run with whatever subset is usable (academic-only in
// the extreme).
func NewFromConfig(cfgs map[string]*config.ProviderConfig, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := NewRegistry()

	for id, cfg := range cfgs {
		adapter, err := newAdapter(id, cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", id, err)
		}
		if adapter == nil {
			log.Warn("Search provider disabled: no API key configured", "provider", id)
			continue
		}
		if err := reg.Register(id, adapter); err != nil {
			return nil, fmt.Errorf("provider %q: %w", id, err)
		}
		log.Info("Search provider registered", "provider", id, "category", cfg.Category)
	}

	return reg, nil
}

// newAdapter constructs the adapter for one provider entry. A nil
// adapter with nil error means the provider is disabled (missing key).
func newAdapter(id string, cfg *config.ProviderConfig) (Adapter, error) {
	if cfg.Type == "mcp" {
		return NewMCPAdapter(id, cfg)
	}

	switch id {
	case "brave":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewBraveAdapter(cfg), nil
	case "google":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewGoogleAdapter(cfg), nil
	case "tavily":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewTavilyAdapter(cfg), nil
	case "arxiv":
		return NewArxivAdapter(cfg), nil
	case "news":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewNewsAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown built-in provider (use type: mcp for custom providers)")
	}
}

// newProviderHTTPClient builds the retrying HTTP client an adapter
// uses. 429 handling (wait + retry with backoff, honoring Retry-After)
// lives in the client; adapters only surface the terminal error.
func newProviderHTTPClient(cfg *config.ProviderConfig) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(2),
		httpclient.WithBaseDelay(time.Second),
		httpclient.WithHeaderParser(httpclient.ParseStandardHeaders),
	)
}
