package config

import (
	"fmt"
	"os"
	"strings"
)

// ProviderConfig configures one search provider adapter. Adding a
// provider is a config-only change: id → category + factory.
type ProviderConfig struct {
	// Type selects the adapter implementation. Empty means the map key
	// names a built-in adapter (brave, google, tavily, arxiv, news);
	// "mcp" runs an MCP server exposing a search tool.
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Type,description=Adapter implementation (built-in by id or mcp)"`

	// Category routes the provider (web, academic, news).
	Category string `yaml:"category,omitempty" json:"category,omitempty" jsonschema:"title=Category,description=Retrieval channel,enum=web,enum=academic,enum=news"`

	// APIKey for the provider. Supports ${VAR} expansion; detected from
	// the conventional environment variable when unset.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=Provider API key (use ${ENV_VAR})"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Custom provider endpoint"`

	// MaxConcurrent caps in-flight requests to this provider across the
	// whole session. Zero selects the per-provider default.
	MaxConcurrent int64 `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty" jsonschema:"title=Max Concurrent,description=In-flight request cap"`

	// Timeout bounds a single provider call, in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,description=Per-call timeout in seconds,default=30"`

	// Command, Args, Env, and Tool configure an MCP adapter (type=mcp):
	// the stdio server command and the search tool to call.
	Command string            `yaml:"command,omitempty" json:"command,omitempty" jsonschema:"title=Command,description=MCP server command (type=mcp)"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty" jsonschema:"title=Args,description=MCP server arguments"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty" jsonschema:"title=Env,description=MCP server environment"`
	Tool    string            `yaml:"tool,omitempty" json:"tool,omitempty" jsonschema:"title=Tool,description=MCP search tool name,default=search"`
}

// Built-in provider categories, applied when the config omits one.
var builtinCategories = map[string]string{
	"brave":  "web",
	"google": "web",
	"tavily": "web",
	"arxiv":  "academic",
	"news":   "news",
}

// providerEnvKeys maps built-in ids to their conventional API key
// environment variables.
var providerEnvKeys = map[string]string{
	"brave":  "BRAVE_API_KEY",
	"google": "SERPER_API_KEY",
	"tavily": "TAVILY_API_KEY",
	"news":   "NEWS_API_KEY",
}

// SetDefaults applies defaults for the provider registered under id.
func (c *ProviderConfig) SetDefaults(id string) {
	if c.Category == "" {
		if cat, ok := builtinCategories[id]; ok {
			c.Category = cat
		} else {
			c.Category = "web"
		}
	}
	if c.APIKey == "" {
		if envKey, ok := providerEnvKeys[id]; ok {
			c.APIKey = os.Getenv(envKey)
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.Type == "mcp" && c.Tool == "" {
		c.Tool = "search"
	}
}

// Validate checks the provider configuration.
func (c *ProviderConfig) Validate() error {
	switch c.Category {
	case "web", "academic", "news":
	default:
		return fmt.Errorf("invalid category %q (valid: web, academic, news)", c.Category)
	}
	if c.Type == "mcp" && strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("mcp provider requires a command")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	return nil
}

// SearchConfig configures the retrieval fan-out.
type SearchConfig struct {
	// Workers caps the orchestrator's worker pool. The effective cap is
	// min(workers, sum of per-provider caps).
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty" jsonschema:"title=Workers,description=Worker pool cap,default=6"`

	// MaxResultsPerQuery asked of each provider.
	MaxResultsPerQuery int `yaml:"max_results_per_query,omitempty" json:"max_results_per_query,omitempty" jsonschema:"title=Max Results Per Query,description=Results requested per provider call,default=5"`

	// Preferred and Fallback name the provider sets for escalating
	// searches. Empty means preferred = all web, fallback = everything
	// else.
	Preferred []string `yaml:"preferred,omitempty" json:"preferred,omitempty" jsonschema:"title=Preferred,description=Preferred provider ids for fallback escalation"`
	Fallback  []string `yaml:"fallback,omitempty" json:"fallback,omitempty" jsonschema:"title=Fallback,description=Fallback provider ids"`
}

// SetDefaults applies search defaults.
func (c *SearchConfig) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = 6
	}
	if c.MaxResultsPerQuery == 0 {
		c.MaxResultsPerQuery = 5
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.MaxResultsPerQuery < 1 {
		return fmt.Errorf("max_results_per_query must be at least 1")
	}
	return nil
}
