// Package config defines the dossier configuration surface: the LLM
// backend, search providers, research budgets, writer defaults, and the
// server/session/observability settings. Every section carries
// SetDefaults and Validate; the loader applies env expansion before
// decoding.
package config

import (
	"fmt"
)

// Config is the root configuration for a dossier deployment.
type Config struct {
	// LLM configures the text-completion backend.
	LLM LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty" jsonschema:"title=LLM,description=LLM backend configuration"`

	// Providers maps search provider ids to their configuration.
	Providers map[string]*ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty" jsonschema:"title=Providers,description=Search provider configurations keyed by id"`

	// Search configures retrieval fan-out.
	Search SearchConfig `yaml:"search,omitempty" json:"search,omitempty" jsonschema:"title=Search,description=Search orchestration settings"`

	// Research configures the iterative quality-gated loop.
	Research ResearchConfig `yaml:"research,omitempty" json:"research,omitempty" jsonschema:"title=Research,description=Iterative research loop budgets"`

	// Analysis configures document scoring.
	Analysis AnalysisConfig `yaml:"analysis,omitempty" json:"analysis,omitempty" jsonschema:"title=Analysis,description=Document scoring settings"`

	// Extract configures full-text enrichment of academic results.
	Extract ExtractConfig `yaml:"extract,omitempty" json:"extract,omitempty" jsonschema:"title=Extract,description=Full-text enrichment settings"`

	// Writer configures section and summary generation.
	Writer WriterConfig `yaml:"writer,omitempty" json:"writer,omitempty" jsonschema:"title=Writer,description=Section writer defaults"`

	// Output configures the report artifact sink.
	Output OutputConfig `yaml:"output,omitempty" json:"output,omitempty" jsonschema:"title=Output,description=Report artifact settings"`

	// Server configures the HTTP/JSON-RPC listener.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server,description=HTTP server settings"`

	// Session configures session state storage.
	Session SessionConfig `yaml:"session,omitempty" json:"session,omitempty" jsonschema:"title=Session,description=Session store settings"`

	// Logger configures logging behavior.
	Logger LoggerConfig `yaml:"logger,omitempty" json:"logger,omitempty" jsonschema:"title=Logger,description=Logging settings"`

	// Observability configures tracing and metrics.
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability,description=Tracing and metrics settings"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	for id, p := range c.Providers {
		if p == nil {
			p = &ProviderConfig{}
			c.Providers[id] = p
		}
		p.SetDefaults(id)
	}
	c.Search.SetDefaults()
	c.Research.SetDefaults()
	c.Analysis.SetDefaults()
	c.Extract.SetDefaults()
	c.Writer.SetDefaults()
	c.Output.SetDefaults()
	c.Server.SetDefaults()
	c.Session.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section. The provider set may be empty here;
// whether at least one usable provider exists is a startup concern
// (the server refuses to create sessions without any).
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	for id, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %q: %w", id, err)
		}
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Research.Validate(); err != nil {
		return fmt.Errorf("research: %w", err)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Extract.Validate(); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if err := c.Writer.Validate(); err != nil {
		return fmt.Errorf("writer: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// Default returns a fully defaulted configuration with the standard
// provider set. API keys are picked up from the environment; keyless
// providers like arxiv are always usable.
func Default() *Config {
	cfg := &Config{
		Providers: map[string]*ProviderConfig{
			"brave":  {Category: "web"},
			"google": {Category: "web"},
			"tavily": {Category: "web"},
			"arxiv":  {Category: "academic"},
			"news":   {Category: "news"},
		},
	}
	cfg.SetDefaults()
	return cfg
}

// BoolPtr returns a pointer to b, for optional bool fields.
func BoolPtr(b bool) *bool {
	return &b
}

// Float64Ptr returns a pointer to f, for optional float fields.
func Float64Ptr(f float64) *float64 {
	return &f
}
