package llms

import (
	"fmt"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/registry"
)

// Registry holds constructed providers by name.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// NewFromConfig constructs the provider the config selects. Returns
// (nil, nil) when no backend is configured: the pipeline runs on its
// deterministic fallbacks in that case.
func NewFromConfig(cfg *config.LLMConfig) (Provider, error) {
	if cfg == nil || !cfg.Configured() {
		return nil, nil
	}

	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case config.LLMProviderGemini:
		return NewGeminiProvider(cfg)
	case config.LLMProviderOllama:
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic, gemini, ollama)", cfg.Provider)
	}
}
