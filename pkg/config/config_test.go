package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Search.Workers != 6 {
		t.Errorf("Search.Workers = %d, want 6", cfg.Search.Workers)
	}
	if cfg.Research.MaxIterations != 3 {
		t.Errorf("Research.MaxIterations = %d, want 3", cfg.Research.MaxIterations)
	}
	if cfg.Research.QualityThreshold != 0.7 {
		t.Errorf("Research.QualityThreshold = %v, want 0.7", cfg.Research.QualityThreshold)
	}
	if got := cfg.Providers["arxiv"]; got == nil || got.Category != "academic" {
		t.Errorf("arxiv provider = %+v, want academic category", got)
	}
	if cfg.Providers["news"].Timeout != 30 {
		t.Errorf("provider timeout = %d, want 30", cfg.Providers["news"].Timeout)
	}
}

func TestProviderDefaultsFillCategory(t *testing.T) {
	p := &ProviderConfig{}
	p.SetDefaults("tavily")
	if p.Category != "web" {
		t.Errorf("Category = %q, want web", p.Category)
	}

	unknown := &ProviderConfig{}
	unknown.SetDefaults("custom")
	if unknown.Category != "web" {
		t.Errorf("unknown provider Category = %q, want web default", unknown.Category)
	}
}

func TestValidateRejectsBadSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad llm provider", func(c *Config) { c.LLM.Provider = "watson" }, "llm:"},
		{"bad category", func(c *Config) { c.Providers["arxiv"].Category = "social" }, "provider"},
		{"zero workers", func(c *Config) { c.Search.Workers = -1 }, "search:"},
		{"iteration ceiling", func(c *Config) { c.Research.MaxIterations = 11 }, "research:"},
		{"threshold range", func(c *Config) { c.Research.QualityThreshold = 1.5 }, "research:"},
		{"negative extract cap", func(c *Config) { c.Extract.MaxBytes = -1 }, "extract:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name the section %q", err, tt.want)
			}
		})
	}
}

func TestParseBytesExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BRAVE_KEY", "expanded-key")
	t.Setenv("TEST_MISSING", "")

	raw := []byte(`
providers:
  brave:
    category: web
    api_key: ${TEST_BRAVE_KEY}
  arxiv:
    category: academic
llm:
  provider: openai
  model: ${TEST_MISSING:-gpt-4o-mini}
  api_key: sk-x
`)
	cfg, err := ParseBytes(raw)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if cfg.Providers["brave"].APIKey != "expanded-key" {
		t.Errorf("api_key = %q, want env expansion", cfg.Providers["brave"].APIKey)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want the :- default", cfg.LLM.Model)
	}
}

func TestParseBytesRejectsInvalid(t *testing.T) {
	if _, err := ParseBytes([]byte("research:\n  max_iterations: 99\n")); err == nil {
		t.Error("ParseBytes accepted max_iterations over the ceiling")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dossier.yaml")
	content := "search:\n  workers: 3\nresearch:\n  max_iterations: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	defer loader.Close()

	if cfg.Search.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Search.Workers)
	}
	if cfg.Research.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Research.MaxIterations)
	}
	if cfg.Writer.Style == "" {
		t.Error("defaults not applied on load")
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	if _, _, err := LoadConfigFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfigFile accepted a missing path")
	}
}
