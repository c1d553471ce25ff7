package llms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"
)

type stubProvider struct {
	resp *Response
	err  error
}

func (s *stubProvider) ProviderName() string { return "stub" }
func (s *stubProvider) ModelName() string    { return "gpt-4o-mini" }
func (s *stubProvider) Close() error         { return nil }
func (s *stubProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return s.resp, s.err
}

func TestOpenAIGenerate(t *testing.T) {
	var gotAuth string
	var gotBody openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Role: "assistant", Content: "the answer"}}},
			Usage:   openAIUsage{PromptTokens: 12, CompletionTokens: 5},
		})
	}))
	defer server.Close()

	cfg := &config.LLMConfig{Provider: config.LLMProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: server.URL}
	cfg.SetDefaults()

	provider, err := NewOpenAIProvider(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	resp, err := provider.Generate(context.Background(), Request{System: "be terse", Prompt: "what?", JSON: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.Text != "the answer" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 5 {
		t.Errorf("usage = %d/%d, want 12/5", resp.InputTokens, resp.OutputTokens)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system then user", gotBody.Messages)
	}
	if gotBody.ResponseFormat == nil || gotBody.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", gotBody.ResponseFormat)
	}
}

func TestOpenAIGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(openAIResponse{Error: &openAIError{Message: "model not found", Type: "invalid_request_error"}})
	}))
	defer server.Close()

	cfg := &config.LLMConfig{Provider: config.LLMProviderOpenAI, Model: "nope", APIKey: "sk-test", BaseURL: server.URL}
	cfg.SetDefaults()

	provider, err := NewOpenAIProvider(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	_, err = provider.Generate(context.Background(), Request{Prompt: "what?"})
	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatalf("Generate error = %v, want *ModelError", err)
	}
	if me.Provider != "openai" {
		t.Errorf("ModelError.Provider = %q", me.Provider)
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(&config.LLMConfig{Provider: config.LLMProviderOpenAI}); err == nil {
		t.Error("NewOpenAIProvider accepted an empty API key")
	}
}

func TestWithUsageReportsBackendCounts(t *testing.T) {
	stub := &stubProvider{resp: &Response{Text: "ok", InputTokens: 40, OutputTokens: 9}}

	var gotIn, gotOut int
	wrapped := WithUsage(stub, func(provider, model string, in, out int, wall time.Duration) {
		gotIn, gotOut = in, out
	})

	if _, err := wrapped.Generate(context.Background(), Request{Prompt: "hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotIn != 40 || gotOut != 9 {
		t.Errorf("reported usage = %d/%d, want 40/9", gotIn, gotOut)
	}
}

func TestWithUsageCountsLocallyWhenBackendOmitsUsage(t *testing.T) {
	stub := &stubProvider{resp: &Response{Text: "a generated answer with several words in it"}}

	var gotIn, gotOut int
	wrapped := WithUsage(stub, func(provider, model string, in, out int, wall time.Duration) {
		gotIn, gotOut = in, out
	})

	if _, err := wrapped.Generate(context.Background(), Request{System: "be terse", Prompt: "what is the question"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotIn == 0 {
		t.Error("input tokens not counted locally")
	}
	if gotOut == 0 {
		t.Error("output tokens not counted locally")
	}
}

func TestWithUsageNilSafe(t *testing.T) {
	if WithUsage(nil, nil) != nil {
		t.Error("WithUsage(nil, nil) should stay nil")
	}
	stub := &stubProvider{resp: &Response{Text: "ok"}}
	if got := WithUsage(stub, nil); got != Provider(stub) {
		t.Error("WithUsage with nil callback should return the provider unchanged")
	}
}

func TestModelErrPassesThroughContextErrors(t *testing.T) {
	if err := modelErr("openai", "m", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("modelErr wrapped context.Canceled into %v", err)
	}
	var me *ModelError
	if err := modelErr("openai", "m", context.Canceled); errors.As(err, &me) {
		t.Error("context cancellation should not become a ModelError")
	}
}

func TestNewFromConfigUnconfigured(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := &config.LLMConfig{Provider: config.LLMProviderOpenAI}
	provider, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if provider != nil {
		t.Error("NewFromConfig returned a provider without an API key")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", `Here you go: {"a":1} hope that helps`, `{"a":1}`, false},
		{"array", `[1,2,3]`, `[1,2,3]`, false},
		{"no json", "sorry, I can't", "", true},
		{"malformed", `{"a":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ExtractJSON(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Queries []string `json:"queries"`
	}
	err := DecodeJSON("```json\n{\"queries\":[\"a\",\"b\"]}\n```", &out)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(out.Queries) != 2 {
		t.Errorf("queries = %v", out.Queries)
	}
}
