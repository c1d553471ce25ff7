package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/httpclient"
)

// OllamaProvider talks to a local Ollama server. No API key required.
type OllamaProvider struct {
	cfg  *config.LLMConfig
	http *httpclient.Client
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProvider creates a provider from config.
func NewOllamaProvider(cfg *config.LLMConfig) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		cfg:  cfg,
		http: newLLMHTTPClient(cfg, httpclient.ParseStandardHeaders),
	}, nil
}

// ProviderName returns "ollama".
func (p *OllamaProvider) ProviderName() string { return "ollama" }

// ModelName returns the configured model.
func (p *OllamaProvider) ModelName() string { return p.cfg.Model }

// Close releases resources.
func (p *OllamaProvider) Close() error { return nil }

// Generate performs one completion.
func (p *OllamaProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer("dossier/llms").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "ollama"),
		attribute.String("llm.model", p.cfg.Model),
	)

	body := ollamaRequest{
		Model:  p.cfg.Model,
		Stream: false,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, ollamaMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.Format = "json"
	}

	opts := &ollamaOptions{}
	if req.Temperature != nil {
		opts.Temperature = req.Temperature
	} else if p.cfg.Temperature != nil {
		opts.Temperature = p.cfg.Temperature
	}
	if req.MaxTokens > 0 {
		opts.NumPredict = req.MaxTokens
	} else if p.cfg.MaxTokens > 0 {
		opts.NumPredict = p.cfg.MaxTokens
	}
	body.Options = opts

	resp, err := p.post(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, modelErr("ollama", p.cfg.Model, err)
	}
	if resp.Error != "" {
		apiErr := fmt.Errorf("api error: %s", resp.Error)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, resp.Error)
		return nil, modelErr("ollama", p.cfg.Model, apiErr)
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.PromptEvalCount),
		attribute.Int("llm.tokens.output", resp.EvalCount),
	)
	span.SetStatus(codes.Ok, "")

	return &Response{
		Text:         resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

func (p *OllamaProvider) post(ctx context.Context, body ollamaRequest) (*ollamaResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp ollamaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK && resp.Error == "" {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}
	return &resp, nil
}
