package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/httpclient"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider talks to the Anthropic messages API over raw HTTP.
type AnthropicProvider struct {
	cfg  *config.LLMConfig
	http *httpclient.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicProvider creates a provider from config.
func NewAnthropicProvider(cfg *config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{
		cfg:  cfg,
		http: newLLMHTTPClient(cfg, httpclient.ParseAnthropicHeaders),
	}, nil
}

// ProviderName returns "anthropic".
func (p *AnthropicProvider) ProviderName() string { return "anthropic" }

// ModelName returns the configured model.
func (p *AnthropicProvider) ModelName() string { return p.cfg.Model }

// Close releases resources.
func (p *AnthropicProvider) Close() error { return nil }

// Generate performs one completion. JSON mode is emulated with a
// system instruction plus an assistant prefill of "{"; the API has no
// response_format switch.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer("dossier/llms").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "anthropic"),
		attribute.String("llm.model", p.cfg.Model),
	)

	body := anthropicRequest{
		Model:     p.cfg.Model,
		MaxTokens: p.cfg.MaxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		body.Temperature = req.Temperature
	} else if p.cfg.Temperature != nil {
		body.Temperature = p.cfg.Temperature
	}
	if req.JSON {
		if body.System != "" {
			body.System += "\n\n"
		}
		body.System += "Respond with a single valid JSON value and nothing else."
		body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: "{"})
	}

	resp, err := p.post(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, modelErr("anthropic", p.cfg.Model, err)
	}
	if resp.Error != nil {
		apiErr := fmt.Errorf("api error: %s", resp.Error.Message)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, resp.Error.Message)
		return nil, modelErr("anthropic", p.cfg.Model, apiErr)
	}

	var text strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			text.WriteString(part.Text)
		}
	}
	out := text.String()
	if req.JSON && !strings.HasPrefix(strings.TrimSpace(out), "{") {
		// Re-attach the prefilled opening brace.
		out = "{" + out
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.Usage.InputTokens),
		attribute.Int("llm.tokens.output", resp.Usage.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")

	return &Response{
		Text:         out,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func (p *AnthropicProvider) post(ctx context.Context, body anthropicRequest) (*anthropicResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK && resp.Error == nil {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}
	return &resp, nil
}
