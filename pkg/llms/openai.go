package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/httpclient"
)

// OpenAIProvider talks to the OpenAI chat completions API (or any
// compatible endpoint) over raw HTTP.
type OpenAIProvider struct {
	cfg  *config.LLMConfig
	http *httpclient.Client
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		cfg:  cfg,
		http: newLLMHTTPClient(cfg, httpclient.ParseOpenAIHeaders),
	}, nil
}

func newLLMHTTPClient(cfg *config.LLMConfig, parser httpclient.RateLimitHeaderParser) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(parser),
	)
}

// ProviderName returns "openai".
func (p *OpenAIProvider) ProviderName() string { return "openai" }

// ModelName returns the configured model.
func (p *OpenAIProvider) ModelName() string { return p.cfg.Model }

// Close releases resources.
func (p *OpenAIProvider) Close() error { return nil }

// Generate performs one completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer("dossier/llms").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", p.cfg.Model),
	)

	body := openAIRequest{
		Model:       p.cfg.Model,
		Messages:    buildOpenAIMessages(req),
		Temperature: p.temperature(req),
	}
	if max := p.maxTokens(req); max > 0 {
		body.MaxTokens = &max
	}
	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	resp, err := p.post(ctx, "/chat/completions", body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, modelErr("openai", p.cfg.Model, err)
	}

	if resp.Error != nil {
		apiErr := fmt.Errorf("api error: %s", resp.Error.Message)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, resp.Error.Message)
		return nil, modelErr("openai", p.cfg.Model, apiErr)
	}
	if len(resp.Choices) == 0 {
		return nil, modelErr("openai", p.cfg.Model, fmt.Errorf("no response choices returned"))
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.Usage.PromptTokens),
		attribute.Int("llm.tokens.output", resp.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func buildOpenAIMessages(req Request) []openAIMessage {
	var msgs []openAIMessage
	if req.System != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, openAIMessage{Role: "user", Content: req.Prompt})
	return msgs
}

func (p *OpenAIProvider) temperature(req Request) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	if p.cfg.Temperature != nil {
		return *p.cfg.Temperature
	}
	return 0.7
}

func (p *OpenAIProvider) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return p.cfg.MaxTokens
}

func (p *OpenAIProvider) post(ctx context.Context, path string, body openAIRequest) (*openAIResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	httpResp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp openAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK && resp.Error == nil {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}
	return &resp, nil
}
