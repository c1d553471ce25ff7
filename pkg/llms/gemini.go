package llms

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/kadirpekel/dossier/pkg/config"
)

// GeminiProvider talks to Google Gemini via the official genai SDK.
type GeminiProvider struct {
	cfg    *config.LLMConfig
	client *genai.Client
}

// NewGeminiProvider creates a provider from config.
func NewGeminiProvider(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &GeminiProvider{cfg: cfg, client: client}, nil
}

// ProviderName returns "gemini".
func (p *GeminiProvider) ProviderName() string { return "gemini" }

// ModelName returns the configured model.
func (p *GeminiProvider) ModelName() string { return p.cfg.Model }

// Close releases resources.
func (p *GeminiProvider) Close() error { return nil }

// Generate performs one completion.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer("dossier/llms").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "gemini"),
		attribute.String("llm.model", p.cfg.Model),
	)

	genConfig := &genai.GenerateContentConfig{}
	if req.System != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*req.Temperature))
	} else if p.cfg.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*p.cfg.Temperature))
	}
	if max := req.MaxTokens; max > 0 {
		genConfig.MaxOutputTokens = int32(max)
	} else if p.cfg.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}
	if req.JSON {
		genConfig.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}},
	}

	genResp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, genConfig)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, modelErr("gemini", p.cfg.Model, err)
	}
	if len(genResp.Candidates) == 0 || genResp.Candidates[0].Content == nil {
		return nil, modelErr("gemini", p.cfg.Model, fmt.Errorf("empty response"))
	}

	var text strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}

	resp := &Response{Text: text.String()}
	if genResp.UsageMetadata != nil {
		resp.InputTokens = int(genResp.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(genResp.UsageMetadata.CandidatesTokenCount)
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.InputTokens),
		attribute.Int("llm.tokens.output", resp.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")

	return resp, nil
}
