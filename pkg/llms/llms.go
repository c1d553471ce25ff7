// Package llms provides the text-completion backends the pipeline
// synthesizes with: OpenAI, Anthropic, Gemini, and Ollama behind one
// Provider interface with token-usage reporting. The pipeline treats
// the backend as optional; callers must be prepared for a nil provider
// and fall back deterministically.
package llms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/dossier/pkg/utils"
)

// Request is a single completion request.
type Request struct {
	// System is the system instruction, optional.
	System string

	// Prompt is the user message.
	Prompt string

	// Temperature overrides the configured sampling temperature.
	Temperature *float64

	// MaxTokens overrides the configured response cap.
	MaxTokens int

	// JSON asks the backend for a single JSON object response.
	JSON bool
}

// Response is a completion with its token accounting.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is an opaque text-completion service.
type Provider interface {
	// ProviderName identifies the backend type (openai, anthropic, ...).
	ProviderName() string

	// ModelName identifies the configured model.
	ModelName() string

	// Generate performs one completion. Failures are returned as
	// *ModelError so callers can discriminate with errors.As.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Close releases backend resources.
	Close() error
}

// ModelError reports a failed or malformed LLM call.
type ModelError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("llm %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// modelErr wraps err for the given provider. Context errors pass
// through unwrapped so cancellation and deadline stay discriminable
// with errors.Is.
func modelErr(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var me *ModelError
	if errors.As(err, &me) {
		return err
	}
	return &ModelError{Provider: provider, Model: model, Err: err}
}

// UsageFunc receives token accounting after each completed call.
type UsageFunc func(provider, model string, inputTokens, outputTokens int, wall time.Duration)

// WithUsage decorates a provider so every successful Generate reports
// its usage. Sessions attach their event bus this way without the
// providers knowing about it. Backends that omit usage in their
// responses get counted locally instead.
func WithUsage(p Provider, fn UsageFunc) Provider {
	if p == nil || fn == nil {
		return p
	}
	counter, _ := utils.NewCounter(p.ModelName())
	return &usageProvider{Provider: p, fn: fn, counter: counter}
}

type usageProvider struct {
	Provider
	fn      UsageFunc
	counter *utils.Counter
}

func (u *usageProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := u.Provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	in, out := resp.InputTokens, resp.OutputTokens
	if in == 0 && out == 0 {
		in = u.counter.Count(req.System) + u.counter.Count(req.Prompt)
		out = u.counter.Count(resp.Text)
	}
	u.fn(u.ProviderName(), u.ModelName(), in, out, time.Since(start))
	return resp, nil
}

// ExtractJSON pulls the first JSON value out of model output, tolerating
// markdown code fences and prose around the object.
func ExtractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON value in model output")
	}

	candidate := trimmed[start:]
	decoder := json.NewDecoder(strings.NewReader(candidate))
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		return "", fmt.Errorf("malformed JSON in model output: %w", err)
	}
	return string(raw), nil
}

// DecodeJSON extracts and unmarshals a JSON value from model output.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}
