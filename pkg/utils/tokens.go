// Package utils provides token accounting shared by the LLM layer and
// the prompt builders: accurate counts via tiktoken encodings with a
// chars/4 estimate as the last resort.
package utils

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens with the encoding of one model. A nil Counter
// is usable; every method falls back to Estimate.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Encodings are expensive to build, so they are cached per model.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.Mutex
)

// NewCounter creates a counter for the given model. Models tiktoken
// does not know (anthropic, gemini, local ollama models) get the
// cl100k_base encoding, which tracks their tokenizers closely enough
// for budgeting.
func NewCounter(model string) (*Counter, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := encodingCache[model]; ok {
		return &Counter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	encodingCache[model] = encoding
	return &Counter{encoding: encoding, model: model}, nil
}

// Model returns the model this counter was built for.
func (c *Counter) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return Estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// TrimToBudget returns text cut down to at most maxTokens tokens. The
// cut lands on a token boundary, not mid-rune.
func (c *Counter) TrimToBudget(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if c == nil || c.encoding == nil {
		if Estimate(text) <= maxTokens {
			return text
		}
		runes := []rune(text)
		if len(runes) > maxTokens*4 {
			runes = runes[:maxTokens*4]
		}
		return string(runes)
	}

	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens])
}

// Estimate is the rough chars/4 heuristic for when no encoding is
// available.
func Estimate(text string) int {
	return len(text) / 4
}
