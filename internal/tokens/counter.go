// Package tokens provides token counting and truncation for prompt assembly.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts and truncates text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// ForModel returns a tiktoken counter using the model's encoding, falling
// back to the character estimator when the encoding cannot be loaded.
func ForModel(model string) Counter {
	codec, err := codecFor(modelToEncoding(model))
	if err != nil {
		return NewEstimator()
	}
	return &TiktokenCounter{codec: codec}
}

// TiktokenCounter provides exact counts for OpenAI-family encodings.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return NewEstimator().Count(text)
	}
	return len(ids)
}

// Truncate keeps at most maxTokens tokens of text, appending an ellipsis
// when something was cut.
func (c *TiktokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return NewEstimator().Truncate(text, maxTokens)
	}
	if len(ids) <= maxTokens {
		return text
	}
	out, err := c.codec.Decode(ids[:maxTokens])
	if err != nil {
		return NewEstimator().Truncate(text, maxTokens)
	}
	return strings.TrimSpace(strings.ToValidUTF8(out, "")) + "…"
}

// Estimator provides token count estimation based on character counts.
// This is a fallback when no tokenizer is available.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// Count estimates the token count.
func (e *Estimator) Count(text string) int {
	runes := len([]rune(text))
	if runes == 0 {
		return 0
	}
	n := int(float64(runes)/e.CharsPerToken + 0.999)
	if n < 1 {
		n = 1
	}
	return n
}

// Truncate cuts text to roughly maxTokens tokens, preferring a word
// boundary.
func (e *Estimator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := int(float64(maxTokens) * e.CharsPerToken)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, " \t\n"); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

var (
	codecMu    sync.Mutex
	codecCache = make(map[tokenizer.Encoding]tokenizer.Codec)
)

// codecFor returns a cached codec for an encoding.
func codecFor(encoding tokenizer.Encoding) (tokenizer.Codec, error) {
	codecMu.Lock()
	defer codecMu.Unlock()

	if cached, ok := codecCache[encoding]; ok {
		return cached, nil
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}
	codecCache[encoding] = codec
	return codec, nil
}

// modelToEncoding maps model names to encoding names.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O1, O3, O4-mini and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		// Non-OpenAI models have no public tokenizer; cl100k is a close
		// enough proxy for budgeting.
		return tokenizer.Cl100kBase
	}
}
