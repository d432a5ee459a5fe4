package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts and truncates text in model tokens.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter selects the tokenizer for model, falling back to
// cl100k_base for unknown models.
func NewTiktokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *tiktokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:maxTokens])
}

// EstimateCounter approximates four characters per token. It needs no
// tokenizer data and is used when tiktoken cannot be loaded.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

func (EstimateCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxTokens*4 {
		return text
	}
	return string(runes[:maxTokens*4])
}

// NewTokenCounter returns a tiktoken counter for model, or an EstimateCounter
// when the encoding cannot be loaded.
func NewTokenCounter(model string) TokenCounter {
	c, err := NewTiktokenCounter(model)
	if err != nil {
		return EstimateCounter{}
	}
	return c
}
