package chunking

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts billing tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

// tiktokenCounter counts tokens with the cl100k_base encoding used by the
// OpenAI embedding models.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
	mu  sync.Mutex
}

// NewTokenCounter returns a TokenCounter backed by the cl100k_base encoding.
// If the encoding cannot be loaded it falls back to a rune-based estimate so
// chunking never depends on the encoder being available.
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return estimateCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

// Count returns the number of tokens in text.
func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// estimateCounter approximates tokens as one per four runes, the usual
// English-text ratio.
type estimateCounter struct{}

// Count returns the estimated token count for text.
func (estimateCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	tokens := (n + 3) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// NewEstimateCounter returns the rune-based estimate counter. Exposed for
// tests that need deterministic counts without loading an encoding.
func NewEstimateCounter() TokenCounter {
	return estimateCounter{}
}
