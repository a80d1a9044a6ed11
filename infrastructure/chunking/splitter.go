// Package chunking provides token-bounded text chunking with overlap for
// RAG indexing.
package chunking

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrBinaryContent indicates the input is not valid text.
var ErrBinaryContent = errors.New("content is not valid UTF-8 text")

// SplitParams configures the splitting algorithm. Budgets are measured in
// tokens using the same tokenizer used for billing.
type SplitParams struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultSplitParams returns sensible defaults for document chunking.
func DefaultSplitParams() SplitParams {
	return SplitParams{
		MaxTokens:     512,
		OverlapTokens: 64,
	}
}

// Piece is one chunk of a split document, in document order.
type Piece struct {
	index      int
	content    string
	tokenCount int
}

// Index returns the zero-based position of the piece in the document.
func (p Piece) Index() int { return p.index }

// Content returns the piece text.
func (p Piece) Content() string { return p.content }

// TokenCount returns the token count of the piece text.
func (p Piece) TokenCount() int { return p.tokenCount }

// Splitter splits raw document text into token-bounded pieces. Splitting is
// deterministic: identical input always yields byte-identical pieces, which
// makes task retries idempotent.
type Splitter struct {
	counter TokenCounter
}

// NewSplitter creates a Splitter using the given token counter.
func NewSplitter(counter TokenCounter) Splitter {
	return Splitter{counter: counter}
}

// Split breaks content into pieces of at most MaxTokens tokens each,
// preserving document order. Adjacent pieces share roughly OverlapTokens
// tokens of trailing context. Empty or whitespace-only content yields zero
// pieces and no error.
//
// The algorithm uses three tiers:
//   - Tier 1: accumulate whole lines until the next line would exceed the budget
//   - Tier 2: for lines exceeding the budget, split on whitespace boundaries
//   - Tier 3: for single words exceeding the budget, split on rune boundaries
func (s Splitter) Split(content string, params SplitParams) ([]Piece, error) {
	if params.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", params.MaxTokens)
	}
	if params.OverlapTokens >= params.MaxTokens {
		return nil, fmt.Errorf("overlap (%d) must be less than max tokens (%d)",
			params.OverlapTokens, params.MaxTokens)
	}
	if !utf8.ValidString(content) {
		return nil, ErrBinaryContent
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var texts []string
	var acc []string
	accTokens := 0

	flush := func() {
		if accTokens == 0 {
			return
		}
		texts = append(texts, strings.Join(acc, ""))
		acc, accTokens = s.overlapLines(acc, params.OverlapTokens)
	}

	for _, line := range splitLines(content) {
		lineTokens := s.counter.Count(line)

		if lineTokens > params.MaxTokens {
			flush()
			acc, accTokens = nil, 0
			for _, seg := range s.splitLongLine(line, params.MaxTokens) {
				texts = append(texts, seg)
			}
			continue
		}

		if accTokens+lineTokens > params.MaxTokens && accTokens > 0 {
			flush()
			// Drop the carried overlap when it would not fit either.
			if accTokens+lineTokens > params.MaxTokens {
				acc, accTokens = nil, 0
			}
		}
		acc = append(acc, line)
		accTokens += lineTokens
	}
	if accTokens > 0 {
		texts = append(texts, strings.Join(acc, ""))
	}

	pieces := make([]Piece, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pieces = append(pieces, Piece{
			index:      len(pieces),
			content:    text,
			tokenCount: s.counter.Count(text),
		})
	}
	return pieces, nil
}

// overlapLines walks backward through lines and returns the trailing lines
// whose total token count fits within the overlap budget.
func (s Splitter) overlapLines(lines []string, overlap int) ([]string, int) {
	if overlap == 0 {
		return nil, 0
	}
	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		tokens := s.counter.Count(lines[i])
		if total+tokens > overlap {
			break
		}
		total += tokens
		start = i
	}
	if start == len(lines) {
		return nil, 0
	}
	carried := make([]string, len(lines)-start)
	copy(carried, lines[start:])
	return carried, total
}

// splitLongLine splits a line exceeding the token budget on whitespace
// boundaries (Tier 2), falling back to rune boundaries for single words that
// alone exceed the budget (Tier 3).
func (s Splitter) splitLongLine(line string, maxTokens int) []string {
	words := splitAfterSpace(line)

	var segments []string
	var acc []string
	accTokens := 0

	for _, word := range words {
		wordTokens := s.counter.Count(word)

		if wordTokens > maxTokens {
			if accTokens > 0 {
				segments = append(segments, strings.Join(acc, ""))
				acc, accTokens = nil, 0
			}
			segments = append(segments, s.splitByRunes(word, maxTokens)...)
			continue
		}

		if accTokens+wordTokens > maxTokens && accTokens > 0 {
			segments = append(segments, strings.Join(acc, ""))
			acc, accTokens = nil, 0
		}
		acc = append(acc, word)
		accTokens += wordTokens
	}
	if accTokens > 0 {
		segments = append(segments, strings.Join(acc, ""))
	}
	return segments
}

// splitByRunes splits a single oversized word on rune boundaries. The initial
// segment length assumes the common multi-rune-per-token case and is halved
// until the counted tokens fit the budget, so the bound holds even for
// pathological inputs where one rune encodes to several tokens.
func (s Splitter) splitByRunes(word string, maxTokens int) []string {
	runes := []rune(word)
	var segments []string

	for len(runes) > 0 {
		take := maxTokens * 3
		if take > len(runes) {
			take = len(runes)
		}
		for take > 1 && s.counter.Count(string(runes[:take])) > maxTokens {
			take /= 2
		}
		segments = append(segments, string(runes[:take]))
		runes = runes[take:]
	}
	return segments
}

// splitLines splits content into lines, preserving the trailing \n on each
// line. The last segment is included even if it doesn't end with \n.
func splitLines(content string) []string {
	var lines []string
	for len(content) > 0 {
		idx := strings.IndexByte(content, '\n')
		if idx < 0 {
			lines = append(lines, content)
			break
		}
		lines = append(lines, content[:idx+1])
		content = content[idx+1:]
	}
	return lines
}

// splitAfterSpace splits text into words, each keeping its trailing
// whitespace, so that rejoining the words reproduces the input exactly.
func splitAfterSpace(text string) []string {
	var words []string
	start := 0
	inSpace := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
		} else if inSpace {
			words = append(words, text[start:i])
			start = i
			inSpace = false
		}
	}
	if start < len(text) {
		words = append(words, text[start:])
	}
	return words
}
