// Package search defines the retrieval query model shared by the semantic,
// keyword, and hybrid search paths.
package search

import (
	"context"
	"maps"
)

// Type selects the retrieval strategy.
type Type string

// Search types.
const (
	TypeSemantic Type = "semantic"
	TypeKeyword  Type = "keyword"
	TypeHybrid   Type = "hybrid"
)

// Valid returns true for a known search type.
func (t Type) Valid() bool {
	switch t {
	case TypeSemantic, TypeKeyword, TypeHybrid:
		return true
	}
	return false
}

// DefaultTopK is the result count used when a query does not set one.
const DefaultTopK = 10

// Default hybrid combination weights.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// Query describes one retrieval request.
type Query struct {
	Text            string
	Type            Type
	KnowledgeBaseID string
	TopK            int
	Threshold       float64
	SemanticWeight  float64
	KeywordWeight   float64
	Filters         map[string]string
}

// MatchesFilters reports whether metadata satisfies every filter pair. An
// empty filter set matches everything.
func MatchesFilters(filters, metadata map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// FilterResults returns the results whose metadata satisfies filters,
// preserving order.
func FilterResults(filters map[string]string, results []Result) []Result {
	if len(filters) == 0 {
		return results
	}
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if MatchesFilters(filters, r.Metadata) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Defaults carries deployment-level fallbacks for query fields the caller
// left unset. Zero-valued fields are ignored.
type Defaults struct {
	TopK      int
	Threshold float64
}

// NormalizedWith applies the deployment defaults and then the package
// defaults. A query that sets its own TopK or Threshold wins over d; a
// negative Threshold disables score filtering even when a default is set.
func (q Query) NormalizedWith(d Defaults) Query {
	if q.TopK <= 0 && d.TopK > 0 {
		q.TopK = d.TopK
	}
	if q.Threshold == 0 && d.Threshold > 0 {
		q.Threshold = d.Threshold
	}
	return q.Normalized()
}

// Normalized returns a copy with defaults applied to unset fields.
func (q Query) Normalized() Query {
	if !q.Type.Valid() {
		q.Type = TypeSemantic
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.SemanticWeight == 0 && q.KeywordWeight == 0 {
		q.SemanticWeight = DefaultSemanticWeight
		q.KeywordWeight = DefaultKeywordWeight
	}
	return q
}

// Result is one retrieval hit.
type Result struct {
	ChunkID     string
	DocumentID  string
	ChunkIndex  int
	Content     string
	Score       float64
	Placeholder bool
	Metadata    map[string]string
}

// WithMetadata returns a copy carrying the given metadata.
func (r Result) WithMetadata(metadata map[string]string) Result {
	if metadata == nil {
		r.Metadata = nil
		return r
	}
	m := make(map[string]string, len(metadata))
	maps.Copy(m, metadata)
	r.Metadata = m
	return r
}

// Embedder turns text into vectors.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// KeywordSearcher retrieves chunks by lexical match.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, query string, knowledgeBaseID string, topK int) ([]Result, error)
}
