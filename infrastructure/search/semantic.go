// Package search implements in-process vector similarity retrieval over
// persisted chunk embeddings.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/search"
)

// SemanticSearcher ranks stored chunks by cosine similarity to a query
// vector. Vectors are loaded from the chunk store and scored in process.
type SemanticSearcher struct {
	chunks document.ChunkStore
	logger *slog.Logger
}

// NewSemanticSearcher creates a new SemanticSearcher.
func NewSemanticSearcher(chunks document.ChunkStore, logger *slog.Logger) SemanticSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return SemanticSearcher{chunks: chunks, logger: logger}
}

// SearchVector returns at most topK chunks whose cosine similarity to
// vector meets threshold, best first. Candidates whose metadata does not
// satisfy filters are excluded before ranking. Ties are broken by document
// ID and chunk index so rankings are stable across runs.
func (s SemanticSearcher) SearchVector(ctx context.Context, vector []float64, knowledgeBaseID string, topK int, threshold float64, filters map[string]string) ([]search.Result, error) {
	if len(vector) == 0 {
		return []search.Result{}, nil
	}
	if topK <= 0 {
		topK = search.DefaultTopK
	}

	candidates, err := s.chunks.ListEmbedded(ctx, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("load candidate chunks: %w", err)
	}

	results := make([]search.Result, 0, len(candidates))
	for _, c := range candidates {
		if !search.MatchesFilters(filters, c.Metadata()) {
			continue
		}
		score := CosineSimilarity(vector, c.Embedding())
		if score < threshold {
			continue
		}
		results = append(results, search.Result{
			ChunkID:     c.ID(),
			DocumentID:  c.DocumentID(),
			ChunkIndex:  c.Index(),
			Content:     c.Content(),
			Score:       score,
			Placeholder: c.Placeholder(),
			Metadata:    c.Metadata(),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors,
// returning 0 for mismatched or zero-magnitude inputs.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
