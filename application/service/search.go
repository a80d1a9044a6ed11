package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/search"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
	infrasearch "github.com/vectorhaus/kbvec/infrastructure/search"
)

// SearchResponse is the outcome of one retrieval request.
type SearchResponse struct {
	Query           string
	Type            search.Type
	Results         []search.Result
	TotalResults    int
	ExecutionTimeMS int64
}

// Search answers retrieval requests over the embedded corpus. Semantic and
// hybrid queries embed the query text with the same provider the pipeline
// uses, so query and corpus vectors share a space.
type Search struct {
	embedder search.Embedder
	semantic infrasearch.SemanticSearcher
	keyword  search.KeywordSearcher
	fusion   search.Fusion
	chunks   document.ChunkStore
	defaults search.Defaults
	logger   *slog.Logger
	now      func() time.Time
}

// NewSearch creates a new search service. keyword may be nil when no
// lexical index is available; keyword and hybrid queries then fail with a
// validation error.
func NewSearch(
	embedder search.Embedder,
	semantic infrasearch.SemanticSearcher,
	keyword search.KeywordSearcher,
	fusion search.Fusion,
	chunks document.ChunkStore,
	logger *slog.Logger,
) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	return &Search{
		embedder: embedder,
		semantic: semantic,
		keyword:  keyword,
		fusion:   fusion,
		chunks:   chunks,
		logger:   logger,
		now:      time.Now,
	}
}

// WithDefaults sets deployment-level fallbacks applied to queries that do
// not set their own result limit or score threshold.
func (s *Search) WithDefaults(d search.Defaults) *Search {
	s.defaults = d
	return s
}

// Search runs the query with its requested strategy. Storage and provider
// failures surface as errors; an empty result list with no error is a valid
// miss.
func (s *Search) Search(ctx context.Context, query search.Query) (SearchResponse, error) {
	if strings.TrimSpace(query.Text) == "" {
		return SearchResponse{}, provider.NewError(provider.KindValidation, "search", "query text is required", nil)
	}
	query = query.NormalizedWith(s.defaults)

	start := s.now()
	var (
		results []search.Result
		err     error
	)
	switch query.Type {
	case search.TypeSemantic:
		results, err = s.searchSemantic(ctx, query)
	case search.TypeKeyword:
		results, err = s.searchKeyword(ctx, query)
	case search.TypeHybrid:
		results, err = s.searchHybrid(ctx, query)
	default:
		return SearchResponse{}, provider.NewError(provider.KindValidation, "search",
			fmt.Sprintf("unknown search type %q", query.Type), nil)
	}
	if err != nil {
		return SearchResponse{}, err
	}

	elapsed := s.now().Sub(start)
	s.logger.Debug("search executed",
		slog.String("type", string(query.Type)),
		slog.Int("results", len(results)),
		slog.Duration("duration", elapsed),
	)

	if results == nil {
		results = []search.Result{}
	}
	return SearchResponse{
		Query:           query.Text,
		Type:            query.Type,
		Results:         results,
		TotalResults:    len(results),
		ExecutionTimeMS: elapsed.Milliseconds(),
	}, nil
}

// EmbedQuery returns the provider vector for a query string.
func (s *Search) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, provider.NewError(provider.KindInternal, "search.embed", "provider returned no query vector", nil)
	}
	return vectors[0], nil
}

// Statistics reports aggregate corpus counts, optionally scoped to one
// knowledge base.
func (s *Search) Statistics(ctx context.Context, knowledgeBaseID string) (document.Statistics, error) {
	return s.chunks.Statistics(ctx, knowledgeBaseID)
}

func (s *Search) searchSemantic(ctx context.Context, query search.Query) ([]search.Result, error) {
	vector, err := s.EmbedQuery(ctx, query.Text)
	if err != nil {
		return nil, err
	}
	return s.semantic.SearchVector(ctx, vector, query.KnowledgeBaseID, query.TopK, query.Threshold, query.Filters)
}

func (s *Search) searchKeyword(ctx context.Context, query search.Query) ([]search.Result, error) {
	if s.keyword == nil {
		return nil, provider.NewError(provider.KindValidation, "search", "keyword search is not available", nil)
	}

	// The FTS index cannot match on chunk metadata, so fetch a wider
	// candidate set and filter afterwards when filters are present.
	fetchK := query.TopK
	if len(query.Filters) > 0 {
		fetchK = query.TopK * 4
	}
	results, err := s.keyword.SearchKeyword(ctx, query.Text, query.KnowledgeBaseID, fetchK)
	if err != nil {
		return nil, err
	}
	results = search.FilterResults(query.Filters, results)
	if len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

// searchHybrid combines both strategies with weighted scores. The combined
// score is not a probability; the weights are applied as configured without
// normalizing their sum.
func (s *Search) searchHybrid(ctx context.Context, query search.Query) ([]search.Result, error) {
	// Pull a wider candidate set from each side before fusing down to TopK.
	candidateK := query.TopK * 2

	wide := query
	wide.TopK = candidateK
	semantic, err := s.searchSemantic(ctx, wide)
	if err != nil {
		return nil, err
	}

	keyword, err := s.searchKeyword(ctx, wide)
	if err != nil {
		return nil, err
	}

	fusion := s.fusion
	if query.SemanticWeight > 0 || query.KeywordWeight > 0 {
		fusion = search.NewFusionWithWeights(query.SemanticWeight, query.KeywordWeight)
	}
	return fusion.FuseTopK(query.TopK, semantic, keyword), nil
}
