package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/search"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
	"github.com/vectorhaus/kbvec/internal/config"
)

// Generator produces a completion from chat messages. Implemented by the
// circuit-breaker-wrapped generation client.
type Generator interface {
	Generate(ctx context.Context, req provider.GenerationRequest) (provider.GenerationResponse, error)
}

// AskRequest is one retrieval-augmented question.
type AskRequest struct {
	Question        string
	KnowledgeBaseID string
	TopK            int
}

// AskResponse carries the generated answer, the chunks it was grounded on,
// and whether the semantic cache served it.
type AskResponse struct {
	Answer  string
	Sources []search.Result
	Cached  bool
}

// Answer serves retrieval-augmented questions with a semantic response
// cache in front of the generation client. Queries whose embedding lands
// close enough to a previously answered one reuse the stored response
// without a generation call.
type Answer struct {
	search    *Search
	generator Generator
	cache     document.CacheStore
	enabled   bool
	threshold float64
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnswer creates a new Answer service. cache may be nil to disable
// response caching.
func NewAnswer(searchSvc *Search, generator Generator, cache document.CacheStore, cfg config.CacheConfig, logger *slog.Logger) *Answer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answer{
		search:    searchSvc,
		generator: generator,
		cache:     cache,
		enabled:   cfg.Enabled() && cache != nil,
		threshold: cfg.Threshold(),
		ttl:       cfg.TTL(),
		logger:    logger,
		now:       time.Now,
	}
}

// Ask answers the question from the knowledge base. The semantic cache is
// consulted first; a miss retrieves the best chunks and generates a fresh
// answer, which is stored for future near-duplicate questions.
func (s *Answer) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return AskResponse{}, provider.NewError(provider.KindValidation, "answer", "question is required", nil)
	}

	vector, err := s.search.EmbedQuery(ctx, req.Question)
	if err != nil {
		return AskResponse{}, err
	}

	if s.enabled {
		entry, hit, err := s.cache.Lookup(ctx, vector, s.threshold, s.now().UTC())
		if err != nil {
			s.logger.Warn("cache lookup failed", slog.String("error", err.Error()))
		} else if hit {
			s.logger.Debug("semantic cache hit",
				slog.String("cached_query", entry.Query),
				slog.Int64("hit_count", entry.HitCount),
			)
			return AskResponse{Answer: entry.Response, Cached: true}, nil
		}
	}

	sources, err := s.search.semantic.SearchVector(ctx, vector, req.KnowledgeBaseID, req.TopK, 0, nil)
	if err != nil {
		return AskResponse{}, err
	}

	answer, err := s.generate(ctx, req.Question, sources)
	if err != nil {
		return AskResponse{}, err
	}

	if s.enabled {
		now := s.now().UTC()
		entry := document.CacheEntry{
			ID:             uuid.NewString(),
			Query:          req.Question,
			Embedding:      vector,
			Response:       answer,
			CreatedAt:      now,
			LastAccessedAt: now,
			ExpiresAt:      now.Add(s.ttl),
		}
		if err := s.cache.Put(ctx, entry); err != nil {
			s.logger.Warn("cache store failed", slog.String("error", err.Error()))
		}
	}

	return AskResponse{Answer: answer, Sources: sources}, nil
}

func (s *Answer) generate(ctx context.Context, question string, sources []search.Result) (string, error) {
	var sb strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, src.Content)
	}

	messages := []provider.Message{
		{Role: "system", Content: "Answer using only the provided context passages. Say so when the context does not contain the answer."},
		{Role: "user", Content: fmt.Sprintf("Context:\n%sQuestion: %s", sb.String(), question)},
	}

	resp, err := s.generator.Generate(ctx, provider.GenerationRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
