package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vectorhaus/kbvec/application/service"
	"github.com/vectorhaus/kbvec/domain/search"
	"github.com/vectorhaus/kbvec/infrastructure/api/middleware"
	"github.com/vectorhaus/kbvec/infrastructure/api/v1/dto"
)

// SearchRouter handles retrieval endpoints.
type SearchRouter struct {
	search *service.Search
	answer *service.Answer
	logger *slog.Logger
}

// NewSearchRouter creates a new SearchRouter. answer may be nil when no
// generation provider is configured; POST /ask then returns 404.
func NewSearchRouter(searchSvc *service.Search, answer *service.Answer, logger *slog.Logger) *SearchRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchRouter{
		search: searchSvc,
		answer: answer,
		logger: logger,
	}
}

// Routes returns the chi router for search endpoints.
func (r *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Search)
	if r.answer != nil {
		router.Post("/ask", r.Ask)
	}

	return router
}

// Search handles POST /api/v1/search.
func (r *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.SearchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, badJSON(err), r.logger)
		return
	}

	result, err := r.search.Search(ctx, search.Query{
		Text:            body.Query,
		Type:            search.Type(body.Type),
		KnowledgeBaseID: body.KnowledgeBaseID,
		TopK:            body.TopK,
		Threshold:       body.Threshold,
		SemanticWeight:  body.SemanticWeight,
		KeywordWeight:   body.KeywordWeight,
		Filters:         body.Filters,
	})
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.SearchResponse{
		Query:           result.Query,
		Type:            string(result.Type),
		Results:         resultsToDTO(result.Results),
		TotalResults:    result.TotalResults,
		ExecutionTimeMS: result.ExecutionTimeMS,
	})
}

// Ask handles POST /api/v1/search/ask: retrieval-augmented answering with
// the semantic response cache.
func (r *SearchRouter) Ask(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.AskRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, badJSON(err), r.logger)
		return
	}

	resp, err := r.answer.Ask(ctx, service.AskRequest{
		Question:        body.Question,
		KnowledgeBaseID: body.KnowledgeBaseID,
		TopK:            body.TopK,
	})
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.AskResponse{
		Answer:  resp.Answer,
		Sources: resultsToDTO(resp.Sources),
		Cached:  resp.Cached,
	})
}

func resultsToDTO(results []search.Result) []dto.SearchResultItem {
	items := make([]dto.SearchResultItem, len(results))
	for i, res := range results {
		items[i] = dto.SearchResultItem{
			ChunkID:     res.ChunkID,
			DocumentID:  res.DocumentID,
			ChunkIndex:  res.ChunkIndex,
			Content:     res.Content,
			Score:       res.Score,
			Placeholder: res.Placeholder,
			Metadata:    res.Metadata,
		}
	}
	return items
}
