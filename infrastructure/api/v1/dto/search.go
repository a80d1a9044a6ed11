package dto

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query           string            `json:"query"`
	Type            string            `json:"type,omitempty"`
	KnowledgeBaseID string            `json:"knowledge_base_id,omitempty"`
	TopK            int               `json:"top_k,omitempty"`
	Threshold       float64           `json:"threshold,omitempty"`
	SemanticWeight  float64           `json:"semantic_weight,omitempty"`
	KeywordWeight   float64           `json:"keyword_weight,omitempty"`
	Filters         map[string]string `json:"filters,omitempty"`
}

// SearchResultItem is one retrieval hit.
type SearchResultItem struct {
	ChunkID     string            `json:"chunk_id"`
	DocumentID  string            `json:"document_id"`
	ChunkIndex  int               `json:"chunk_index"`
	Content     string            `json:"content"`
	Score       float64           `json:"score"`
	Placeholder bool              `json:"placeholder,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the body returned by POST /api/v1/search.
type SearchResponse struct {
	Query           string             `json:"query"`
	Type            string             `json:"type"`
	Results         []SearchResultItem `json:"results"`
	TotalResults    int                `json:"total_results"`
	ExecutionTimeMS int64              `json:"execution_time_ms"`
}

// StatisticsResponse is the body returned by GET /api/v1/statistics.
type StatisticsResponse struct {
	Documents         int64 `json:"documents"`
	Chunks            int64 `json:"chunks"`
	PlaceholderChunks int64 `json:"placeholder_chunks"`
	Tokens            int64 `json:"tokens"`
}

// AskRequest is the body of POST /api/v1/ask.
type AskRequest struct {
	Question        string `json:"question"`
	KnowledgeBaseID string `json:"knowledge_base_id,omitempty"`
	TopK            int    `json:"top_k,omitempty"`
}

// AskResponse is the body returned by POST /api/v1/ask.
type AskResponse struct {
	Answer  string             `json:"answer"`
	Sources []SearchResultItem `json:"sources,omitempty"`
	Cached  bool               `json:"cached"`
}

// HealthResponse is the body returned by GET /api/v1/health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Breaker BreakerHealth `json:"generation_breaker"`
}

// BreakerHealth is the generation circuit breaker snapshot in health
// responses.
type BreakerHealth struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
}
