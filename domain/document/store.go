package document

import (
	"context"
	"time"
)

// DocumentStatus is the indexing state recorded against a source document.
type DocumentStatus string

// Document status values.
const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// ChunkStore persists embedded chunks.
type ChunkStore interface {
	// ReplaceDocument atomically removes any existing chunks for the
	// document and inserts the given set.
	ReplaceDocument(ctx context.Context, documentID string, chunks []Chunk) error
	// FindByDocument returns the document's chunks ordered by index.
	FindByDocument(ctx context.Context, documentID string) ([]Chunk, error)
	// DeleteDocuments removes all chunks for the given documents and
	// returns the number of chunks removed.
	DeleteDocuments(ctx context.Context, documentIDs []string) (int64, error)
	// ListEmbedded returns all chunks with a vector in the knowledge base.
	// An empty knowledgeBaseID means all knowledge bases.
	ListEmbedded(ctx context.Context, knowledgeBaseID string) ([]Chunk, error)
	// Statistics returns aggregate counts for the knowledge base. An empty
	// knowledgeBaseID means all knowledge bases.
	Statistics(ctx context.Context, knowledgeBaseID string) (Statistics, error)
}

// Statistics summarizes the indexed corpus.
type Statistics struct {
	Documents         int64
	Chunks            int64
	PlaceholderChunks int64
	Tokens            int64
}

// StatusSink receives document indexing status updates as the pipeline
// progresses. Implementations forward them to the system of record that owns
// document rows.
type StatusSink interface {
	UpdateStatus(ctx context.Context, documentID string, status DocumentStatus, chunkCount int, errorMessage string) error
}

// CredentialResolver resolves a provider API credential for a knowledge
// base's owner. Returning an empty credential means none is configured and
// the pipeline falls back to placeholder vectors.
type CredentialResolver interface {
	Resolve(ctx context.Context, knowledgeBaseID string) (string, error)
}

// CacheEntry is one semantic-cache row: a past query, its embedding, and the
// response served for it.
type CacheEntry struct {
	ID             string
	Query          string
	Embedding      []float64
	Response       string
	HitCount       int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time
}

// CacheStore persists semantic cache entries.
type CacheStore interface {
	// Put stores a response under the query and its embedding.
	Put(ctx context.Context, entry CacheEntry) error
	// Lookup returns the best non-expired entry whose embedding's cosine
	// similarity to vector meets threshold, recording the hit.
	Lookup(ctx context.Context, vector []float64, threshold float64, now time.Time) (CacheEntry, bool, error)
	// PurgeExpired removes expired entries and returns the number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
