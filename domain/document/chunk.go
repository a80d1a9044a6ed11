// Package document provides the chunk domain types and the interfaces the
// embedding pipeline depends on.
package document

import (
	"maps"
	"time"
)

// Chunk is one embedded slice of a document. Chunks carry their position in
// the source document and the vector produced for them.
type Chunk struct {
	id              string
	documentID      string
	knowledgeBaseID string
	index           int
	content         string
	tokenCount      int
	embedding       []float64
	placeholder     bool
	metadata        map[string]string
	createdAt       time.Time
}

// NewChunk creates a chunk for the given document position.
func NewChunk(id, documentID, knowledgeBaseID string, index int, content string, tokenCount int) Chunk {
	return Chunk{
		id:              id,
		documentID:      documentID,
		knowledgeBaseID: knowledgeBaseID,
		index:           index,
		content:         content,
		tokenCount:      tokenCount,
		createdAt:       time.Now().UTC(),
	}
}

// NewChunkFull creates a chunk with all fields populated (used by the store).
func NewChunkFull(
	id, documentID, knowledgeBaseID string,
	index int,
	content string,
	tokenCount int,
	embedding []float64,
	placeholder bool,
	metadata map[string]string,
	createdAt time.Time,
) Chunk {
	return Chunk{
		id:              id,
		documentID:      documentID,
		knowledgeBaseID: knowledgeBaseID,
		index:           index,
		content:         content,
		tokenCount:      tokenCount,
		embedding:       copyVector(embedding),
		placeholder:     placeholder,
		metadata:        copyMetadata(metadata),
		createdAt:       createdAt,
	}
}

// ID returns the chunk ID.
func (c Chunk) ID() string { return c.id }

// DocumentID returns the source document ID.
func (c Chunk) DocumentID() string { return c.documentID }

// KnowledgeBaseID returns the owning knowledge base ID.
func (c Chunk) KnowledgeBaseID() string { return c.knowledgeBaseID }

// Index returns the zero-based chunk position within the document.
func (c Chunk) Index() int { return c.index }

// Content returns the chunk text.
func (c Chunk) Content() string { return c.content }

// TokenCount returns the token count of the chunk text.
func (c Chunk) TokenCount() int { return c.tokenCount }

// Embedding returns a copy of the chunk's vector, or nil if not yet embedded.
func (c Chunk) Embedding() []float64 { return copyVector(c.embedding) }

// Placeholder reports whether the vector is a deterministic placeholder
// rather than a provider embedding.
func (c Chunk) Placeholder() bool { return c.placeholder }

// Metadata returns a copy of the pass-through metadata.
func (c Chunk) Metadata() map[string]string { return copyMetadata(c.metadata) }

// CreatedAt returns when the chunk was created.
func (c Chunk) CreatedAt() time.Time { return c.createdAt }

// WithEmbedding returns a copy carrying the given vector.
func (c Chunk) WithEmbedding(vector []float64, placeholder bool) Chunk {
	c.embedding = copyVector(vector)
	c.placeholder = placeholder
	return c
}

// WithMetadata returns a copy carrying the given metadata.
func (c Chunk) WithMetadata(metadata map[string]string) Chunk {
	c.metadata = copyMetadata(metadata)
	return c
}

func copyVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	result := make([]float64, len(v))
	copy(result, v)
	return result
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	maps.Copy(result, m)
	return result
}
