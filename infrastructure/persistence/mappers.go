package persistence

import (
	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/task"
)

// TaskMapper converts between task.Task and TaskModel.
type TaskMapper struct{}

// ToDomain converts a TaskModel to a task.Task.
func (TaskMapper) ToDomain(m TaskModel) task.Task {
	return task.NewFull(
		m.ID, m.DocumentID, m.KnowledgeBaseID, m.Content,
		m.Metadata,
		task.Priority(m.Priority),
		task.Status(m.Status),
		m.ProcessedChunks, m.TotalChunks, m.RetryCount,
		m.ErrorMessage,
		m.Placeholder,
		m.CreatedAt, m.AvailableAt,
		m.StartedAt, m.CompletedAt,
	)
}

// ToModel converts a task.Task to a TaskModel.
func (TaskMapper) ToModel(t task.Task) TaskModel {
	return TaskModel{
		ID:              t.ID(),
		DocumentID:      t.DocumentID(),
		KnowledgeBaseID: t.KnowledgeBaseID(),
		Content:         t.Content(),
		Metadata:        t.Metadata(),
		Priority:        int(t.Priority()),
		Status:          string(t.Status()),
		ProcessedChunks: t.ProcessedChunks(),
		TotalChunks:     t.TotalChunks(),
		RetryCount:      t.RetryCount(),
		ErrorMessage:    t.ErrorMessage(),
		Placeholder:     t.Placeholder(),
		CreatedAt:       t.CreatedAt(),
		AvailableAt:     t.AvailableAt(),
		StartedAt:       t.StartedAt(),
		CompletedAt:     t.CompletedAt(),
	}
}

// ChunkMapper converts between document.Chunk and ChunkModel.
type ChunkMapper struct{}

// ToDomain converts a ChunkModel to a document.Chunk.
func (ChunkMapper) ToDomain(m ChunkModel) document.Chunk {
	return document.NewChunkFull(
		m.ID, m.DocumentID, m.KnowledgeBaseID,
		m.ChunkIndex,
		m.Content,
		m.TokenCount,
		m.Embedding,
		m.Placeholder,
		m.Metadata,
		m.CreatedAt,
	)
}

// ToModel converts a document.Chunk to a ChunkModel.
func (ChunkMapper) ToModel(c document.Chunk) ChunkModel {
	return ChunkModel{
		ID:              c.ID(),
		DocumentID:      c.DocumentID(),
		KnowledgeBaseID: c.KnowledgeBaseID(),
		ChunkIndex:      c.Index(),
		Content:         c.Content(),
		TokenCount:      c.TokenCount(),
		Embedding:       c.Embedding(),
		Placeholder:     c.Placeholder(),
		Metadata:        c.Metadata(),
		CreatedAt:       c.CreatedAt(),
	}
}

// CacheMapper converts between document.CacheEntry and CacheModel.
type CacheMapper struct{}

// ToDomain converts a CacheModel to a document.CacheEntry.
func (CacheMapper) ToDomain(m CacheModel) document.CacheEntry {
	return document.CacheEntry{
		ID:             m.ID,
		Query:          m.Query,
		Embedding:      m.Embedding,
		Response:       m.Response,
		HitCount:       m.HitCount,
		CreatedAt:      m.CreatedAt,
		LastAccessedAt: m.LastAccessedAt,
		ExpiresAt:      m.ExpiresAt,
	}
}

// ToModel converts a document.CacheEntry to a CacheModel.
func (CacheMapper) ToModel(e document.CacheEntry) CacheModel {
	return CacheModel{
		ID:             e.ID,
		Query:          e.Query,
		Embedding:      e.Embedding,
		Response:       e.Response,
		HitCount:       e.HitCount,
		CreatedAt:      e.CreatedAt,
		LastAccessedAt: e.LastAccessedAt,
		ExpiresAt:      e.ExpiresAt,
	}
}
