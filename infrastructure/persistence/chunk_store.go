package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/store"
	"github.com/vectorhaus/kbvec/internal/database"
	"gorm.io/gorm"
)

const chunkInsertBatchSize = 100

// ChunkStore persists embedded chunks using GORM.
type ChunkStore struct {
	db     database.Database
	repo   database.Repository[document.Chunk, ChunkModel]
	logger *slog.Logger
}

var _ document.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(db database.Database, logger *slog.Logger) *ChunkStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkStore{
		db:     db,
		repo:   database.NewRepository[document.Chunk, ChunkModel](db, ChunkMapper{}, "chunk"),
		logger: logger,
	}
}

// ReplaceDocument atomically removes any existing chunks for the document
// and inserts the given set. Readers never observe a half-replaced document.
func (s *ChunkStore) ReplaceDocument(ctx context.Context, documentID string, chunks []document.Chunk) error {
	mapper := ChunkMapper{}
	models := make([]ChunkModel, len(chunks))
	for i, c := range chunks {
		models[i] = mapper.ToModel(c)
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&ChunkModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(models, chunkInsertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("replace document chunks: %w", err)
	}
	return nil
}

// FindByDocument returns the document's chunks ordered by index.
func (s *ChunkStore) FindByDocument(ctx context.Context, documentID string) ([]document.Chunk, error) {
	return s.repo.Find(ctx,
		store.WithCondition("document_id", documentID),
		store.WithOrderAsc("chunk_index"),
	)
}

// DeleteDocuments removes all chunks for the given documents.
func (s *ChunkStore) DeleteDocuments(ctx context.Context, documentIDs []string) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	result := s.db.Session(ctx).
		Where("document_id IN ?", documentIDs).
		Delete(&ChunkModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete document chunks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListEmbedded returns all chunks with a vector, scoped to the knowledge
// base when one is given.
func (s *ChunkStore) ListEmbedded(ctx context.Context, knowledgeBaseID string) ([]document.Chunk, error) {
	opts := []store.Option{
		store.WithOrderAsc("document_id"),
		store.WithOrderAsc("chunk_index"),
	}
	if knowledgeBaseID != "" {
		opts = append(opts, store.WithCondition("knowledge_base_id", knowledgeBaseID))
	}

	var models []ChunkModel
	db := database.ApplyOptions(s.db.Session(ctx).Model(&ChunkModel{}), opts...)
	if err := db.Where("embedding IS NOT NULL").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list embedded chunks: %w", err)
	}

	mapper := ChunkMapper{}
	chunks := make([]document.Chunk, len(models))
	for i, m := range models {
		chunks[i] = mapper.ToDomain(m)
	}
	return chunks, nil
}

// Statistics returns aggregate counts, scoped to the knowledge base when one
// is given.
func (s *ChunkStore) Statistics(ctx context.Context, knowledgeBaseID string) (document.Statistics, error) {
	var row struct {
		Documents         int64
		Chunks            int64
		PlaceholderChunks int64
		Tokens            int64
	}

	db := s.db.Session(ctx).Model(&ChunkModel{}).
		Select(`COUNT(DISTINCT document_id) as documents,
COUNT(*) as chunks,
COALESCE(SUM(CASE WHEN placeholder THEN 1 ELSE 0 END), 0) as placeholder_chunks,
COALESCE(SUM(token_count), 0) as tokens`)
	if knowledgeBaseID != "" {
		db = db.Where("knowledge_base_id = ?", knowledgeBaseID)
	}

	if err := db.Scan(&row).Error; err != nil {
		return document.Statistics{}, fmt.Errorf("chunk statistics: %w", err)
	}

	return document.Statistics{
		Documents:         row.Documents,
		Chunks:            row.Chunks,
		PlaceholderChunks: row.PlaceholderChunks,
		Tokens:            row.Tokens,
	}, nil
}
