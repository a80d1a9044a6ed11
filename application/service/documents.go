package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/task"
)

// Documents removes indexed documents and keeps the queue consistent with
// the removal.
type Documents struct {
	chunks   document.ChunkStore
	keywords KeywordIndexer
	tasks    task.Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewDocuments creates a new Documents service. keywords may be nil.
func NewDocuments(chunks document.ChunkStore, keywords KeywordIndexer, tasks task.Store, logger *slog.Logger) *Documents {
	if logger == nil {
		logger = slog.Default()
	}
	return &Documents{
		chunks:   chunks,
		keywords: keywords,
		tasks:    tasks,
		logger:   logger,
		now:      time.Now,
	}
}

// Delete removes all chunks and lexical index rows for the given documents
// and cancels any task still working on them. It returns the number of
// chunks removed.
func (s *Documents) Delete(ctx context.Context, documentIDs []string) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	for _, id := range documentIDs {
		active, found, err := s.tasks.FindActiveByDocument(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("find active task: %w", err)
		}
		if !found {
			continue
		}
		if _, err := s.tasks.Cancel(ctx, active.ID(), now); err != nil {
			return 0, fmt.Errorf("cancel task for document %s: %w", id, err)
		}
	}

	removed, err := s.chunks.DeleteDocuments(ctx, documentIDs)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	if s.keywords != nil {
		if err := s.keywords.RemoveDocuments(ctx, documentIDs); err != nil {
			return removed, fmt.Errorf("remove keyword index rows: %w", err)
		}
	}

	s.logger.Info("documents deleted",
		slog.Int("documents", len(documentIDs)),
		slog.Int64("chunks", removed),
	)
	return removed, nil
}
