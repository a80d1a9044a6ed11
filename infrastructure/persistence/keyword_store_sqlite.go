package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/search"
	"github.com/vectorhaus/kbvec/internal/database"
	"gorm.io/gorm"
)

// SQL statements for SQLite FTS5 keyword operations. The FTS table indexes
// chunk content; chunk metadata is joined back from kbvec_chunks at query
// time.
const (
	sqliteCreateFTS5Table = `
CREATE VIRTUAL TABLE IF NOT EXISTS kbvec_chunk_fts USING fts5(
    chunk_id UNINDEXED,
    document_id UNINDEXED,
    knowledge_base_id UNINDEXED,
    content,
    tokenize='porter ascii'
)`

	sqliteInsertQuery = `
INSERT INTO kbvec_chunk_fts (rowid, chunk_id, document_id, knowledge_base_id, content)
VALUES (?, ?, ?, ?, ?)`

	sqliteDeleteByDocumentQuery = `DELETE FROM kbvec_chunk_fts WHERE document_id IN ?`

	sqliteMaxRowIDQuery = `SELECT COALESCE(MAX(rowid), 0) FROM kbvec_chunk_fts`
)

// ErrKeywordStoreInitFailed indicates SQLite FTS5 initialization failed.
var ErrKeywordStoreInitFailed = errors.New("failed to initialize SQLite FTS5 keyword store")

// SQLiteKeywordStore implements search.KeywordSearcher using SQLite FTS5
// with BM25 ranking.
type SQLiteKeywordStore struct {
	db     *gorm.DB
	logger *slog.Logger

	mu        sync.Mutex
	nextRowID int64
}

var _ search.KeywordSearcher = (*SQLiteKeywordStore)(nil)

// NewSQLiteKeywordStore creates a new SQLiteKeywordStore, eagerly
// initializing the FTS5 table and row ID counter.
func NewSQLiteKeywordStore(db database.Database, logger *slog.Logger) (*SQLiteKeywordStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteKeywordStore{
		db:     db.Session(context.Background()),
		logger: logger,
	}

	if err := s.db.Exec(sqliteCreateFTS5Table).Error; err != nil {
		return nil, errors.Join(ErrKeywordStoreInitFailed, err)
	}

	var maxRowID int64
	if err := s.db.Raw(sqliteMaxRowIDQuery).Scan(&maxRowID).Error; err != nil {
		return nil, errors.Join(ErrKeywordStoreInitFailed, err)
	}
	s.nextRowID = maxRowID + 1

	return s, nil
}

// IndexDocument replaces the FTS rows for the document with the given
// chunks.
func (s *SQLiteKeywordStore) IndexDocument(ctx context.Context, documentID string, chunks []document.Chunk) error {
	// Reserve the row ID block up front so concurrent indexers never hand
	// out the same rowid. A rolled-back transaction leaves a gap, which
	// FTS5 does not care about.
	s.mu.Lock()
	rowID := s.nextRowID
	s.nextRowID += int64(len(chunks))
	s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sqliteDeleteByDocumentQuery, []string{documentID}).Error; err != nil {
			return err
		}
		for _, c := range chunks {
			if err := tx.Exec(sqliteInsertQuery, rowID, c.ID(), c.DocumentID(), c.KnowledgeBaseID(), c.Content()).Error; err != nil {
				return err
			}
			rowID++
		}
		return nil
	})
}

// RemoveDocuments drops the FTS rows for the given documents.
func (s *SQLiteKeywordStore) RemoveDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Exec(sqliteDeleteByDocumentQuery, documentIDs).Error
}

// SearchKeyword performs BM25 keyword search over indexed chunks.
func (s *SQLiteKeywordStore) SearchKeyword(ctx context.Context, query string, knowledgeBaseID string, topK int) ([]search.Result, error) {
	if strings.TrimSpace(query) == "" {
		return []search.Result{}, nil
	}
	if topK <= 0 {
		topK = search.DefaultTopK
	}

	tx := s.db.WithContext(ctx).
		Table("kbvec_chunk_fts").
		Select("chunk_id, bm25(kbvec_chunk_fts) as score").
		Where("kbvec_chunk_fts MATCH ?", escapeFTS5Query(query))
	if knowledgeBaseID != "" {
		tx = tx.Where("knowledge_base_id = ?", knowledgeBaseID)
	}
	tx = tx.Order("score").Limit(topK)

	// Manual row scanning keeps FTS5 UNINDEXED columns readable.
	sqlRows, err := tx.Rows()
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer func() { _ = sqlRows.Close() }()

	type hit struct {
		chunkID string
		score   float64
	}
	var hits []hit
	for sqlRows.Next() {
		var h hit
		if err := sqlRows.Scan(&h.chunkID, &h.score); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("keyword search rows: %w", err)
	}

	if len(hits) == 0 {
		return []search.Result{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.chunkID
	}

	var models []ChunkModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load keyword hits: %w", err)
	}
	byID := make(map[string]ChunkModel, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	results := make([]search.Result, 0, len(hits))
	for _, h := range hits {
		m, ok := byID[h.chunkID]
		if !ok {
			continue
		}
		results = append(results, search.Result{
			ChunkID:    m.ID,
			DocumentID: m.DocumentID,
			ChunkIndex: m.ChunkIndex,
			Content:    m.Content,
			// SQLite bm25() returns negative scores where more negative
			// is better. Negate for a higher-is-better score.
			Score:       -h.score,
			Placeholder: m.Placeholder,
			Metadata:    m.Metadata,
		})
	}
	return results, nil
}

// escapeFTS5Query wraps the query in double quotes so FTS5 operators in
// user text are treated as a phrase.
func escapeFTS5Query(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}
