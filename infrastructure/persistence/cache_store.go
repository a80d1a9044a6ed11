package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/internal/database"
	"gorm.io/gorm/clause"
)

// CacheStore persists semantic cache entries using GORM. Similarity
// matching loads candidate vectors and scores them in process, the same way
// chunk vectors are searched.
type CacheStore struct {
	db     database.Database
	logger *slog.Logger
}

var _ document.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates a new CacheStore.
func NewCacheStore(db database.Database, logger *slog.Logger) *CacheStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheStore{db: db, logger: logger}
}

// Put stores a response under the query and its embedding.
func (s *CacheStore) Put(ctx context.Context, entry document.CacheEntry) error {
	model := CacheMapper{}.ToModel(entry)
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model)
	if result.Error != nil {
		return fmt.Errorf("save cache entry: %w", result.Error)
	}
	return nil
}

// Lookup returns the best non-expired entry whose embedding's cosine
// similarity to vector meets threshold, bumping its hit count and access
// time.
func (s *CacheStore) Lookup(ctx context.Context, vector []float64, threshold float64, now time.Time) (document.CacheEntry, bool, error) {
	if len(vector) == 0 {
		return document.CacheEntry{}, false, nil
	}

	var models []CacheModel
	result := s.db.Session(ctx).
		Where("expires_at > ?", now).
		Find(&models)
	if result.Error != nil {
		return document.CacheEntry{}, false, fmt.Errorf("load cache entries: %w", result.Error)
	}

	bestIdx := -1
	bestScore := -1.0
	for i, m := range models {
		score := cosineSimilarity(vector, m.Embedding)
		if score >= threshold && score > bestScore {
			bestIdx = i
			bestScore = score
		}
	}
	if bestIdx < 0 {
		return document.CacheEntry{}, false, nil
	}

	best := models[bestIdx]
	update := s.db.Session(ctx).Model(&CacheModel{}).
		Where("id = ?", best.ID).
		Updates(map[string]any{
			"hit_count":        best.HitCount + 1,
			"last_accessed_at": now.UTC(),
		})
	if update.Error != nil {
		return document.CacheEntry{}, false, fmt.Errorf("record cache hit: %w", update.Error)
	}

	best.HitCount++
	best.LastAccessedAt = now.UTC()
	return CacheMapper{}.ToDomain(best), true, nil
}

// PurgeExpired removes expired entries.
func (s *CacheStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.Session(ctx).
		Where("expires_at <= ?", now).
		Delete(&CacheModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge cache entries: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Debug("purged expired cache entries", "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors,
// returning 0 for mismatched or zero-length inputs.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
