package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheEntry(id, query string, embedding []float64, ttl time.Duration, now time.Time) document.CacheEntry {
	return document.CacheEntry{
		ID:             id,
		Query:          query,
		Embedding:      embedding,
		Response:       "response for " + query,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(ttl),
	}
}

func TestCacheStore_LookupFindsSimilarEntry(t *testing.T) {
	db := newTestDB(t)
	store := NewCacheStore(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, cacheEntry("c1", "what is chunking", []float64{1, 0}, time.Hour, now)))
	require.NoError(t, store.Put(ctx, cacheEntry("c2", "unrelated topic", []float64{0, 1}, time.Hour, now)))

	// Close to c1's vector, far from c2's.
	hit, found, err := store.Lookup(ctx, []float64{0.99, 0.01}, 0.95, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c1", hit.ID)
	assert.Equal(t, "response for what is chunking", hit.Response)
	assert.Equal(t, int64(1), hit.HitCount)
}

func TestCacheStore_LookupMissBelowThreshold(t *testing.T) {
	db := newTestDB(t)
	store := NewCacheStore(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, cacheEntry("c1", "query", []float64{1, 0}, time.Hour, now)))

	_, found, err := store.Lookup(ctx, []float64{0, 1}, 0.95, now)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheStore_LookupPicksBestMatch(t *testing.T) {
	db := newTestDB(t)
	store := NewCacheStore(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, cacheEntry("close", "close query", []float64{0.9, 0.1}, time.Hour, now)))
	require.NoError(t, store.Put(ctx, cacheEntry("closest", "closest query", []float64{1, 0}, time.Hour, now)))

	hit, found, err := store.Lookup(ctx, []float64{1, 0}, 0.9, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "closest", hit.ID)
}

func TestCacheStore_LookupSkipsExpired(t *testing.T) {
	db := newTestDB(t)
	store := NewCacheStore(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, cacheEntry("c1", "query", []float64{1, 0}, time.Minute, now)))

	_, found, err := store.Lookup(ctx, []float64{1, 0}, 0.9, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheStore_LookupAccumulatesHits(t *testing.T) {
	db := newTestDB(t)
	store := NewCacheStore(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, cacheEntry("c1", "query", []float64{1, 0}, time.Hour, now)))

	for range 3 {
		_, found, err := store.Lookup(ctx, []float64{1, 0}, 0.9, now)
		require.NoError(t, err)
		require.True(t, found)
	}

	hit, found, err := store.Lookup(ctx, []float64{1, 0}, 0.9, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(4), hit.HitCount)
}

func TestCacheStore_PurgeExpired(t *testing.T) {
	db := newTestDB(t)
	store := NewCacheStore(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, cacheEntry("stale", "old", []float64{1, 0}, time.Minute, now)))
	require.NoError(t, store.Put(ctx, cacheEntry("fresh", "new", []float64{0, 1}, time.Hour, now)))

	purged, err := store.PurgeExpired(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, found, err := store.Lookup(ctx, []float64{0, 1}, 0.9, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, found)
}
