package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
)

func activeEntry(id string, embedding []float32) domain.CachedResponse {
	return domain.CachedResponse{
		ID:             id,
		QueryText:      "query " + id,
		QueryEmbedding: embedding,
		CreatedAt:      time.Now(),
		TTLSeconds:     3600,
		Status:         domain.StatusActive,
	}
}

func TestMemoryStorage_AddAssignsIDAndDefaults(t *testing.T) {
	s := NewMemoryStorage(0)

	stored, err := s.Add(context.Background(), domain.CachedResponse{
		QueryText:      "hello",
		QueryEmbedding: []float32{1, 0},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.False(t, stored.CreatedAt.IsZero())

	size, err := s.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestMemoryStorage_AddRejectsNewEntryAtCapacity(t *testing.T) {
	s := NewMemoryStorage(2)
	ctx := context.Background()

	_, err := s.Add(ctx, activeEntry("a", []float32{1, 0}))
	require.NoError(t, err)
	_, err = s.Add(ctx, activeEntry("b", []float32{0, 1}))
	require.NoError(t, err)

	// full: a third entry is rejected with no side effect
	_, err = s.Add(ctx, activeEntry("c", []float32{1, 1}))
	require.Error(t, err)
	assert.Equal(t, domain.KindCapacity, domain.KindOf(err))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
	_, err = s.Get(ctx, "c")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestMemoryStorage_AddReplacesExistingEntryAtCapacity(t *testing.T) {
	s := NewMemoryStorage(1)
	ctx := context.Background()

	_, err := s.Add(ctx, activeEntry("a", []float32{1, 0}))
	require.NoError(t, err)

	replacement := activeEntry("a", []float32{0, 1})
	replacement.ResponsePayload = []byte("updated")
	_, err = s.Add(ctx, replacement)
	require.NoError(t, err)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), got.ResponsePayload)
}

func TestMemoryStorage_AddFreesCapacityAfterDelete(t *testing.T) {
	s := NewMemoryStorage(1)
	ctx := context.Background()

	_, err := s.Add(ctx, activeEntry("a", []float32{1, 0}))
	require.NoError(t, err)
	_, err = s.Add(ctx, activeEntry("b", []float32{0, 1}))
	assert.Equal(t, domain.KindCapacity, domain.KindOf(err))

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Add(ctx, activeEntry("b", []float32{0, 1}))
	require.NoError(t, err)
}

func TestMemoryStorage_SearchOrdersBySimilarity(t *testing.T) {
	s := NewMemoryStorage(0)
	ctx := context.Background()

	_, err := s.Add(ctx, activeEntry("exact", []float32{1, 0}))
	require.NoError(t, err)
	_, err = s.Add(ctx, activeEntry("close", []float32{0.9, 0.1}))
	require.NoError(t, err)
	_, err = s.Add(ctx, activeEntry("far", []float32{0, 1}))
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0}, nil, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Entry.ID)
	assert.Equal(t, "close", results[1].Entry.ID)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestMemoryStorage_SearchSkipsExpiredEntries(t *testing.T) {
	s := NewMemoryStorage(0)
	ctx := context.Background()

	stale := activeEntry("stale", []float32{1, 0})
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	stale.TTLSeconds = 3600
	_, err := s.Add(ctx, stale)
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0}, nil, 0.0, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStorage_SearchRespectsContextCompatibility(t *testing.T) {
	s := NewMemoryStorage(0)
	ctx := context.Background()

	goEntry := activeEntry("go", []float32{1, 0})
	goEntry.Context = map[string]string{"language": "go"}
	_, err := s.Add(ctx, goEntry)
	require.NoError(t, err)

	anyEntry := activeEntry("any", []float32{1, 0})
	_, err = s.Add(ctx, anyEntry)
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0}, map[string]string{"language": "python"}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "any", results[0].Entry.ID)
}

func TestMemoryStorage_SearchLimit(t *testing.T) {
	s := NewMemoryStorage(0)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Add(ctx, activeEntry(id, []float32{1, 0}))
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, nil, 0.5, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStorage_UpdatePersistsHitCount(t *testing.T) {
	s := NewMemoryStorage(0)
	ctx := context.Background()

	stored, err := s.Add(ctx, activeEntry("e", []float32{1, 0}))
	require.NoError(t, err)

	now := time.Now()
	stored.HitCount = 3
	stored.LastAccessed = &now
	require.NoError(t, s.Update(ctx, stored))

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.HitCount)
	require.NotNil(t, got.LastAccessed)
}

func TestMemoryStorage_UpdateUnknownIDIsNotFound(t *testing.T) {
	s := NewMemoryStorage(0)
	err := s.Update(context.Background(), activeEntry("ghost", []float32{1, 0}))
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestMemoryStorage_CleanupExpiredTransitionsStatus(t *testing.T) {
	s := NewMemoryStorage(0)
	ctx := context.Background()

	stale := activeEntry("stale", []float32{1, 0})
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	stale.TTLSeconds = 3600
	_, err := s.Add(ctx, stale)
	require.NoError(t, err)
	_, err = s.Add(ctx, activeEntry("fresh", []float32{0, 1}))
	require.NoError(t, err)

	changed, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	got, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveCount)
	assert.Equal(t, int64(1), stats.ExpiredCount)
}

func TestMemoryStorage_DeleteAndClear(t *testing.T) {
	s := NewMemoryStorage(0)
	ctx := context.Background()

	_, err := s.Add(ctx, activeEntry("a", []float32{1, 0}))
	require.NoError(t, err)
	_, err = s.Add(ctx, activeEntry("b", []float32{0, 1}))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "absent")) // not an error

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	require.NoError(t, s.Clear(ctx))
	size, err = s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
}

func TestContextCompatible(t *testing.T) {
	assert.True(t, ContextCompatible(nil, map[string]string{"language": "go"}))
	assert.True(t, ContextCompatible(map[string]string{"language": "go"}, nil))
	assert.True(t, ContextCompatible(map[string]string{"language": "go"}, map[string]string{"language": "go"}))
	assert.False(t, ContextCompatible(map[string]string{"language": "go"}, map[string]string{"language": "python"}))
	assert.True(t, ContextCompatible(map[string]string{"language": "go"}, map[string]string{"file_pattern": "*.go"}))
}
