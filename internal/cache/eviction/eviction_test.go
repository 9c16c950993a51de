package eviction

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
)

func mkEntry(id string, createdAt time.Time, ttl int64, hits int64, model domain.ModelTier, lastAccessed *time.Time) domain.CachedResponse {
	return domain.CachedResponse{
		ID: id, CreatedAt: createdAt, TTLSeconds: ttl, HitCount: hits, ModelID: model, LastAccessed: lastAccessed,
	}
}

func TestTTLPolicy_OnlySelectsExpiredEntries(t *testing.T) {
	now := time.Now()
	entries := []domain.CachedResponse{
		mkEntry("fresh", now, 3600, 0, domain.TierSmall, nil),
		mkEntry("expired", now.Add(-2*time.Hour), 3600, 0, domain.TierSmall, nil),
	}
	order := TTLPolicy{}.Select(entries, now, 0)
	require.Equal(t, []string{"expired"}, order)
}

func TestTTLPolicy_OverTargetPrefersOldest(t *testing.T) {
	now := time.Now()
	entries := []domain.CachedResponse{
		mkEntry("older", now.Add(-3*time.Hour), 3600, 0, domain.TierSmall, nil),
		mkEntry("newer", now.Add(-2*time.Hour), 3600, 0, domain.TierSmall, nil),
	}
	order := TTLPolicy{}.Select(entries, now, 1)
	require.Equal(t, []string{"older"}, order)
}

func TestLRUPolicy_LeastRecentlyUsedFirst(t *testing.T) {
	now := time.Now()
	old := now.Add(-time.Hour)
	recent := now.Add(-time.Minute)
	entries := []domain.CachedResponse{
		mkEntry("recent", now, 3600, 0, domain.TierSmall, &recent),
		mkEntry("old", now, 3600, 0, domain.TierSmall, &old),
	}
	order := LRUPolicy{}.Select(entries, now, 0)
	require.Equal(t, []string{"old", "recent"}, order)
}

func TestQualityPolicy_LowestScoreFirst(t *testing.T) {
	now := time.Now()
	entries := []domain.CachedResponse{
		mkEntry("popular", now, 3600, 50, domain.TierLarge, nil),
		mkEntry("unused", now, 3600, 0, domain.TierSmall, nil),
	}
	order := QualityPolicy{}.Select(entries, now, 0)
	require.Equal(t, []string{"unused", "popular"}, order)
}

func TestQualityScore_Formula(t *testing.T) {
	now := time.Now()
	e := mkEntry("e", now, 3600, 20, domain.TierLarge, nil)
	// hit_factor = min(20/10, 0.4) = 0.4, recency_factor (age ~0) = 0.3, model_factor large = 0.3
	assert.InDelta(t, 1.0, QualityScore(e, now), 1e-9)
}

func TestCompositePolicy_ExpiredAlwaysEvictedFirst(t *testing.T) {
	now := time.Now()
	entries := []domain.CachedResponse{
		mkEntry("expired", now.Add(-2*time.Hour), 3600, 0, domain.TierSmall, nil),
		mkEntry("low-value", now, 3600, 0, domain.TierSmall, nil),
		mkEntry("high-value", now, 3600, 50, domain.TierLarge, nil),
	}
	order := NewCompositePolicy().Select(entries, now, 2)
	require.Len(t, order, 2)
	assert.Equal(t, "expired", order[0])
	assert.Equal(t, "low-value", order[1])
	assert.NotContains(t, order, "high-value")
}

func TestCompositePolicy_EvictionUnderPressureScenario(t *testing.T) {
	now := time.Now()
	var entries []domain.CachedResponse

	// 20 expired entries (>24h old, default ttl).
	for i := 0; i < 20; i++ {
		entries = append(entries, mkEntry(idFor("expired", i), now.Add(-25*time.Hour), 24*3600, 0, domain.TierSmall, nil))
	}
	// 10 high-quality large-model entries with real hit counts, well within TTL.
	for i := 0; i < 10; i++ {
		entries = append(entries, mkEntry(idFor("quality", i), now, 24*3600, 5, domain.TierLarge, nil))
	}
	// 90 ordinary non-expired, zero-hit, small-model entries.
	for i := 0; i < 90; i++ {
		entries = append(entries, mkEntry(idFor("plain", i), now, 24*3600, 0, domain.TierSmall, nil))
	}
	require.Len(t, entries, 120)

	target := len(entries) - 90 // size() - floor(0.9*capacity), capacity=100
	order := NewCompositePolicy().Select(entries, now, target)
	require.Len(t, order, target)

	evicted := make(map[string]bool, len(order))
	for _, id := range order {
		evicted[id] = true
	}
	for i := 0; i < 20; i++ {
		assert.True(t, evicted[idFor("expired", i)])
	}
	for i := 0; i < 10; i++ {
		assert.False(t, evicted[idFor("quality", i)])
	}
}

func idFor(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i)
}

func TestByName(t *testing.T) {
	assert.NotNil(t, ByName("ttl"))
	assert.NotNil(t, ByName("lru"))
	assert.NotNil(t, ByName("quality"))
	assert.NotNil(t, ByName("composite"))
	assert.Nil(t, ByName("unknown"))
}
