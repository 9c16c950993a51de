package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signalhub/internal/cache/eviction"
	"signalhub/internal/cache/storage"
	"signalhub/internal/domain"
)

func TestManager_RunOnceExpiresStaleEntries(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	ctx := context.Background()

	_, err := store.Add(ctx, domain.CachedResponse{
		ID: "stale", CreatedAt: time.Now().Add(-time.Hour), TTLSeconds: 1, Status: domain.StatusActive,
	})
	require.NoError(t, err)

	mgr := New(store, eviction.NewCompositePolicy(), Config{})
	mgr.RunOnce(ctx)

	entry, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, entry.Status)

	health := mgr.HealthSnapshot()
	require.Equal(t, int64(1), health.LastExpiredCount)
	require.False(t, health.LastMaintenanceAt.IsZero())
}

func TestManager_RunOnceEvictsOverCapacity(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Add(ctx, domain.CachedResponse{
			CreatedAt: time.Now(), TTLSeconds: 3600, Status: domain.StatusActive,
		})
		require.NoError(t, err)
	}

	mgr := New(store, eviction.NewCompositePolicy(), Config{MaxEntries: 2})
	mgr.RunOnce(ctx)

	// target = size() - floor(0.9*capacity) = 5 - floor(1.8) = 4.
	size, err := store.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	health := mgr.HealthSnapshot()
	require.Equal(t, int64(4), health.LastEvictedCount)
	require.InDelta(t, 50.0, health.UtilizationPct, 0.01)
}
