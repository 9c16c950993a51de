// Package semantic implements the Semantic Cache facade: lookup/store
// over the cache storage and manager layers through an injected
// embedder, plus in-memory running statistics.
package semantic

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"signalhub/internal/cache/manager"
	"signalhub/internal/cache/storage"
	"signalhub/internal/domain"
)

// Config controls the facade's cache semantics, independent of the
// storage/manager wiring.
type Config struct {
	SimilarityThreshold float64
	TTLHours            float64
	MaxEntries          int
}

// Stats are the running, in-memory statistics the facade maintains:
// total queries, hits, misses, hit-rate, running averages of similarity
// and response time.
type Stats struct {
	TotalQueries      int64
	Hits              int64
	Misses            int64
	HitRatePct        float64
	AvgSimilarity     float64
	AvgResponseTimeMs float64
}

// Cache is the public semantic-cache facade.
type Cache struct {
	store    storage.Storage
	embedder Embedder
	mgr      *manager.Manager
	cfg      Config

	mu            sync.Mutex
	totalQueries  int64
	hits          int64
	misses        int64
	simSum        float64
	responseSumMs float64
}

// New builds a Cache. mgr may be nil; without it, a capacity-full Store
// cannot trigger the eviction retry and simply returns the storage error.
func New(store storage.Storage, embedder Embedder, mgr *manager.Manager, cfg Config) *Cache {
	return &Cache{store: store, embedder: embedder, mgr: mgr, cfg: cfg}
}

// Lookup embeds query_text and searches for a reusable cached response.
// Embedder or storage failures degrade silently to a miss: errors here
// are logged, never propagated.
func (c *Cache) Lookup(ctx context.Context, queryText string, reqContext map[string]string) (*domain.CachedResponse, float64, error) {
	start := time.Now()

	embedding, err := c.embedder.Embed(ctx, queryText, reqContext)
	if err != nil {
		slog.Warn("semantic cache embed failed, degrading to miss", "err", err)
		c.recordMiss(time.Since(start))
		return nil, 0, nil
	}

	results, err := c.store.Search(ctx, embedding, reqContext, c.cfg.SimilarityThreshold, 1)
	if err != nil {
		slog.Warn("semantic cache search failed, degrading to miss", "err", err)
		c.recordMiss(time.Since(start))
		return nil, 0, nil
	}
	if len(results) == 0 {
		c.recordMiss(time.Since(start))
		return nil, 0, nil
	}

	hit := results[0].Entry
	now := time.Now()
	hit.HitCount++
	hit.LastAccessed = &now
	if err := c.store.Update(ctx, hit); err != nil {
		slog.Warn("semantic cache hit-count persist failed", "err", err, "id", hit.ID)
	}

	c.recordHit(results[0].Similarity, time.Since(start))
	return &hit, results[0].Similarity, nil
}

// Store embeds query_text and persists a new cached response with
// ttl_seconds = ttl_hours * 3600. When the backend rejects the add as
// full, a single synchronous eviction pass of ceil(capacity * 0.01)
// entries runs via the composite policy and the add is retried once.
func (c *Cache) Store(ctx context.Context, queryText string, responsePayload []byte, modelID domain.ModelTier, reqContext map[string]string) (domain.CachedResponse, error) {
	embedding, err := c.embedder.Embed(ctx, queryText, reqContext)
	if err != nil {
		return domain.CachedResponse{}, domain.NewError(domain.KindTransient, "semantic.Store", err)
	}

	entry := domain.CachedResponse{
		QueryText:       queryText,
		QueryEmbedding:  embedding,
		ResponsePayload: responsePayload,
		ModelID:         modelID,
		CreatedAt:       time.Now(),
		TTLSeconds:      int64(c.cfg.TTLHours * 3600),
		Context:         reqContext,
		Status:          domain.StatusActive,
	}

	stored, err := c.store.Add(ctx, entry)
	if domain.KindOf(err) == domain.KindCapacity {
		c.evictForCapacity(ctx)
		stored, err = c.store.Add(ctx, entry)
	}
	if err != nil {
		slog.Warn("semantic cache store failed", "err", err)
		return domain.CachedResponse{}, err
	}
	return stored, nil
}

func (c *Cache) evictForCapacity(ctx context.Context) {
	if c.mgr == nil || c.cfg.MaxEntries <= 0 {
		return
	}
	n := int(math.Ceil(float64(c.cfg.MaxEntries) * 0.01))
	if _, err := c.mgr.EvictN(ctx, n); err != nil {
		slog.Warn("semantic cache capacity eviction failed", "err", err)
	}
}

func (c *Cache) recordHit(similarity float64, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalQueries++
	c.hits++
	c.simSum += similarity
	c.responseSumMs += float64(elapsed.Milliseconds())
}

func (c *Cache) recordMiss(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalQueries++
	c.misses++
	c.responseSumMs += float64(elapsed.Milliseconds())
}

// StatsSnapshot returns the facade's current running statistics.
func (c *Cache) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{TotalQueries: c.totalQueries, Hits: c.hits, Misses: c.misses}
	if c.totalQueries > 0 {
		s.HitRatePct = float64(c.hits) / float64(c.totalQueries) * 100
		s.AvgResponseTimeMs = c.responseSumMs / float64(c.totalQueries)
	}
	if c.hits > 0 {
		s.AvgSimilarity = c.simSum / float64(c.hits)
	}
	return s
}
