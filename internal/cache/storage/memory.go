package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalhub/internal/domain"
)

var errCacheFull = errors.New("cache capacity reached")

// MemoryStorage is the in-memory Storage backend: a map guarded by a
// RWMutex, with linear-scan similarity search. Adequate at the scale the
// cache targets, thousands of entries rather than millions.
type MemoryStorage struct {
	maxEntries int

	mu      sync.RWMutex
	entries map[string]domain.CachedResponse
}

// NewMemoryStorage builds an empty MemoryStorage holding at most
// maxEntries entries. A maxEntries <= 0 leaves the backend unbounded.
func NewMemoryStorage(maxEntries int) *MemoryStorage {
	return &MemoryStorage{
		maxEntries: maxEntries,
		entries:    make(map[string]domain.CachedResponse),
	}
}

func (s *MemoryStorage) Add(_ context.Context, entry domain.CachedResponse) (domain.CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, exists := s.entries[entry.ID]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return domain.CachedResponse{}, domain.NewError(domain.KindCapacity, "storage.Add", errCacheFull)
	}
	if entry.Status == "" {
		entry.Status = domain.StatusActive
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *MemoryStorage) Search(_ context.Context, query []float32, reqContext map[string]string, threshold float64, limit int) ([]domain.CacheSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var results []domain.CacheSearchResult
	for _, e := range s.entries {
		if e.Status != domain.StatusActive || !e.Usable(now) {
			continue
		}
		if !ContextCompatible(e.Context, reqContext) {
			continue
		}
		sim := CosineSimilarity(query, e.QueryEmbedding)
		if sim < threshold {
			continue
		}
		results = append(results, domain.CacheSearchResult{Entry: e, Similarity: sim})
	}

	sortBySimilarityDesc(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStorage) Get(_ context.Context, id string) (domain.CachedResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.CachedResponse{}, domain.NewError(domain.KindNotFound, "storage.Get", nil)
	}
	return e, nil
}

func (s *MemoryStorage) Update(_ context.Context, entry domain.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; !ok {
		return domain.NewError(domain.KindNotFound, "storage.Update", nil)
	}
	s.entries[entry.ID] = entry
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]domain.CachedResponse)
	return nil
}

func (s *MemoryStorage) Size(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *MemoryStorage) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := Stats{EntryCount: int64(len(s.entries))}
	for _, e := range s.entries {
		switch {
		case e.Status == domain.StatusEvicted:
			stats.EvictedCount++
		case e.Status == domain.StatusExpired || !e.Usable(now):
			stats.ExpiredCount++
		default:
			stats.ActiveCount++
		}
		stats.EstimatedSize += int64(len(e.ResponsePayload) + len(e.QueryEmbedding)*4)
	}
	return stats, nil
}

func (s *MemoryStorage) CleanupExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var changed int64
	for id, e := range s.entries {
		if e.Status == domain.StatusActive && !e.Usable(now) {
			e.Status = domain.StatusExpired
			s.entries[id] = e
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStorage) All(_ context.Context) ([]domain.CachedResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CachedResponse, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func sortBySimilarityDesc(results []domain.CacheSearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Similarity > results[j-1].Similarity; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
