// Package eviction implements the cache eviction policies: independent
// selectors over a snapshot of cache entries, plus a composite strategy
// that applies them in a fixed order (TTL, then quality, then LRU), each
// stage reducing the remaining target by the number of ids it
// contributed.
package eviction

import (
	"math"
	"sort"
	"time"

	"signalhub/internal/domain"
)

// Policy selects entries to evict from a snapshot, returning up to target
// IDs, most-evictable first. A target of 0 or less means "no bound" and
// the policy returns every id it would ever select.
type Policy interface {
	Name() string
	Select(entries []domain.CachedResponse, now time.Time, target int) []string
}

// TTLPolicy selects every entry that has actually expired (now - created_at
// > ttl_seconds); it never selects a non-expired entry. When the expired
// set is larger than target, the oldest entries by created_at are
// preferred.
type TTLPolicy struct{}

func (TTLPolicy) Name() string { return "ttl" }

func (TTLPolicy) Select(entries []domain.CachedResponse, now time.Time, target int) []string {
	expired := make([]domain.CachedResponse, 0, len(entries))
	for _, e := range entries {
		if now.Sub(e.CreatedAt) > time.Duration(e.TTLSeconds)*time.Second {
			expired = append(expired, e)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	if target > 0 && len(expired) > target {
		expired = expired[:target]
	}
	out := make([]string, len(expired))
	for i, e := range expired {
		out[i] = e.ID
	}
	return out
}

// LRUPolicy evicts least-recently-used entries first, falling back to
// creation time for entries never accessed. Serves as the composite
// policy's stable last-resort tiebreaker.
type LRUPolicy struct{}

func (LRUPolicy) Name() string { return "lru" }

func (LRUPolicy) Select(entries []domain.CachedResponse, _ time.Time, target int) []string {
	lastUse := func(e domain.CachedResponse) time.Time {
		if e.LastAccessed != nil {
			return *e.LastAccessed
		}
		return e.CreatedAt
	}
	sorted := make([]domain.CachedResponse, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return lastUse(sorted[i]).Before(lastUse(sorted[j]))
	})
	if target > 0 && len(sorted) > target {
		sorted = sorted[:target]
	}
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = e.ID
	}
	return out
}

// QualityScore scores an entry on [0,1] as hit_factor + recency_factor +
// model_factor: a high score means the entry is valuable and should
// be the last thing evicted.
func QualityScore(e domain.CachedResponse, now time.Time) float64 {
	hitFactor := math.Min(float64(e.HitCount)/10.0, 0.4)

	age := now.Sub(e.CreatedAt)
	var recencyFactor float64
	switch {
	case age < time.Hour:
		recencyFactor = 0.3
	case age < 24*time.Hour:
		recencyFactor = 0.2
	case age < 168*time.Hour:
		recencyFactor = 0.1
	default:
		recencyFactor = 0
	}

	var modelFactor float64
	switch e.ModelID {
	case domain.TierLarge:
		modelFactor = 0.3
	case domain.TierMedium:
		modelFactor = 0.2
	case domain.TierSmall:
		modelFactor = 0.1
	}

	return hitFactor + recencyFactor + modelFactor
}

// QualityPolicy evicts the lowest quality-scored entries first, preferring
// to keep entries whose re-computation would have been expensive.
type QualityPolicy struct{}

func (QualityPolicy) Name() string { return "quality" }

func (QualityPolicy) Select(entries []domain.CachedResponse, now time.Time, target int) []string {
	type scored struct {
		id    string
		score float64
	}
	scoredEntries := make([]scored, 0, len(entries))
	for _, e := range entries {
		scoredEntries = append(scoredEntries, scored{id: e.ID, score: QualityScore(e, now)})
	}
	sort.Slice(scoredEntries, func(i, j int) bool {
		return scoredEntries[i].score < scoredEntries[j].score
	})
	if target > 0 && len(scoredEntries) > target {
		scoredEntries = scoredEntries[:target]
	}
	out := make([]string, len(scoredEntries))
	for i, s := range scoredEntries {
		out[i] = s.id
	}
	return out
}

// CompositePolicy applies TTL, then quality, then LRU, each stage reducing
// the remaining target by the number of ids it contributed. This
// guarantees expired entries are always removed first, low-value entries
// are preferred over merely old ones among the survivors, and LRU serves
// as the final, stable tiebreaker.
type CompositePolicy struct{}

// NewCompositePolicy builds a CompositePolicy. Kept as a constructor (the
// type carries no configuration) so callers can swap in weighted variants
// without changing call sites.
func NewCompositePolicy() *CompositePolicy {
	return &CompositePolicy{}
}

func (p *CompositePolicy) Name() string { return "composite" }

func (p *CompositePolicy) Select(entries []domain.CachedResponse, now time.Time, target int) []string {
	if len(entries) == 0 {
		return nil
	}

	byID := make(map[string]domain.CachedResponse, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	var order []string
	chosen := make(map[string]bool, len(entries))

	ttlIDs := TTLPolicy{}.Select(entries, now, target)
	for _, id := range ttlIDs {
		order = append(order, id)
		chosen[id] = true
	}

	remaining := target - len(ttlIDs)

	remainder := func() []domain.CachedResponse {
		out := make([]domain.CachedResponse, 0, len(entries)-len(chosen))
		for _, e := range entries {
			if !chosen[e.ID] {
				out = append(out, e)
			}
		}
		return out
	}

	if target <= 0 || remaining > 0 {
		qualityTarget := remaining
		if target <= 0 {
			qualityTarget = 0 // unbounded: rank the entire remainder
		}
		qualityIDs := QualityPolicy{}.Select(remainder(), now, qualityTarget)
		for _, id := range qualityIDs {
			order = append(order, id)
			chosen[id] = true
		}
		remaining -= len(qualityIDs)
	}

	if target <= 0 || remaining > 0 {
		lruTarget := remaining
		if target <= 0 {
			lruTarget = 0
		}
		lruIDs := LRUPolicy{}.Select(remainder(), now, lruTarget)
		order = append(order, lruIDs...)
	}

	return order
}

// ByName returns the named eviction policy, or nil if unknown.
func ByName(name string) Policy {
	switch name {
	case "ttl":
		return TTLPolicy{}
	case "lru":
		return LRUPolicy{}
	case "quality":
		return QualityPolicy{}
	case "composite":
		return NewCompositePolicy()
	default:
		return nil
	}
}
