package costs

import (
	"context"
	"sync"
	"time"

	"signalhub/internal/domain"
)

// MemoryLedger is the in-memory Ledger backend: an append-only slice
// guarded by a RWMutex, sufficient for a single-process deployment or
// tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []domain.ModelUsage
	calc    *Calculator
	risk    *RiskScorer
}

// NewMemoryLedger builds an empty MemoryLedger.
func NewMemoryLedger(calc *Calculator, risk *RiskScorer) *MemoryLedger {
	return &MemoryLedger{calc: calc, risk: risk}
}

func (l *MemoryLedger) Append(_ context.Context, usage domain.ModelUsage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, usage)
	recordAppend(nil)
	return nil
}

func (l *MemoryLedger) Summary(_ context.Context, start, end time.Time, userID string) (domain.CostSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := l.filterLocked(start, end, userID)
	return summarize(matched, start, end, l.calc, l.risk), nil
}

func (l *MemoryLedger) Range(_ context.Context, start, end time.Time, userID string) ([]domain.ModelUsage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked(start, end, userID), nil
}

func (l *MemoryLedger) Recent(_ context.Context, limit int, userID string) ([]domain.ModelUsage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.ModelUsage
	for i := len(l.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		r := l.records[i]
		if userID != "" && r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (l *MemoryLedger) TotalCost(_ context.Context, start, end time.Time) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, r := range l.records {
		if !start.IsZero() && r.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !r.Timestamp.Before(end) {
			continue
		}
		total += r.CostUSD
	}
	return total, nil
}

func (l *MemoryLedger) filterLocked(start, end time.Time, userID string) []domain.ModelUsage {
	var out []domain.ModelUsage
	for _, r := range l.records {
		if r.Timestamp.Before(start) || !r.Timestamp.Before(end) {
			continue
		}
		if userID != "" && r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (l *MemoryLedger) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	var removed int64
	for _, r := range l.records {
		if r.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return removed, nil
}
