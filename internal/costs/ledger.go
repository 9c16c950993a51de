package costs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"signalhub/internal/domain"
)

// ledgerAppends counts append attempts by outcome, so append failures that
// are deliberately swallowed by callers still surface in monitoring.
var ledgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signalhub_ledger_appends_total",
	Help: "Total cost ledger append attempts by outcome.",
}, []string{"status"})

func recordAppend(err error) {
	if err != nil {
		ledgerAppends.WithLabelValues("error").Inc()
		return
	}
	ledgerAppends.WithLabelValues("ok").Inc()
}

// Ledger is the append-only store of ModelUsage records. Implementations
// must be safe for concurrent use.
type Ledger interface {
	// Append records one usage event. It never fails the surrounding model
	// invocation: callers log and continue on error.
	Append(ctx context.Context, usage domain.ModelUsage) error

	// Summary aggregates all records with Timestamp in [start, end) into a
	// CostSummary. If userID is non-empty, only that user's records are
	// included.
	Summary(ctx context.Context, start, end time.Time, userID string) (domain.CostSummary, error)

	// Range returns all records with Timestamp in [start, end), ordered
	// oldest first. If userID is non-empty, only that user's records are
	// included.
	Range(ctx context.Context, start, end time.Time, userID string) ([]domain.ModelUsage, error)

	// Recent returns up to limit records, newest first. If userID is
	// non-empty, only that user's records are included.
	Recent(ctx context.Context, limit int, userID string) ([]domain.ModelUsage, error)

	// TotalCost sums CostUSD over [start, end). A zero start or end leaves
	// that side of the window unbounded.
	TotalCost(ctx context.Context, start, end time.Time) (float64, error)

	// Prune deletes records older than olderThan, returning the count
	// removed. Used by retention-day enforcement.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Metadata keys the routing engine attaches to cache-hit usage records.
// A hit persists zero tokens and zero cost of its own, so the spend it
// avoided has to travel with the record for aggregation to see it.
const (
	// MetadataSavedUSD is the baseline cost the hit avoided.
	MetadataSavedUSD = "saved_usd"
	// MetadataAvoidedCostUSD is what the invocation would have cost at
	// the tier that produced the cached response.
	MetadataAvoidedCostUSD = "avoided_cost_usd"
	// MetadataCachedModel is the tier that produced the cached response.
	MetadataCachedModel = "cached_model"
)

// cacheHitSaved extracts the engine-recorded avoided baseline cost from a
// cache-hit record's metadata. Metadata survives a JSON round trip through
// the Postgres backend, so the value arrives as float64 either way.
func cacheHitSaved(r domain.ModelUsage) (float64, bool) {
	v, ok := r.Metadata[MetadataSavedUSD]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// summarize is the backend-agnostic aggregation shared by every Ledger
// implementation: each backend fetches the matching rows however suits its
// storage, then calls this over the in-memory slice.
func summarize(records []domain.ModelUsage, start, end time.Time, calc *Calculator, riskScorer *RiskScorer) domain.CostSummary {
	summary := domain.CostSummary{WindowStart: start, WindowEnd: end}

	distribution := make(map[domain.ModelTier]int64)
	var totalLatency, baselineTotal float64

	for _, r := range records {
		summary.TotalRequests++
		summary.TotalCostUSD += r.CostUSD
		distribution[r.ModelID]++
		totalLatency += r.LatencyMs

		baseline := calc.Baseline(r.InputTokens, r.OutputTokens)
		saved := baseline - r.CostUSD
		if r.CacheHit {
			if v, ok := cacheHitSaved(r); ok {
				// cost paid was zero, so the avoided baseline and the
				// saving are the same figure
				saved = v
				baseline = v
			}
			summary.CacheHits++
			summary.CacheSavedUSD += saved
		} else {
			summary.RoutingSavedUSD += saved
		}
		summary.TotalSavedUSD += saved
		baselineTotal += baseline
	}

	if summary.TotalRequests > 0 {
		summary.MeanLatencyMs = totalLatency / float64(summary.TotalRequests)
		summary.HitRatePct = float64(summary.CacheHits) / float64(summary.TotalRequests) * 100
	}

	if baselineTotal > 0 {
		summary.SavingsPct = summary.TotalSavedUSD / baselineTotal * 100
	}

	for _, tier := range domain.AllTiers() {
		if n, ok := distribution[tier]; ok {
			summary.ModelDistribution = append(summary.ModelDistribution, domain.ModelDistributionEntry{
				ModelID: tier, Requests: n,
			})
		}
	}

	if riskScorer != nil {
		risk := riskScorer.Score(summary)
		summary.Risk = &risk
	}

	return summary
}
