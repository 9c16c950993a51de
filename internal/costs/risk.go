package costs

import "signalhub/internal/domain"

// RiskWeights controls how much each factor contributes to a spend-risk
// score. Weights are expected to sum to 1.0.
type RiskWeights struct {
	LowSavingsRate   float64
	LowCacheHitRate  float64
	HighLargeTierUse float64
}

// DefaultRiskWeights is the stock weighting: savings rate dominates,
// cache hit rate and large-tier overuse contribute smaller shares.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		LowSavingsRate:   0.5,
		LowCacheHitRate:  0.3,
		HighLargeTierUse: 0.2,
	}
}

// RiskThresholds classify a 0-100 risk score into a level label.
type RiskThresholds struct {
	Medium float64
	High   float64
}

// DefaultRiskThresholds buckets scores: below Medium is "low",
// [Medium, High) is "medium", at or above High is "high".
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Medium: 40, High: 70}
}

// RiskScorer derives a SpendRisk from a CostSummary's aggregate figures,
// flagging windows whose realised savings look abnormally low for their
// cache hit rate and model distribution.
type RiskScorer struct {
	weights    RiskWeights
	thresholds RiskThresholds
}

// NewRiskScorer builds a RiskScorer with the given weights and thresholds.
func NewRiskScorer(weights RiskWeights, thresholds RiskThresholds) *RiskScorer {
	return &RiskScorer{weights: weights, thresholds: thresholds}
}

// Score computes a SpendRisk for the given summary. Higher is riskier:
// low savings rate, low cache hit rate, and heavy large-tier usage each
// push the score up.
func (s *RiskScorer) Score(summary domain.CostSummary) domain.SpendRisk {
	if summary.TotalRequests == 0 {
		return domain.SpendRisk{Score: 0, Level: "low", Factors: map[string]float64{}}
	}

	savingsFactor := clamp01(1 - summary.SavingsPct/100)
	hitRateFactor := clamp01(1 - summary.HitRatePct/100)

	var largeTierRequests int64
	for _, entry := range summary.ModelDistribution {
		if entry.ModelID == domain.TierLarge {
			largeTierRequests = entry.Requests
		}
	}
	largeTierFactor := clamp01(float64(largeTierRequests) / float64(summary.TotalRequests))

	score := 100 * (s.weights.LowSavingsRate*savingsFactor +
		s.weights.LowCacheHitRate*hitRateFactor +
		s.weights.HighLargeTierUse*largeTierFactor)
	score = roundToTwoDecimals(score)

	return domain.SpendRisk{
		Score: score,
		Level: s.level(score),
		Factors: map[string]float64{
			"low_savings_rate":    roundToTwoDecimals(savingsFactor),
			"low_cache_hit_rate":  roundToTwoDecimals(hitRateFactor),
			"high_large_tier_use": roundToTwoDecimals(largeTierFactor),
		},
	}
}

func (s *RiskScorer) level(score float64) string {
	switch {
	case score >= s.thresholds.High:
		return "high"
	case score >= s.thresholds.Medium:
		return "medium"
	default:
		return "low"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundToTwoDecimals(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
