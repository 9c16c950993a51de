package engine

import "signalhub/internal/domain"

// WorkloadProfile describes a projected workload for cost-savings
// estimation, independent of any ledger history.
type WorkloadProfile struct {
	DailyRequests     int64
	ModelDistribution map[domain.ModelTier]float64 // fraction of requests per tier, should sum to ~1
	AvgInputTokens    int64
	AvgOutputTokens   int64
	CacheHitRate      float64 // fraction in [0, 1]
}

// SavingsEstimate is the monthly projection EstimateCostSavings produces.
type SavingsEstimate struct {
	ProjectedMonthlyCostUSD float64
	BaselineMonthlyCostUSD  float64
	TotalSavingsUSD         float64
	RoutingSavingsUSD       float64
	CacheSavingsUSD         float64
	SavingsPct              float64
}

const monthlyDays = 30

// EstimateCostSavings replays a workload profile against the configured
// pricing table to project monthly spend with and without routing/caching,
// without requiring any real ledger history. Useful for capacity planning.
func (e *Engine) EstimateCostSavings(profile WorkloadProfile) SavingsEstimate {
	monthlyRequests := float64(profile.DailyRequests * monthlyDays)
	cacheableRequests := monthlyRequests * clamp01(profile.CacheHitRate)
	invokedRequests := monthlyRequests - cacheableRequests

	var projectedCost, baselineCost, routingSavings, cacheSavings float64

	for tier, fraction := range profile.ModelDistribution {
		tierRequests := invokedRequests * fraction
		tierCost := e.calculator.Cost(tier, profile.AvgInputTokens, profile.AvgOutputTokens) * tierRequests
		tierBaseline := e.calculator.Baseline(profile.AvgInputTokens, profile.AvgOutputTokens) * tierRequests
		projectedCost += tierCost
		baselineCost += tierBaseline
		routingSavings += tierBaseline - tierCost
	}

	cacheBaseline := e.calculator.Baseline(profile.AvgInputTokens, profile.AvgOutputTokens) * cacheableRequests
	cacheSavings = cacheBaseline
	baselineCost += cacheBaseline

	totalSavings := routingSavings + cacheSavings
	var savingsPct float64
	if baselineCost > 0 {
		savingsPct = totalSavings / baselineCost * 100
	}

	return SavingsEstimate{
		ProjectedMonthlyCostUSD: projectedCost,
		BaselineMonthlyCostUSD:  baselineCost,
		TotalSavingsUSD:         totalSavings,
		RoutingSavingsUSD:       routingSavings,
		CacheSavingsUSD:         cacheSavings,
		SavingsPct:              savingsPct,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
