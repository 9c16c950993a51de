// Package costs implements the cost calculator and cost ledger:
// pure per-call pricing, an append-only usage ledger, and spend-risk
// scoring over ledger summaries.
package costs

import (
	"signalhub/internal/config"
	"signalhub/internal/domain"
)

// PricingTable holds per-tier pricing, keyed by domain.ModelTier.
type PricingTable struct {
	tiers map[domain.ModelTier]config.ModelConfig
}

// NewPricingTable builds a PricingTable from configured tier pricing.
func NewPricingTable(tiers map[domain.ModelTier]config.ModelConfig) *PricingTable {
	cp := make(map[domain.ModelTier]config.ModelConfig, len(tiers))
	for k, v := range tiers {
		cp[k] = v
	}
	return &PricingTable{tiers: cp}
}

// Price returns the configured pricing for tier, and whether it is known.
func (p *PricingTable) Price(tier domain.ModelTier) (config.ModelConfig, bool) {
	mc, ok := p.tiers[tier]
	return mc, ok
}

// RelativeCost is output_price(tier) / output_price(small): the Open
// Question resolution for a dimensionless per-tier cost scalar, derived
// from pricing rather than duplicated as its own config value.
func (p *PricingTable) RelativeCost(tier domain.ModelTier) float64 {
	small, ok := p.tiers[domain.TierSmall]
	if !ok || small.OutputPricePer1M == 0 {
		return 1.0
	}
	mc, ok := p.tiers[tier]
	if !ok {
		return 1.0
	}
	return mc.OutputPricePer1M / small.OutputPricePer1M
}

// LargestTier returns the highest-cost tier configured, used as the
// baseline for savings calculations.
func (p *PricingTable) LargestTier() domain.ModelTier {
	best := domain.TierLarge
	bestPrice := -1.0
	for tier, mc := range p.tiers {
		if mc.OutputPricePer1M > bestPrice {
			bestPrice = mc.OutputPricePer1M
			best = tier
		}
	}
	return best
}
