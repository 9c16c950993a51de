package costs

import "signalhub/internal/domain"

// Calculator computes the cost and savings of a single model invocation.
// It holds no mutable state: every method is a pure function of its
// arguments and the pricing table it was built with.
type Calculator struct {
	pricing *PricingTable
}

// NewCalculator builds a Calculator over the given pricing table.
func NewCalculator(pricing *PricingTable) *Calculator {
	return &Calculator{pricing: pricing}
}

// CostStrict returns the USD cost of inputTokens/outputTokens at tier's
// pricing, or domain.ErrUnknownModel for an unrecognised tier.
func (c *Calculator) CostStrict(tier domain.ModelTier, inputTokens, outputTokens int64) (float64, error) {
	mc, ok := c.pricing.Price(tier)
	if !ok {
		return 0, domain.ErrUnknownModel
	}
	inputCost := float64(inputTokens) / 1_000_000 * mc.InputPricePer1M
	outputCost := float64(outputTokens) / 1_000_000 * mc.OutputPricePer1M
	return inputCost + outputCost, nil
}

// Cost is CostStrict with an unrecognised tier priced at the largest
// configured tier, the conservative default for callers that must not
// fail the surrounding request over a pricing-table gap.
func (c *Calculator) Cost(tier domain.ModelTier, inputTokens, outputTokens int64) float64 {
	cost, err := c.CostStrict(tier, inputTokens, outputTokens)
	if err != nil {
		cost, _ = c.CostStrict(c.pricing.LargestTier(), inputTokens, outputTokens)
	}
	return cost
}

// Baseline is the cost the same call would have had at the largest
// configured tier, the reference point savings are measured against.
func (c *Calculator) Baseline(inputTokens, outputTokens int64) float64 {
	return c.Cost(c.pricing.LargestTier(), inputTokens, outputTokens)
}

// Savings is Baseline minus the actual cost at tier. Negative only if tier
// is priced above the baseline tier, which does not happen with a
// correctly configured pricing table.
func (c *Calculator) Savings(tier domain.ModelTier, inputTokens, outputTokens int64) float64 {
	return c.Baseline(inputTokens, outputTokens) - c.Cost(tier, inputTokens, outputTokens)
}

// RelativeCost exposes the pricing table's derived relative-cost scalar,
// used by escalate_query's cost-impact note.
func (c *Calculator) RelativeCost(tier domain.ModelTier) float64 {
	return c.pricing.RelativeCost(tier)
}
