package rules

import (
	"fmt"

	"signalhub/internal/domain"
)

// LengthConfig configures the length-based rule's thresholds.
type LengthConfig struct {
	HaikuThreshold  int // <= this many chars -> small
	SonnetThreshold int // <= this many chars -> medium; above -> large
}

// DefaultLengthConfig returns the stock thresholds.
func DefaultLengthConfig() LengthConfig {
	return LengthConfig{HaikuThreshold: 500, SonnetThreshold: 2000}
}

// LengthRule routes purely on prompt length, lowest priority of the three
// built-in rules: a coarse fallback when nothing more specific fires.
type LengthRule struct {
	priority int
	enabled  bool
	cfg      LengthConfig
}

// NewLengthRule builds a LengthRule, filling unset thresholds with
// DefaultLengthConfig's values.
func NewLengthRule(priority int, enabled bool, cfg LengthConfig) *LengthRule {
	if cfg.HaikuThreshold <= 0 {
		cfg.HaikuThreshold = DefaultLengthConfig().HaikuThreshold
	}
	if cfg.SonnetThreshold <= 0 {
		cfg.SonnetThreshold = DefaultLengthConfig().SonnetThreshold
	}
	return &LengthRule{priority: priority, enabled: enabled, cfg: cfg}
}

func (r *LengthRule) Name() string  { return "length_based" }
func (r *LengthRule) Priority() int { return r.priority }
func (r *LengthRule) Enabled() bool { return r.enabled }

func (r *LengthRule) Evaluate(q domain.Query) (*domain.RoutingDecision, error) {
	length := q.LengthChars()

	var model domain.ModelTier
	var confidence float64
	switch {
	case length <= r.cfg.HaikuThreshold:
		model, confidence = domain.TierSmall, 0.9
	case length <= r.cfg.SonnetThreshold:
		model, confidence = domain.TierMedium, 0.85
	default:
		model, confidence = domain.TierLarge, 0.80
	}

	return &domain.RoutingDecision{
		ChosenModel:  model,
		ReasonText:   fmt.Sprintf("query length %d chars", length),
		Confidence:   confidence,
		RulesApplied: []string{r.Name()},
		Metadata: map[string]any{
			"length_chars":     length,
			"haiku_threshold":  r.cfg.HaikuThreshold,
			"sonnet_threshold": r.cfg.SonnetThreshold,
		},
	}, nil
}
