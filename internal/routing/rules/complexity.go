package rules

import (
	"strings"

	"signalhub/internal/domain"
)

// ComplexityConfig configures the complexity-based rule's keyword sets
// and optional synonym expansion.
type ComplexityConfig struct {
	Simple          []string
	Moderate        []string
	Complex         []string
	SynonymsEnabled bool
	Synonyms        []KeywordSynonymGroup
}

// DefaultComplexityConfig returns the stock keyword sets, with synonym
// expansion disabled.
func DefaultComplexityConfig() ComplexityConfig {
	return ComplexityConfig{
		Simple:   []string{"what", "when", "list", "show", "find", "get"},
		Moderate: []string{"explain", "implement", "build", "fix", "why", "how"},
		Complex:  []string{"analyze", "design", "refactor", "optimize", "audit"},
	}
}

// ComplexityRule classifies a query by the keyword vocabulary it uses,
// mid priority: more specific than length, less specific than tool-name
// mapping.
type ComplexityRule struct {
	priority int
	enabled  bool
	cfg      ComplexityConfig

	simpleSet   map[string]bool
	moderateSet map[string]bool
	complexSet  map[string]bool
}

// NewComplexityRule builds a ComplexityRule, pre-expanding the keyword
// sets with synonyms if cfg.SynonymsEnabled.
func NewComplexityRule(priority int, enabled bool, cfg ComplexityConfig) *ComplexityRule {
	def := DefaultComplexityConfig()
	if len(cfg.Simple) == 0 {
		cfg.Simple = def.Simple
	}
	if len(cfg.Moderate) == 0 {
		cfg.Moderate = def.Moderate
	}
	if len(cfg.Complex) == 0 {
		cfg.Complex = def.Complex
	}
	groups := cfg.Synonyms
	if cfg.SynonymsEnabled && len(groups) == 0 {
		groups = ComplexitySynonyms
	}
	if !cfg.SynonymsEnabled {
		groups = nil
	}

	return &ComplexityRule{
		priority:    priority,
		enabled:     enabled,
		cfg:         cfg,
		simpleSet:   expandKeywordSet(cfg.Simple, groups),
		moderateSet: expandKeywordSet(cfg.Moderate, groups),
		complexSet:  expandKeywordSet(cfg.Complex, groups),
	}
}

func (r *ComplexityRule) Name() string  { return "complexity_based" }
func (r *ComplexityRule) Priority() int { return r.priority }
func (r *ComplexityRule) Enabled() bool { return r.enabled }

func (r *ComplexityRule) Evaluate(q domain.Query) (*domain.RoutingDecision, error) {
	lower := strings.ToLower(q.Text)
	words := tokenize(lower)

	simpleHits := countMatches(words, r.simpleSet, lower)
	moderateHits := countMatches(words, r.moderateSet, lower)
	complexHits := countMatches(words, r.complexSet, lower)

	var model domain.ModelTier
	var confidence float64
	var reason string

	switch {
	case complexHits > 0:
		model = domain.TierLarge
		confidence = min90(0.7 + 0.1*float64(complexHits))
		reason = "complex"
	case moderateHits > simpleHits:
		model = domain.TierMedium
		confidence = 0.75
		reason = "moderate"
	case simpleHits > 0:
		model = domain.TierSmall
		confidence = 0.7
		reason = "simple"
	default:
		model = domain.TierMedium
		confidence = 0.5
		reason = "default"
	}

	hasCodeBlock := strings.Contains(q.Text, "```")
	if model == domain.TierSmall && (hasCodeBlock || q.EstimatedTokens() > 500) {
		model = domain.TierMedium
		confidence *= 0.9
		reason = "upgraded (code block or long prompt)"
	}

	return &domain.RoutingDecision{
		ChosenModel:  model,
		ReasonText:   reason,
		Confidence:   confidence,
		RulesApplied: []string{r.Name()},
		Metadata: map[string]any{
			"simple_hits":    simpleHits,
			"moderate_hits":  moderateHits,
			"complex_hits":   complexHits,
			"has_code_block": hasCodeBlock,
		},
	}, nil
}

func min90(v float64) float64 {
	if v > 0.9 {
		return 0.9
	}
	return v
}

func tokenize(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// countMatches counts how many distinct entries of expanded are present
// in the query: single words via the tokenized set, multi-word phrases
// via substring search over the lowercased text.
func countMatches(words map[string]bool, expanded map[string]bool, lowerText string) int {
	count := 0
	for w := range expanded {
		if strings.Contains(w, " ") {
			if strings.Contains(lowerText, w) {
				count++
			}
		} else if words[w] {
			count++
		}
	}
	return count
}
