package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
)

func TestComplexityRule_SynonymExpansionDisabledByDefault(t *testing.T) {
	r := NewComplexityRule(50, true, DefaultComplexityConfig())
	q := domain.NewQuery("please streamline this module", "", "", nil)

	d, err := r.Evaluate(q)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.NotEqual(t, domain.TierLarge, d.ChosenModel)
}

func TestComplexityRule_SynonymExpansionWhenEnabled(t *testing.T) {
	cfg := DefaultComplexityConfig()
	cfg.SynonymsEnabled = true
	r := NewComplexityRule(50, true, cfg)
	q := domain.NewQuery("please streamline this module", "", "", nil)

	d, err := r.Evaluate(q)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.TierLarge, d.ChosenModel)
}

func TestBuildDefaultStack_UsesSpecOverridesAndDefaults(t *testing.T) {
	stack := BuildDefaultStack([]RuleSpec{
		{Name: "length_based", Enabled: false, Priority: 10},
	})

	q := domain.NewQuery("hello", "", "", nil)
	d := stack.EvaluateAll(q)
	require.NotNil(t, d)
	assert.NotEqual(t, "length_based", d.RulesApplied[0])
}
