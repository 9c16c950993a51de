package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
)

func TestLengthRule_RoutesSmallUnderThreshold(t *testing.T) {
	r := NewLengthRule(10, true, DefaultLengthConfig())
	q := domain.NewQuery(strings.Repeat("a", 120), "", "", nil)

	d, err := r.Evaluate(q)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.TierSmall, d.ChosenModel)
	assert.Equal(t, []string{"length_based"}, d.RulesApplied)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
}

func TestComplexityRule_OverridesOnComplexKeyword(t *testing.T) {
	r := NewComplexityRule(50, true, DefaultComplexityConfig())
	q := domain.NewQuery("please refactor and optimize this module", "", "", nil)

	d, err := r.Evaluate(q)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.TierLarge, d.ChosenModel)
	assert.GreaterOrEqual(t, d.Confidence, 0.8)
}

func TestTaskTypeRule_MapsKnownTool(t *testing.T) {
	r := NewTaskTypeRule(100, true, DefaultTaskTypeMapping())
	q := domain.NewQuery(strings.Repeat("x", 3000), "search_code", "", nil)

	d, err := r.Evaluate(q)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.TierSmall, d.ChosenModel)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
}

func TestTaskTypeRule_NilWithoutToolName(t *testing.T) {
	r := NewTaskTypeRule(100, true, DefaultTaskTypeMapping())
	q := domain.NewQuery("hello", "", "", nil)

	d, err := r.Evaluate(q)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestStack_EvaluateAllReturnsHighestPriorityMatch(t *testing.T) {
	stack := NewStack([]Rule{
		NewLengthRule(10, true, DefaultLengthConfig()),
		NewTaskTypeRule(100, true, DefaultTaskTypeMapping()),
	})

	q := domain.NewQuery(strings.Repeat("x", 3000), "search_code", "", nil)
	d := stack.EvaluateAll(q)
	require.NotNil(t, d)
	assert.Equal(t, "task_type", d.RulesApplied[0])

	hits := stack.HitCounts()
	assert.Equal(t, int64(1), hits["task_type"])
}

type failingRule struct{ calls int }

func (f *failingRule) Name() string  { return "failing" }
func (f *failingRule) Priority() int { return 1000 }
func (f *failingRule) Enabled() bool { return true }
func (f *failingRule) Evaluate(domain.Query) (*domain.RoutingDecision, error) {
	f.calls++
	return nil, errors.New("boom")
}

func TestStack_DisablesRuleAfterRepeatedFailures(t *testing.T) {
	fr := &failingRule{}
	stack := NewStack([]Rule{fr, NewLengthRule(10, true, DefaultLengthConfig())})

	for i := 0; i < maxConsecutiveFailures+2; i++ {
		stack.EvaluateAll(domain.NewQuery("hi", "", "", nil))
	}

	assert.Equal(t, maxConsecutiveFailures, fr.calls)
	assert.True(t, stack.isDisabled("failing"))
}

func TestComplexityRule_CodeBlockUpgradesSmallToMedium(t *testing.T) {
	r := NewComplexityRule(50, true, DefaultComplexityConfig())
	q := domain.NewQuery("show ```code```", "", "", nil)

	d, err := r.Evaluate(q)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.TierMedium, d.ChosenModel)
}
