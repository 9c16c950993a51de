// Package rules implements the Rule Stack: an ordered set of
// deterministic classifiers that each turn a Query into an optional
// RoutingDecision, evaluated by the Routing Engine in descending priority.
package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"signalhub/internal/domain"
)

// Rule is one deterministic classifier in the stack.
type Rule interface {
	Name() string
	Priority() int
	Enabled() bool
	Evaluate(q domain.Query) (*domain.RoutingDecision, error)
}

// maxConsecutiveFailures is how many evaluation errors a rule tolerates
// before the stack disables it for the remainder of the process lifetime.
const maxConsecutiveFailures = 5

// Stack evaluates rules in descending priority order, returning the first
// non-nil decision.
type Stack struct {
	rules []Rule

	mu        sync.Mutex
	failures  map[string]int
	disabled  map[string]bool
	hitCounts map[string]int64
}

// NewStack builds a Stack, ordering rules by descending priority. Ties
// keep the input order (stable sort).
func NewStack(rules []Rule) *Stack {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Stack{
		rules:     sorted,
		failures:  make(map[string]int),
		disabled:  make(map[string]bool),
		hitCounts: make(map[string]int64),
	}
}

// EvaluateAll iterates rules in priority order and returns the first
// non-nil decision, or nil if no rule fires.
func (s *Stack) EvaluateAll(q domain.Query) *domain.RoutingDecision {
	for _, r := range s.rules {
		if !r.Enabled() || s.isDisabled(r.Name()) {
			continue
		}

		decision, err := s.safeEvaluate(r, q)
		if err != nil {
			s.recordFailure(r.Name(), err)
			continue
		}
		s.resetFailures(r.Name())
		if decision != nil {
			s.recordHit(r.Name())
			return decision
		}
	}
	return nil
}

// HitCounts returns a snapshot of how many times each rule has produced
// the winning decision, for the Routing Engine's metrics.
func (s *Stack) HitCounts() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.hitCounts))
	for k, v := range s.hitCounts {
		out[k] = v
	}
	return out
}

func (s *Stack) safeEvaluate(r Rule, q domain.Query) (decision *domain.RoutingDecision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule %s panicked: %v", r.Name(), rec)
		}
	}()
	return r.Evaluate(q)
}

func (s *Stack) isDisabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[name]
}

func (s *Stack) recordFailure(name string, err error) {
	s.mu.Lock()
	s.failures[name]++
	count := s.failures[name]
	if count >= maxConsecutiveFailures {
		s.disabled[name] = true
	}
	s.mu.Unlock()

	slog.Warn("rule evaluation failed", "rule", name, "err", err, "consecutive_failures", count)
	if count >= maxConsecutiveFailures {
		slog.Warn("rule auto-disabled after repeated failures", "rule", name)
	}
}

func (s *Stack) resetFailures(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, name)
}

func (s *Stack) recordHit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hitCounts[name]++
}
