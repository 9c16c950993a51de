package rules

import (
	"fmt"

	"signalhub/internal/domain"
)

// DefaultTaskTypeMapping is the built-in tool-name -> tier mapping.
func DefaultTaskTypeMapping() map[string]domain.ModelTier {
	return map[string]domain.ModelTier{
		"search_code":          domain.TierSmall,
		"find_similar":         domain.TierSmall,
		"explain_code":         domain.TierMedium,
		"get_context":          domain.TierMedium,
		"analyze_architecture": domain.TierLarge,
		"refactor_code":        domain.TierLarge,
		"security_audit":       domain.TierLarge,
	}
}

// TaskTypeRule routes by the query's tool name, highest priority of the
// three built-in rules: an explicit tool identity beats any text heuristic.
type TaskTypeRule struct {
	priority int
	enabled  bool
	mapping  map[string]domain.ModelTier
}

// NewTaskTypeRule builds a TaskTypeRule; a nil/empty mapping falls back to
// DefaultTaskTypeMapping.
func NewTaskTypeRule(priority int, enabled bool, mapping map[string]domain.ModelTier) *TaskTypeRule {
	if len(mapping) == 0 {
		mapping = DefaultTaskTypeMapping()
	}
	return &TaskTypeRule{priority: priority, enabled: enabled, mapping: mapping}
}

func (r *TaskTypeRule) Name() string  { return "task_type" }
func (r *TaskTypeRule) Priority() int { return r.priority }
func (r *TaskTypeRule) Enabled() bool { return r.enabled }

func (r *TaskTypeRule) Evaluate(q domain.Query) (*domain.RoutingDecision, error) {
	if q.ToolName == "" {
		return nil, nil
	}
	model, ok := r.mapping[q.ToolName]
	if !ok {
		return nil, nil
	}
	return &domain.RoutingDecision{
		ChosenModel:  model,
		ReasonText:   fmt.Sprintf("tool %q mapped to %s", q.ToolName, model),
		Confidence:   0.95,
		RulesApplied: []string{r.Name()},
		Metadata:     map[string]any{"tool_name": q.ToolName},
	}, nil
}
