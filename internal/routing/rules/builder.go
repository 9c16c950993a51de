package rules

// RuleSpec is the minimal shape the builder needs from configuration,
// mirroring config.RuleConfig without importing the config package (kept
// dependency-free so rules stays a leaf package).
type RuleSpec struct {
	Name     string
	Enabled  bool
	Priority int
}

// BuildDefaultStack constructs the three built-in rules from specs,
// falling back to their stock defaults for any rule not named in specs. Unknown rule names are ignored.
func BuildDefaultStack(specs []RuleSpec) *Stack {
	byName := make(map[string]RuleSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	lookup := func(name string, defaultPriority int) (int, bool) {
		if s, ok := byName[name]; ok {
			return s.Priority, s.Enabled
		}
		return defaultPriority, true
	}

	lengthPriority, lengthEnabled := lookup("length_based", 10)
	complexityPriority, complexityEnabled := lookup("complexity_based", 50)
	taskPriority, taskEnabled := lookup("task_type", 100)

	return NewStack([]Rule{
		NewLengthRule(lengthPriority, lengthEnabled, DefaultLengthConfig()),
		NewComplexityRule(complexityPriority, complexityEnabled, DefaultComplexityConfig()),
		NewTaskTypeRule(taskPriority, taskEnabled, DefaultTaskTypeMapping()),
	})
}
