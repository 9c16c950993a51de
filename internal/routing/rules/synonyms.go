package rules

// KeywordSynonymGroup is a canonical keyword plus its semantic variants,
// letting operators broaden a keyword set without hand-maintaining every
// variant.
type KeywordSynonymGroup struct {
	Canonical string
	Synonyms  []string
}

// ComplexitySynonyms are the default expansions available when a
// complexity rule enables synonym matching. Disabled by default; the
// bare keyword sets remain the default behaviour.
var ComplexitySynonyms = []KeywordSynonymGroup{
	{Canonical: "optimize", Synonyms: []string{"streamline", "tune", "speed up"}},
	{Canonical: "refactor", Synonyms: []string{"restructure", "reorganize", "rework"}},
	{Canonical: "analyze", Synonyms: []string{"investigate", "examine", "inspect"}},
	{Canonical: "design", Synonyms: []string{"architect", "model", "plan out"}},
	{Canonical: "audit", Synonyms: []string{"review", "assess", "evaluate"}},
	{Canonical: "explain", Synonyms: []string{"describe", "clarify", "walk through"}},
	{Canonical: "implement", Synonyms: []string{"build", "write", "create"}},
	{Canonical: "fix", Synonyms: []string{"repair", "patch", "resolve"}},
}

// expandKeywordSet returns base plus, for every group whose canonical
// word is present in base, that group's synonyms. Matching against any
// returned word counts as a hit for that keyword tier.
func expandKeywordSet(base []string, groups []KeywordSynonymGroup) map[string]bool {
	set := make(map[string]bool, len(base))
	for _, w := range base {
		set[w] = true
	}
	for _, g := range groups {
		if set[g.Canonical] {
			for _, syn := range g.Synonyms {
				set[syn] = true
			}
		}
	}
	return set
}
