package semantic

import (
	"github.com/agnivade/levenshtein"
)

// fuzzyMinLength is the shortest normalized text the reuse cache will
// attempt fuzzy matching against; below this length, edit-distance ratios
// are too noisy to trust (two unrelated five-word queries can differ by a
// single edit) so only exact keys are reused.
const fuzzyMinLength = 20

// fuzzyReuseThreshold is the minimum similarity ratio, derived from
// Levenshtein distance, for two normalized queries to share an embedding
// in the reuse cache.
const fuzzyReuseThreshold = 0.93

// fuzzySimilarity returns a [0,1] ratio derived from edit distance: 1 for
// identical strings, 0 when the distance is at least as long as the
// longer string.
func fuzzySimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longer)
}

// fuzzyMatch scans candidates (normalized text keyed by reuse key) for one
// within fuzzyReuseThreshold of normalized, returning its key. Used by
// CachingEmbedder so near-duplicate queries (a typo, a word reordered by a
// client retry) reuse an embedding instead of paying for a fresh one.
func fuzzyMatch(normalized string, candidates map[string]string) (string, bool) {
	if len(normalized) < fuzzyMinLength {
		return "", false
	}
	bestKey := ""
	bestScore := fuzzyReuseThreshold
	for key, text := range candidates {
		if len(text) < fuzzyMinLength {
			continue
		}
		if score := fuzzySimilarity(normalized, text); score >= bestScore {
			bestScore = score
			bestKey = key
		}
	}
	return bestKey, bestKey != ""
}
