package semantic

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeQuery canonicalises query text for the embedder's reuse-cache
// key: NFKC unicode normalisation, lowercasing, and whitespace collapsing.
// This is narrower than a security-evasion normaliser: it exists so two
// queries that differ only in case or incidental whitespace share one
// reuse-cache key and embedding, not to defeat obfuscation.
func NormalizeQuery(input string) string {
	result := norm.NFKC.String(input)
	result = strings.ToLower(result)
	result = whitespaceRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}
