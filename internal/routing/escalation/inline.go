package escalation

import (
	"regexp"
	"strings"

	"signalhub/internal/domain"
)

// inlineHintPattern matches a leading or embedded @small/@medium/@large
// token, case-insensitive. Only the abstract tier tokens are accepted;
// vendor model names never appear anywhere in the routing core, so hints
// naming them would be meaningless.
var inlineHintPattern = regexp.MustCompile(`(?i)@(small|medium|large)\b`)

// parseInlineHint looks for one inline hint token in text, strips it, and
// returns the parsed tier plus the remainder. The remainder must be
// non-empty for the hint to apply.
func parseInlineHint(text string) (domain.ModelTier, string, bool) {
	loc := inlineHintPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text, false
	}

	tier, ok := domain.ParseTier(text[loc[2]:loc[3]])
	if !ok {
		return "", text, false
	}

	stripped := collapseSpaces(text[:loc[0]] + text[loc[1]:])
	if stripped == "" {
		return "", text, false
	}
	return tier, stripped, true
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
