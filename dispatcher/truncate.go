package dispatcher

import (
	"strings"
	"unicode"
)

const ellipsis = "…"

// Truncate caps s at limit runes. When a cut is needed it prefers a
// whitespace boundary within the final 20% of the budget so words are
// not split mid-way, falls back to a hard cut otherwise, and appends
// an ellipsis marker.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		limit = DefaultMaxContentLength
	}

	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := limit
	floor := limit - limit/5

	for i := limit; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			cut = i - 1
			break
		}
	}

	return strings.TrimRight(string(runes[:cut]), " \t\n") + ellipsis
}
