package coverage

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// TokenSortRatio implements the cascade's fuzzy tier: both strings' tokens
// are sorted alphabetically and rejoined before a Levenshtein-based
// similarity ratio is computed, so word order differences between the
// utterance and a topic's fuzzy_norm don't depress the score. Returns a
// value in [0, 100].
func TokenSortRatio(a, b string) float64 {
	return levenshteinRatio(sortTokens(a), sortTokens(b))
}

// sortTokens splits s on whitespace, sorts the tokens, and rejoins them with
// a single space.
func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// levenshteinRatio scores a and b on [0, 100] from their edit distance,
// normalised by the longer string's rune length: identical strings score
// 100, completely dissimilar strings of equal length score close to 0.
func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	dist, err := matchr.Levenshtein(a, b)
	if err != nil {
		return 0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 100
	}
	ratio := (1 - float64(dist)/float64(maxLen)) * 100
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}
