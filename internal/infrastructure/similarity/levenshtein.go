package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Levenshtein scores strings as 1 - distance/longest, counted in runes.
type Levenshtein struct{}

func NewLevenshtein() Levenshtein {
	return Levenshtein{}
}

func (Levenshtein) Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
