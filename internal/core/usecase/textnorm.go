package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents strips combining marks: "Víssimo" becomes "Vissimo".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// foldKey is the comparison key used for case and accent insensitive matching.
func foldKey(s string) string {
	return strings.ToLower(foldAccents(strings.TrimSpace(s)))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// stripNonWord removes every rune that is not a letter, digit or underscore.
func stripNonWord(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, s)
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func countContains(text string, needles []string) int {
	n := 0
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			n++
		}
	}
	return n
}

// orderedSet keeps insertion order without duplicates.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func (s *orderedSet) add(values ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) has(v string) bool {
	_, ok := s.seen[v]
	return ok
}

func (s *orderedSet) values() []string {
	return s.items
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
