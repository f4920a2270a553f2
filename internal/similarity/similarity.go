// Package similarity compares two free-text customer names and produces a
// 0–100 score. Wallet apps truncate, reorder, and re-accent names, so the
// default scorer works on normalized tokens; a Levenshtein variant is
// available for callers that need character-level tolerance (OCR noise).
package similarity

import (
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the score at or above which two names are treated as
// the same person.
const DefaultThreshold = 95

// stripMarks decomposes to NFD, removes combining marks, and recomposes,
// so "Pérez" and "Perez" normalize identically.
var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize lowercases, strips diacritics, removes punctuation, and
// collapses runs of whitespace to a single space.
func Normalize(s string) string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Score compares two names on their normalized forms:
//
//	exact match            → 100
//	one contains the other →  95 (covers initials and truncation)
//	otherwise              → token overlap ratio × 100
//
// A token of the shorter side counts as matched when any token of the
// other side contains it or is contained by it. Either side empty after
// normalization scores 0.
func Score(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 95
	}

	ta := strings.Fields(na)
	tb := strings.Fields(nb)
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	matched := 0
	for _, short := range ta {
		for _, long := range tb {
			if strings.Contains(long, short) || strings.Contains(short, long) {
				matched++
				break
			}
		}
	}
	return matched * 100 / len(tb)
}

// LevenshteinScore converts edit distance between normalized forms into a
// 0–100 score. Useful when OCR mangles individual characters rather than
// whole tokens.
func LevenshteinScore(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	if na == "" {
		if nb == "" {
			return 100
		}
		return 0
	}
	if nb == "" {
		return 0
	}
	ra, rb := []rune(na), []rune(nb)
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	score := (maxLen - dist) * 100 / maxLen
	if score < 0 {
		return 0
	}
	return score
}

// Similar reports whether Score(a, b) meets threshold. A threshold <= 0
// falls back to DefaultThreshold.
func Similar(a, b string, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Score(a, b) >= threshold
}
