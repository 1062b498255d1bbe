// Package textnorm normalizes command and label text and scores the
// similarity of two normalized strings.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize composes s to NFC, folds case, replaces punctuation and symbols
// with spaces and collapses runs of whitespace.
func Normalize(s string) string {
	s = cases.Fold().String(norm.NFC.String(s))
	s = strings.Map(func(r rune) rune {
		if r == '\'' || r == '’' {
			return -1
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Ratio returns 1 - editDistance/maxLen over runes, so identical strings
// score 1 and completely different strings score 0.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// Containment scores how much of field the needle covers when field
// contains needle, or how much of needle field covers when needle contains
// field as whole words. It returns 0 otherwise.
func Containment(needle, field string) float64 {
	if needle == "" || field == "" {
		return 0
	}
	ln, lf := utf8.RuneCountInString(needle), utf8.RuneCountInString(field)
	switch {
	case strings.Contains(field, needle):
		return float64(ln) / float64(lf)
	case strings.Contains(" "+needle+" ", " "+field+" "):
		return float64(lf) / float64(ln)
	}
	return 0
}
