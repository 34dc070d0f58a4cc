// Package textsim normalizes text and scores how closely two strings match.
// It is shared by the transcription validator and the character matcher.
package textsim

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
)

var (
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	folder      = cases.Fold()
)

// Normalize case-folds s, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	s = folder.String(s)
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Ratio returns the longest-matching-subsequence similarity of a and b in
// [0,1]. Two empty strings are identical.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(chars(a), chars(b))
	return m.Ratio()
}

// Similarity normalizes both strings before computing Ratio.
func Similarity(a, b string) float64 {
	return Ratio(Normalize(a), Normalize(b))
}

// WordAccuracy is the fraction of expected tokens present anywhere in the
// transcript. Both inputs are normalized first.
func WordAccuracy(expected, transcribed string) float64 {
	want := strings.Fields(Normalize(expected))
	if len(want) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(transcribed)) {
		have[w] = struct{}{}
	}

	var hits int
	for _, w := range want {
		if _, ok := have[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
