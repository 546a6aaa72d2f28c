package grading

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText canonicalizes free text for comparison: NFC composition,
// surrounding and repeated whitespace collapsed, Unicode case folding.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// A Caser carries state, so one is built per call.
	return norm.NFC.String(cases.Fold().String(s))
}

func normalizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if n := NormalizeText(it); n != "" {
			out = append(out, n)
		}
	}
	return out
}
