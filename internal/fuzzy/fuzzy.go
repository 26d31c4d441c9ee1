// Package fuzzy scores string similarity on a 0..100 scale for comparing
// owner names and legal descriptions across public-record indexes.
package fuzzy

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// indel prices a substitution as a delete plus an insert, which makes
// Similarity equal to 1 - distance/(len(a)+len(b)).
var indel = levenshtein.NewParams().SubCost(2)

// Ratio returns the normalized indel similarity of a and b.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	return levenshtein.Similarity(a, b, indel) * 100
}

// PartialRatio returns the best Ratio between the shorter string and any
// window of the longer string of the same length. Windows hanging over
// either end of the longer string are included.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}

	needle := string(short)
	best := 0.0
	for start := 1 - len(short); start < len(long); start++ {
		lo := max(start, 0)
		hi := min(start+len(short), len(long))
		if r := Ratio(needle, string(long[lo:hi])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSetRatio compares the whitespace-separated token sets of a and b.
// A string whose tokens are all contained in the other scores 100, so word
// order, duplicates, and extra tokens on one side do not lower the score.
// When the sets share tokens, the leftover tokens are compared as if each
// were appended to the shared ones, so shared words count toward the
// similarity of near-miss leftovers.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}

	if len(common) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	diffA := strings.Join(onlyA, " ")
	diffB := strings.Join(onlyB, " ")
	if len(common) == 0 {
		return Ratio(diffA, diffB)
	}

	// Lengths of "sect diffA" and "sect diffB"; the edits between them are
	// exactly the edits between the leftovers.
	sectLen := utf8.RuneCountInString(strings.Join(common, " "))
	lenA := utf8.RuneCountInString(diffA)
	lenB := utf8.RuneCountInString(diffB)
	sectALen := sectLen + 1 + lenA
	sectBLen := sectLen + 1 + lenB

	dist := levenshtein.Distance(diffA, diffB, indel)
	best := normalized(dist, sectALen+sectBLen)
	best = max(best,
		normalized(1+lenA, sectLen+sectALen),
		normalized(1+lenB, sectLen+sectBLen),
	)
	return best
}

// normalized turns an indel distance over strings of combined length total
// into a 0..100 similarity.
func normalized(dist, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 - 100*float64(dist)/float64(total)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
