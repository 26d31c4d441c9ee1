package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize uppercases s, strips diacritics, and collapses runs of
// whitespace into single spaces.
func Normalize(s string) string {
	// Chained transformers carry state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}

// LastToken returns the final whitespace-separated token of s, or "".
func LastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// nameSuffixes are trailing tokens that are never a surname.
var nameSuffixes = map[string]struct{}{
	"JR": {}, "SR": {}, "II": {}, "III": {}, "IV": {}, "V": {},
	"TRUST": {}, "ESTATE": {}, "EST": {},
	"LLC": {}, "INC": {}, "LP": {}, "LTD": {}, "CO": {}, "BANK": {},
}

// PotentialLastName guesses the surname in a "FIRST MIDDLE LAST SUFFIX"
// name by taking the last token that is not a generational suffix or an
// entity marker.
func PotentialLastName(name string) string {
	fields := strings.Fields(strings.ToUpper(name))
	for i := len(fields) - 1; i >= 0; i-- {
		if _, skip := nameSuffixes[fields[i]]; !skip {
			return fields[i]
		}
	}
	if len(fields) > 0 {
		return fields[len(fields)-1]
	}
	return ""
}
