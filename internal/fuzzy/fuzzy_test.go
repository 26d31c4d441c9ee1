package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "OAK RIDGE", "OAK RIDGE", 100},
		{"both empty", "", "", 100},
		{"one empty", "OAK", "", 0},
		{"one substitution", "ABC", "ABD", 66.67},
		{"disjoint", "ABC", "XYZ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 0.01)
		})
	}
}

func TestPartialRatio(t *testing.T) {
	assert.InDelta(t, 100, PartialRatio("OAK", "OAK RIDGE SEC 2"), 0.01)
	assert.InDelta(t, 100, PartialRatio("OAK RIDGE SEC 2", "RIDGE"), 0.01)
	assert.InDelta(t, 0, PartialRatio("", "OAK"), 0.01)
	assert.InDelta(t, 100, PartialRatio("", ""), 0.01)
	assert.Less(t, PartialRatio("TR 5 BLK 3", "MAPLE GLEN"), 70.0)
}

func TestTokenSetRatio(t *testing.T) {
	t.Run("subset scores 100", func(t *testing.T) {
		assert.InDelta(t, 100, TokenSetRatio("SMITH", "SMITH JOHN A"), 0.01)
	})

	t.Run("order insensitive", func(t *testing.T) {
		assert.InDelta(t, 100, TokenSetRatio("JOHN SMITH", "SMITH JOHN"), 0.01)
	})

	t.Run("empty side", func(t *testing.T) {
		assert.InDelta(t, 0, TokenSetRatio("", "SMITH"), 0.01)
		assert.InDelta(t, 0, TokenSetRatio("SMITH", "   "), 0.01)
	})

	t.Run("shared prefix token", func(t *testing.T) {
		// "OAK" vs "OAK RIDGE" is the best pairing: 1 - 6/12.
		assert.InDelta(t, 50, TokenSetRatio("OAK RIDGE", "OAK HOLLOW"), 0.01)
	})

	t.Run("no common tokens", func(t *testing.T) {
		assert.InDelta(t, Ratio("ABC", "ABD"), TokenSetRatio("ABC", "ABD"), 0.01)
	})
}

// Reference values match rapidfuzz's fuzz.ratio, fuzz.partial_ratio and
// fuzz.token_set_ratio with no preprocessing.
func TestScores_ReferenceValues(t *testing.T) {
	tests := []struct {
		name  string
		score func(a, b string) float64
		a, b  string
		want  float64
	}{
		{"ratio trailing punctuation", Ratio, "this is a test", "this is a test!", 96.55},
		{"ratio one letter", Ratio, "JOHN SMITH", "JOHN SMYTH", 90},
		{"partial exact window", PartialRatio, "this is a test", "this is a test!", 100},
		{"partial near window", PartialRatio, "SMYTH", "JOHN SMITH", 80},
		{"partial best of two windows", PartialRatio, "ABCD", "XBCDY", 75},
		{"token set duplicate words", TokenSetRatio, "fuzzy was a bear", "fuzzy fuzzy was a bear", 100},
		{"token set shared first name", TokenSetRatio, "JOHN SMITH", "JOHN SMYTH", 90},
		{"token set shared word, two leftovers", TokenSetRatio, "MARY ANN JOHNSON", "MARY ANNE JOHNSTON", 94.12},
		{"token set shared word, unlike leftovers", TokenSetRatio, "OAK RIDGE", "OAK HOLLOW", 50},
		{"token set nothing shared", TokenSetRatio, "JOHN SMITH", "SMYTH JON", 84.21},
		{"token set single words", TokenSetRatio, "SMITH", "SMYTH", 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.score(tt.a, tt.b), 0.01)
			assert.InDelta(t, tt.want, tt.score(tt.b, tt.a), 0.01, "score must be symmetric")
		})
	}
}

func TestTokenSetRatio_SharedWordsLiftNearMisses(t *testing.T) {
	// The leftovers alone score 80; the shared first name lifts the pair
	// clear of the owner-match threshold.
	assert.InDelta(t, 80, Ratio("SMITH", "SMYTH"), 0.01)
	assert.Greater(t, TokenSetRatio("JOHN SMITH", "JOHN SMYTH"), 85.0)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "JOSE GARCIA", Normalize("  José   garcía "))
	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "LT 5 BLK 3", Normalize("lt 5\tblk 3"))
}

func TestLastToken(t *testing.T) {
	assert.Equal(t, "DOE", LastToken("JANE Q DOE"))
	assert.Equal(t, "", LastToken(""))
}

func TestPotentialLastName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"JOHN SMITH JR", "SMITH"},
		{"mary jones", "JONES"},
		{"DOE FAMILY TRUST", "FAMILY"},
		{"LLC", "LLC"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PotentialLastName(tt.in), tt.in)
	}
}
