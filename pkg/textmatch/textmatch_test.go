package textmatch

import (
	"testing"

	"github.com/antzucaro/matchr"
	"github.com/stretchr/testify/assert"
)

func TestEditDistanceKnownPairs(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"Goblin", "goblin", 1},
		{"ação", "acao", 2},
		{"Llanowar Elves", "Llanowar  Elves", 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EditDistance(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}

func TestEditDistanceMatchesReference(t *testing.T) {
	words := []string{"", "a", "Serra Angel", "Sera Angle", "Planeswalker", "P1aneswa1ker", "criatura", "criatvra", "Ñandú", "nandu"}
	for _, a := range words {
		for _, b := range words {
			d := EditDistance(a, b)
			assert.Equal(t, matchr.Levenshtein(a, b), d, "%q vs %q", a, b)
			assert.Equal(t, d, EditDistance(b, a), "symmetry %q %q", a, b)
			if a == b {
				assert.Zero(t, d)
			}
		}
	}
}

func TestSimilarityPercent(t *testing.T) {
	assert.Equal(t, 100.0, SimilarityPercent("", ""))
	assert.Equal(t, 100.0, SimilarityPercent("shock", "shock"))
	assert.Equal(t, 0.0, SimilarityPercent("", "shock"))
	assert.Equal(t, 0.0, SimilarityPercent("shock", ""))
	assert.Equal(t, 57.14, SimilarityPercent("kitten", "sitting"))
	assert.Equal(t, 90.0, SimilarityPercent("lightning!", "lightning?"))
	assert.Equal(t, 0.0, SimilarityPercent("abc", "xyz"))
}

func TestSimilarityPercentBounds(t *testing.T) {
	pairs := [][2]string{{"a", "bbbbbbb"}, {"Counterspell", "Counter spell"}, {"x", "x "}}
	for _, p := range pairs {
		s := SimilarityPercent(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestRound2AndNormalize(t *testing.T) {
	assert.Equal(t, 66.67, Round2(200.0/3))
	assert.Equal(t, 0.13, Round2(0.125))
	assert.Equal(t, "lightning bolt", Normalize("  Lightning BOLT \n"))
}
