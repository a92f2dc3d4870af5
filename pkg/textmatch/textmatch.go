// Package textmatch implements the edit-distance metric used to compare
// OCR output with the text a user expected to read.
package textmatch

import (
	"math"
	"strings"
)

// EditDistance returns the Levenshtein distance between a and b counted in
// Unicode code points. Case and whitespace are significant.
func EditDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	// table[i][j] is the distance between rb[:i] and ra[:j]
	table := make([][]int, len(rb)+1)
	for i := range table {
		table[i] = make([]int, len(ra)+1)
		table[i][0] = i
	}
	for j := 0; j <= len(ra); j++ {
		table[0][j] = j
	}
	for i := 1; i <= len(rb); i++ {
		for j := 1; j <= len(ra); j++ {
			if rb[i-1] == ra[j-1] {
				table[i][j] = table[i-1][j-1]
				continue
			}
			table[i][j] = 1 + min(table[i-1][j-1], table[i][j-1], table[i-1][j])
		}
	}
	return table[len(rb)][len(ra)]
}

// SimilarityPercent maps the edit distance onto 0..100 relative to the longer
// input, rounded to two decimals. Equal strings score 100 and a comparison
// against an empty string scores 0.
func SimilarityPercent(a, b string) float64 {
	if a == b {
		return 100
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	longest := float64(max(la, lb))
	d := float64(EditDistance(a, b))
	return Round2((longest - d) / longest * 100)
}

// Round2 rounds x half away from zero to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Normalize lowercases s and trims surrounding whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
