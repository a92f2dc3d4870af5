// Package correct post-processes raw OCR text: it applies a table of known
// misreadings, cleans whitespace and snaps near-miss words onto a vocabulary.
package correct

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"cardscan/pkg/textmatch"
)

// MaxCorrectionDistance is the largest edit distance at which a token is
// replaced by a vocabulary word.
const MaxCorrectionDistance = 2

var (
	spaceRunRE   = regexp.MustCompile(`\s+`)
	newlineRunRE = regexp.MustCompile(`\n{3,}`)
	controlRE    = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

// Replacement is a literal, case-insensitive substitution.
type Replacement struct {
	From string
	To   string
}

type compiledReplacement struct {
	re *regexp.Regexp
	to string
}

// Corrector holds a replacement table and a vocabulary. It is immutable after
// construction and safe for concurrent use.
type Corrector struct {
	replacements []compiledReplacement
	vocabulary   []string
	known        map[string]struct{}
}

// New builds a Corrector. Replacements are applied in the given order and
// vocabulary order decides ties between equally distant words.
func New(replacements []Replacement, vocabulary []string) *Corrector {
	c := &Corrector{known: make(map[string]struct{}, len(vocabulary))}
	for _, r := range replacements {
		if r.From == "" {
			continue
		}
		c.replacements = append(c.replacements, compiledReplacement{
			re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(r.From)),
			to: r.To,
		})
	}
	for _, w := range vocabulary {
		lw := strings.ToLower(w)
		if _, dup := c.known[lw]; dup {
			continue
		}
		c.known[lw] = struct{}{}
		c.vocabulary = append(c.vocabulary, lw)
	}
	return c
}

// Default returns a Corrector loaded with the card-game vocabulary and the
// common OCR confusion table.
func Default() *Corrector {
	return New(DefaultReplacements, DefaultVocabulary)
}

// Correct runs the full post-processing chain over text. It never fails and
// an empty input yields an empty output.
func (c *Corrector) Correct(text string) string {
	if text == "" {
		return ""
	}
	out := text
	for _, r := range c.replacements {
		out = r.re.ReplaceAllLiteralString(out, r.to)
	}
	out = spaceRunRE.ReplaceAllString(out, " ")
	out = newlineRunRE.ReplaceAllString(out, "\n\n")
	out = controlRE.ReplaceAllString(out, "")
	return c.correctWords(out)
}

func (c *Corrector) correctWords(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = c.CorrectWord(w)
	}
	return strings.Join(words, " ")
}

// CorrectWord snaps a single token onto the vocabulary when it is within
// MaxCorrectionDistance of a known word. Tokens already in the vocabulary,
// tokens with no word characters and tokens with no close match come back
// unchanged.
func (c *Corrector) CorrectWord(word string) string {
	b := bare(word)
	if b == "" {
		return word
	}
	if _, ok := c.known[b]; ok {
		return word
	}
	best := ""
	bestDistance := MaxCorrectionDistance + 1
	for _, v := range c.vocabulary {
		if d := textmatch.EditDistance(b, v); d < bestDistance {
			best, bestDistance = v, d
		}
	}
	if best == "" {
		return word
	}
	if first, _ := utf8.DecodeRuneInString(word); unicode.IsUpper(first) {
		return capitalize(best)
	}
	return best
}

// bare lowercases a token and drops everything that is not a letter, digit
// or underscore.
func bare(word string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(word) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
