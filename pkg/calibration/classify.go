// Package calibration scores OCR output against the text a user expected and
// rolls scored results up into accuracy summaries.
package calibration

import (
	"errors"
	"strings"

	"cardscan/pkg/textmatch"
)

// AlmostCorrectThreshold is the inclusive similarity percentage at which a
// reading counts as almost correct.
const AlmostCorrectThreshold = 90.0

// FeedbackType names the highest-priority tier a reading falls into.
type FeedbackType string

const (
	Correct       FeedbackType = "correct"
	AlmostCorrect FeedbackType = "almostCorrect"
	ContainsText  FeedbackType = "containsText"
	Incorrect     FeedbackType = "incorrect"
)

// ErrInvalidFeedbackType is returned when a caller supplies an unknown tier.
var ErrInvalidFeedbackType = errors.New("invalid feedback type")

// Valid reports whether f is one of the four tiers.
func (f FeedbackType) Valid() bool {
	switch f {
	case Correct, AlmostCorrect, ContainsText, Incorrect:
		return true
	}
	return false
}

// ParseFeedbackType validates a caller-supplied tier name.
func ParseFeedbackType(s string) (FeedbackType, error) {
	f := FeedbackType(strings.TrimSpace(s))
	if !f.Valid() {
		return "", ErrInvalidFeedbackType
	}
	return f, nil
}

// Flags are the three tier indicators stored on a result. Automatic
// classification may set several at once.
type Flags struct {
	IsCorrect       bool `json:"isCorrect"`
	IsAlmostCorrect bool `json:"isAlmostCorrect"`
	ContainsText    bool `json:"containsText"`
}

// Primary applies the tier priority correct > almostCorrect > containsText >
// incorrect.
func (f Flags) Primary() FeedbackType {
	switch {
	case f.IsCorrect:
		return Correct
	case f.IsAlmostCorrect:
		return AlmostCorrect
	case f.ContainsText:
		return ContainsText
	}
	return Incorrect
}

// Verdict is the outcome of comparing expected and extracted text.
type Verdict struct {
	Flags
	Similarity   float64      `json:"similarity"`
	FeedbackType FeedbackType `json:"feedbackType"`
}

// Classify compares expected and extracted text case-insensitively, ignoring
// surrounding whitespace. The inputs are not modified.
func Classify(expected, extracted string) Verdict {
	e := textmatch.Normalize(expected)
	x := textmatch.Normalize(extracted)
	v := Verdict{Similarity: textmatch.SimilarityPercent(e, x)}
	v.IsCorrect = e == x
	v.IsAlmostCorrect = v.Similarity >= AlmostCorrectThreshold
	v.ContainsText = e != "" && strings.Contains(x, e)
	v.FeedbackType = v.Flags.Primary()
	return v
}

// FlagsFor turns a human-asserted tier into flags where exactly the chosen
// tier is set. An incorrect verdict clears all three.
func FlagsFor(f FeedbackType) Flags {
	return Flags{
		IsCorrect:       f == Correct,
		IsAlmostCorrect: f == AlmostCorrect,
		ContainsText:    f == ContainsText,
	}
}
