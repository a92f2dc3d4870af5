package calibration

import (
	"sort"
	"strings"

	"cardscan/pkg/textmatch"
)

// Entry is the slice of a stored result that aggregation needs.
type Entry struct {
	ExpectedText string
	Confidence   float64
	Flags
}

// Summary breaks a set of results down by tier. Counts are exclusive: a result
// is counted only in its highest true tier.
type Summary struct {
	Total             int     `json:"total"`
	Correct           int     `json:"correct"`
	AlmostCorrect     int     `json:"almostCorrect"`
	ContainsText      int     `json:"containsText"`
	Incorrect         int     `json:"incorrect"`
	AverageConfidence float64 `json:"averageConfidence"`
	Accuracy          float64 `json:"accuracy"`
	AlmostCorrectRate float64 `json:"almostCorrectRate"`
	ContainsTextRate  float64 `json:"containsTextRate"`
}

// GroupSummary is a Summary for every result sharing one expected text.
type GroupSummary struct {
	ExpectedText string `json:"expectedText"`
	Summary
}

// Summarize rolls entries up into a Summary. An empty input yields the zero
// Summary.
func Summarize(entries []Entry) Summary {
	var s Summary
	s.Total = len(entries)
	if s.Total == 0 {
		return s
	}
	var confidence float64
	for _, e := range entries {
		confidence += e.Confidence
		switch e.Primary() {
		case Correct:
			s.Correct++
		case AlmostCorrect:
			s.AlmostCorrect++
		case ContainsText:
			s.ContainsText++
		}
	}
	s.Incorrect = s.Total - s.Correct - s.AlmostCorrect - s.ContainsText
	total := float64(s.Total)
	s.AverageConfidence = textmatch.Round2(confidence / total)
	s.Accuracy = textmatch.Round2(float64(s.Correct) / total * 100)
	s.AlmostCorrectRate = textmatch.Round2(float64(s.AlmostCorrect) / total * 100)
	s.ContainsTextRate = textmatch.Round2(float64(s.ContainsText) / total * 100)
	return s
}

// SummarizeByExpectedText groups entries by normalized expected text and
// summarizes each group. Groups are ordered by size, largest first, keeping
// first-seen order among equal sizes. Each group is labelled with the trimmed
// expected text of its first entry.
func SummarizeByExpectedText(entries []Entry) []GroupSummary {
	var order []string
	labels := map[string]string{}
	groups := map[string][]Entry{}
	for _, e := range entries {
		key := textmatch.Normalize(e.ExpectedText)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			labels[key] = strings.TrimSpace(e.ExpectedText)
		}
		groups[key] = append(groups[key], e)
	}
	out := make([]GroupSummary, 0, len(order))
	for _, key := range order {
		out = append(out, GroupSummary{ExpectedText: labels[key], Summary: Summarize(groups[key])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}
