package correct

import (
	"strings"
	"unicode"
)

// minTitleLen is the shortest title worth reporting.
const minTitleLen = 3

// titleLines is how many leading lines of a scan can hold the card name.
const titleLines = 3

// ExtractTitle guesses the card name from raw OCR text: the first non-empty
// lines are joined, corrected and stripped of symbols. It returns "" when
// fewer than three characters survive.
func (c *Corrector) ExtractTitle(raw string) string {
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == titleLines {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	joined := c.Correct(strings.Join(lines, " "))
	cleaned := strings.TrimSpace(strings.Join(strings.Fields(strings.Map(titleRune, joined)), " "))
	if len([]rune(cleaned)) < minTitleLen {
		return ""
	}
	return cleaned
}

func titleRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		return r
	case strings.ContainsRune("_-.,;:()", r):
		return r
	}
	return -1
}
