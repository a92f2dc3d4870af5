package models

import (
	"encoding/json"
	"testing"
	"time"

	"cardscan/pkg/calibration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrationUpdateApply(t *testing.T) {
	r := CalibrationResult{
		ExpectedText: "Shock",
		Flags:        calibration.Flags{IsCorrect: true, IsAlmostCorrect: true, ContainsText: true},
		FeedbackType: calibration.Correct,
		Corrections:  "none",
	}
	ft := calibration.ContainsText
	CalibrationUpdate{FeedbackType: &ft}.Apply(&r)
	assert.Equal(t, calibration.Flags{ContainsText: true}, r.Flags)
	assert.Equal(t, calibration.ContainsText, r.FeedbackType)
	assert.Equal(t, "Shock", r.ExpectedText)
	assert.Equal(t, "none", r.Corrections)

	text, note := "Lightning Bolt", "user fixed"
	CalibrationUpdate{ExpectedText: &text, Corrections: &note}.Apply(&r)
	assert.Equal(t, "Lightning Bolt", r.ExpectedText)
	assert.Equal(t, "user fixed", r.Corrections)
	assert.Equal(t, calibration.ContainsText, r.FeedbackType)
}

func TestCalibrationResultJSONShape(t *testing.T) {
	c := 1.3
	r := CalibrationResult{
		ID:           "abc",
		ExpectedText: "Opt",
		Confidence:   88,
		Flags:        calibration.Flags{IsAlmostCorrect: true},
		FeedbackType: calibration.AlmostCorrect,
		Timestamp:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Parameters:   &Parameters{Contrast: &c},
	}
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, true, m["isAlmostCorrect"])
	assert.Equal(t, false, m["isCorrect"])
	assert.Equal(t, "almostCorrect", m["feedbackType"])
	assert.Equal(t, map[string]any{"contrast": 1.3}, m["parameters"])
	assert.NotContains(t, m, "corrections")
}

func TestEntries(t *testing.T) {
	es := Entries([]CalibrationResult{{ExpectedText: "a", Confidence: 10, Flags: calibration.Flags{IsCorrect: true}}})
	require.Len(t, es, 1)
	assert.Equal(t, calibration.Entry{ExpectedText: "a", Confidence: 10, Flags: calibration.Flags{IsCorrect: true}}, es[0])
}
