package models

import (
	"time"

	"cardscan/pkg/calibration"
)

// Parameters records the filter settings used on the frame that produced a
// result.
type Parameters struct {
	Contrast   *float64 `json:"contrast,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

// CalibrationResult is one OCR attempt scored against the text the user
// expected. The same shape is written to the JSON file store and the
// calibration_results table.
type CalibrationResult struct {
	ID            string  `gorm:"primaryKey;size:64" json:"id"`
	ExpectedText  string  `gorm:"type:text;not null" json:"expectedText"`
	ExtractedText string  `gorm:"type:text;not null" json:"extractedText"`
	Confidence    float64 `gorm:"not null;default:0" json:"confidence"`
	ImageHash     string  `gorm:"size:64;index" json:"imageHash,omitempty"`
	calibration.Flags
	FeedbackType calibration.FeedbackType `gorm:"size:32;index" json:"feedbackType"`
	Corrections  string                   `gorm:"type:text" json:"corrections,omitempty"`
	Timestamp    time.Time                `gorm:"index;not null" json:"timestamp"`
	Parameters   *Parameters              `gorm:"serializer:json" json:"parameters,omitempty"`
}

// Entry projects the result onto what aggregation needs.
func (r CalibrationResult) Entry() calibration.Entry {
	return calibration.Entry{ExpectedText: r.ExpectedText, Confidence: r.Confidence, Flags: r.Flags}
}

// Entries projects a slice of results for aggregation.
func Entries(rs []CalibrationResult) []calibration.Entry {
	out := make([]calibration.Entry, len(rs))
	for i, r := range rs {
		out[i] = r.Entry()
	}
	return out
}

// CalibrationUpdate is a human correction. Only supplied fields change.
type CalibrationUpdate struct {
	FeedbackType *calibration.FeedbackType `json:"feedbackType,omitempty"`
	ExpectedText *string                   `json:"expectedText,omitempty"`
	Corrections  *string                   `json:"corrections,omitempty"`
}

// Apply writes u into r. A feedback type replaces all three flags with the
// single asserted tier.
func (u CalibrationUpdate) Apply(r *CalibrationResult) {
	if u.FeedbackType != nil {
		r.FeedbackType = *u.FeedbackType
		r.Flags = calibration.FlagsFor(*u.FeedbackType)
	}
	if u.ExpectedText != nil {
		r.ExpectedText = *u.ExpectedText
	}
	if u.Corrections != nil {
		r.Corrections = *u.Corrections
	}
}
