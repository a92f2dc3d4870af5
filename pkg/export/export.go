// Package export renders calibration results as downloadable JSON or CSV.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cardscan/models"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for any format other than json or csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat maps a query value onto a Format. An empty value means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// MimeType is the Content-Type served for f.
func (f Format) MimeType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Result is a rendered export.
type Result struct {
	Data     string `json:"data"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// Export renders records in format f. The filename gets the format's
// extension when it lacks one; an empty filename becomes
// calibration-export-<unix ms>.<ext>.
func Export(records []models.CalibrationResult, f Format, filename string, now time.Time) (Result, error) {
	var data string
	switch f {
	case FormatJSON:
		s, err := JSON(records)
		if err != nil {
			return Result{}, err
		}
		data = s
	case FormatCSV:
		data = CSV(records)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	return Result{
		Data:     data,
		Filename: exportFilename(filename, f, now),
		MimeType: f.MimeType(),
		Size:     len(data),
	}, nil
}

func exportFilename(name string, f Format, now time.Time) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("calibration-export-%d", now.UnixMilli())
	}
	ext := "." + string(f)
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name
}

// JSON renders records as a two-space indented array.
func JSON(records []models.CalibrationResult) (string, error) {
	if records == nil {
		records = []models.CalibrationResult{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

var csvHeader = []string{"ID", "Expected Text", "Extracted Text", "Confidence", "Is Correct", "Timestamp", "Corrections"}

// CSV renders records one per line under a fixed header. An empty collection
// renders as an empty string.
func CSV(records []models.CalibrationResult) string {
	if len(records) == 0 {
		return ""
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, strings.Join(csvHeader, ","))
	for _, r := range records {
		correct := "No"
		if r.IsCorrect {
			correct = "Yes"
		}
		lines = append(lines, strings.Join([]string{
			escapeCSV(r.ID),
			escapeCSV(r.ExpectedText),
			escapeCSV(r.ExtractedText),
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			correct,
			r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			escapeCSV(r.Corrections),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// escapeCSV doubles quotes and wraps the value in quotes when it holds a
// comma, quote or newline.
func escapeCSV(v string) string {
	if !strings.ContainsAny(v, ",\"\n") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
