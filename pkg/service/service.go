// Package service ties recognition, correction, scoring and storage into the
// calibration workflow served by the HTTP API and the batch tools.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cardscan/models"
	"cardscan/pkg/calibration"
	"cardscan/pkg/correct"
	"cardscan/pkg/export"
	"cardscan/pkg/ocr"
	"cardscan/pkg/store"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "calibration")

// DefaultIncorrectLimit is how many failed readings the review list shows.
const DefaultIncorrectLimit = 20

var (
	// ErrImageTooLarge is returned when a decoded image exceeds the limit.
	ErrImageTooLarge = errors.New("image too large")
	// ErrUnknownPreset is returned for a filter preset name that does not exist.
	ErrUnknownPreset = errors.New("unknown filter preset")
)

// Service runs the calibration workflow. It is safe for concurrent use when
// its Repository and Recognizer are.
type Service struct {
	repo          store.Repository
	recognizer    ocr.Recognizer
	corrector     *correct.Corrector
	maxImageBytes int
	now           func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMaxImageBytes caps the decoded image size. Zero disables the cap.
func WithMaxImageBytes(n int) Option {
	return func(s *Service) { s.maxImageBytes = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service. A nil corrector means correct.Default().
func New(repo store.Repository, recognizer ocr.Recognizer, corrector *correct.Corrector, opts ...Option) *Service {
	if corrector == nil {
		corrector = correct.Default()
	}
	s := &Service{repo: repo, recognizer: recognizer, corrector: corrector, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProcessRequest is one capture submitted for recognition.
type ProcessRequest struct {
	// Image is base64, optionally as a data URL.
	Image              string `json:"image"`
	ExpectedText       string `json:"expectedText"`
	SaveForCalibration bool   `json:"saveForCalibration"`
	// Parameters are the filters the client already applied, kept with the
	// stored result.
	Parameters *models.Parameters `json:"parameters,omitempty"`
	// Preprocess runs the frame pipeline on the server before recognition.
	Preprocess *ocr.FrameOptions `json:"preprocess,omitempty"`
	// Preset swaps in a named filter set for the server-side pipeline.
	Preset string `json:"preset,omitempty"`
}

// ProcessResponse is the recognition outcome, plus the stored result when
// one was saved.
type ProcessResponse struct {
	Text          string               `json:"text"`
	Confidence    float64              `json:"confidence"`
	Title         string               `json:"title,omitempty"`
	CalibrationID string               `json:"calibrationId,omitempty"`
	Verdict       *calibration.Verdict `json:"verdict,omitempty"`
}

// Process decodes, optionally preprocesses and recognizes a capture, then
// post-processes the text. When expected text is given or saving is
// requested the reading is scored and stored; a failed save is logged and
// does not fail the request.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	data, err := ocr.DecodeDataURL(req.Image)
	if err != nil {
		return ProcessResponse{}, err
	}
	if s.maxImageBytes > 0 && len(data) > s.maxImageBytes {
		return ProcessResponse{}, fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(data), s.maxImageBytes)
	}
	payload, params, err := s.prepare(data, req)
	if err != nil {
		return ProcessResponse{}, err
	}
	rec, err := s.recognizer.Recognize(ctx, payload)
	if err != nil {
		return ProcessResponse{}, fmt.Errorf("recognize: %w", err)
	}

	text := strings.TrimSpace(s.corrector.Correct(rec.Text))
	resp := ProcessResponse{
		Text:       text,
		Confidence: math.Round(rec.Confidence),
		Title:      s.corrector.ExtractTitle(rec.Text),
	}

	expected := strings.TrimSpace(req.ExpectedText)
	if expected == "" && !req.SaveForCalibration {
		log.Debug("result not saved: no expected text")
		return resp, nil
	}
	if expected == "" {
		expected = text
	}
	sum := sha256.Sum256(data)
	saved, err := s.SaveResult(ctx, &models.CalibrationResult{
		ExpectedText:  expected,
		ExtractedText: text,
		Confidence:    resp.Confidence,
		ImageHash:     hex.EncodeToString(sum[:]),
		Parameters:    params,
	})
	if err != nil {
		log.WithError(err).Error("failed to save calibration result")
		return resp, nil
	}
	resp.CalibrationID = saved.ID
	v := calibration.Classify(saved.ExpectedText, saved.ExtractedText)
	resp.Verdict = &v
	return resp, nil
}

// prepare runs the server-side frame pipeline when the request asks for it
// and returns the bytes to recognize with the parameters to record.
func (s *Service) prepare(data []byte, req ProcessRequest) ([]byte, *models.Parameters, error) {
	if req.Preprocess == nil && req.Preset == "" {
		return data, req.Parameters, nil
	}
	fo := ocr.DefaultFrameOptions()
	if req.Preprocess != nil {
		fo = *req.Preprocess
	}
	if req.Preset != "" {
		p, ok := ocr.Presets[req.Preset]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownPreset, req.Preset)
		}
		fo.Filters = p
	}
	if err := fo.Filters.Validate(); err != nil {
		return nil, nil, err
	}
	img, err := ocr.DecodeImage(data)
	if err != nil {
		return nil, nil, err
	}
	out, err := ocr.EncodePNG(ocr.PrepareFrame(img, fo))
	if err != nil {
		return nil, nil, err
	}
	params := req.Parameters
	if params == nil {
		f := fo.Filters
		params = &models.Parameters{Contrast: &f.Contrast, Brightness: &f.Brightness, Threshold: f.Threshold}
	}
	return out, params, nil
}

// SaveResult classifies r from its texts, overwriting any flags the caller
// set, and stores it.
func (s *Service) SaveResult(ctx context.Context, r *models.CalibrationResult) (models.CalibrationResult, error) {
	v := calibration.Classify(r.ExpectedText, r.ExtractedText)
	r.Flags = v.Flags
	r.FeedbackType = v.FeedbackType
	if err := s.repo.Save(ctx, r); err != nil {
		return models.CalibrationResult{}, fmt.Errorf("save result: %w", err)
	}
	log.WithFields(logrus.Fields{"id": r.ID, "feedback": r.FeedbackType, "similarity": v.Similarity}).
		Info("calibration result saved")
	return *r, nil
}

// Stats summarizes every stored result.
func (s *Service) Stats(ctx context.Context) (calibration.Summary, error) {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return calibration.Summary{}, err
	}
	return calibration.Summarize(models.Entries(all)), nil
}

// StatsByExpectedText summarizes stored results per expected text.
func (s *Service) StatsByExpectedText(ctx context.Context) ([]calibration.GroupSummary, error) {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return calibration.SummarizeByExpectedText(models.Entries(all)), nil
}

// Incorrect lists results not marked correct, newest first.
func (s *Service) Incorrect(ctx context.Context, limit int) ([]models.CalibrationResult, error) {
	if limit <= 0 {
		limit = DefaultIncorrectLimit
	}
	return s.repo.FindIncorrect(ctx, limit)
}

// Results lists every stored result.
func (s *Service) Results(ctx context.Context) ([]models.CalibrationResult, error) {
	return s.repo.FindAll(ctx)
}

// Feedback is a human correction of a stored result.
type Feedback struct {
	FeedbackType string  `json:"feedbackType"`
	ExpectedText *string `json:"expectedText"`
	Corrections  *string `json:"corrections"`
}

// UpdateFeedback validates and applies f to the result with the given id.
func (s *Service) UpdateFeedback(ctx context.Context, id string, f Feedback) (models.CalibrationResult, error) {
	var u models.CalibrationUpdate
	if strings.TrimSpace(f.FeedbackType) != "" {
		ft, err := calibration.ParseFeedbackType(f.FeedbackType)
		if err != nil {
			return models.CalibrationResult{}, fmt.Errorf("%w: %q", err, f.FeedbackType)
		}
		u.FeedbackType = &ft
	}
	u.ExpectedText = f.ExpectedText
	u.Corrections = f.Corrections
	r, err := s.repo.Update(ctx, id, u)
	if err != nil {
		return models.CalibrationResult{}, err
	}
	log.WithFields(logrus.Fields{"id": id, "feedback": r.FeedbackType}).Info("feedback updated")
	return r, nil
}

// Prune removes results older than days.
func (s *Service) Prune(ctx context.Context, days int) (int, error) {
	return s.repo.PruneOlderThan(ctx, days)
}

// Export renders every stored result in the named format.
func (s *Service) Export(ctx context.Context, format, filename string) (export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return export.Result{}, err
	}
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return export.Result{}, err
	}
	return export.Export(all, f, filename, s.now())
}

// RunRetention prunes results older than days every interval until ctx is
// done. Failures are logged and retried on the next tick.
func (s *Service) RunRetention(ctx context.Context, days int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := s.Prune(ctx, days); err != nil {
			log.WithError(err).Warn("retention prune failed")
		} else if n > 0 {
			log.WithField("removed", n).Info("retention prune")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
