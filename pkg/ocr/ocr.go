// Package ocr prepares card captures for recognition and runs them through
// Tesseract.
package ocr

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "ocr")

// DefaultLanguages are the Tesseract models loaded when none are configured.
var DefaultLanguages = []string{"por", "eng"}

// DefaultWhitelist restricts recognition to the characters printed on cards.
const DefaultWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 .,;:!?()-áàâãéêíóôõúçÁÀÂÃÉÊÍÓÔÕÚÇ"

// Recognition is the raw engine output for one image.
type Recognition struct {
	Text string `json:"text"`
	// Confidence is the mean word confidence, 0..100.
	Confidence float64 `json:"confidence"`
}

// Recognizer turns an encoded image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Recognition, error)
}

// EngineConfig configures the Tesseract client.
type EngineConfig struct {
	Languages []string
	Whitelist string
}

// Engine wraps a single Tesseract client. Tesseract handles are not safe for
// concurrent use, so calls are serialized.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	closed bool
}

// NewEngine creates and configures a Tesseract client.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = DefaultLanguages
	}
	whitelist := cfg.Whitelist
	if whitelist == "" {
		whitelist = DefaultWhitelist
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
		client.Close()
		return nil, fmt.Errorf("set variable: %w", err)
	}
	log.WithField("languages", strings.Join(langs, "+")).Info("tesseract client ready")
	return &Engine{client: client}, nil
}

// Recognize runs OCR over an encoded image (PNG, JPEG, ...).
func (e *Engine) Recognize(ctx context.Context, img []byte) (Recognition, error) {
	if len(img) == 0 {
		return Recognition{}, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Recognition{}, ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	if err := e.client.SetImageFromBytes(img); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("ocr error: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Recognition{}, fmt.Errorf("word boxes: %w", err)
	}
	conf := 0.0
	if len(boxes) > 0 {
		for _, b := range boxes {
			conf += b.Confidence
		}
		conf = math.Round(conf / float64(len(boxes)))
	}
	log.WithFields(logrus.Fields{"words": len(boxes), "confidence": conf}).
		Debugf("OCR RAW snippet=%q", snippet(text, 180))
	return Recognition{Text: text, Confidence: conf}, nil
}

// Close releases the Tesseract handle. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.client.Close()
}
