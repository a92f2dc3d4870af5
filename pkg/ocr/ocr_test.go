package ocr

import (
	"context"
	"image/color"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Engine tests need a local Tesseract install with the por and eng models.
func newTestEngine(t *testing.T) *Engine {
	if os.Getenv("OCR_TEST") != "1" {
		t.Skip("tesseract tests are disabled; set OCR_TEST=1 to enable")
	}
	e, err := NewEngine(EngineConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineBlankImage(t *testing.T) {
	e := newTestEngine(t)
	data, err := EncodePNG(imaging.New(200, 100, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	require.NoError(t, err)

	rec, err := e.Recognize(context.Background(), data)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.Confidence, 0.0)
	assert.LessOrEqual(t, rec.Confidence, 100.0)
}

func TestEngineRejectsBadInput(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Recognize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Recognize(ctx, []byte{1})
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, err = e.Recognize(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrEngineClosed)
}
