package ocr

import (
	"encoding/json"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultUpscaleFactor is used when Upscale is given a non-positive factor.
const DefaultUpscaleFactor = 2.0

// Options tunes the frame pipeline. A nil Threshold disables binarization; any
// non-nil value, zero included, enables it. Gamma must be positive; 1.0 skips
// the gamma stage. Fields missing from decoded JSON keep DefaultOptions values.
type Options struct {
	Contrast        float64  `json:"contrast"`
	Brightness      float64  `json:"brightness"`
	Gamma           float64  `json:"gamma"`
	Grayscale       bool     `json:"grayscale"`
	Threshold       *float64 `json:"threshold,omitempty"`
	Sharpen         bool     `json:"sharpen"`
	EnhanceContrast bool     `json:"enhanceContrast"`
}

// DefaultOptions returns the pipeline settings used when a caller gives none.
func DefaultOptions() Options {
	return Options{
		Contrast:        1.2,
		Brightness:      10,
		Gamma:           1.0,
		Grayscale:       true,
		Sharpen:         true,
		EnhanceContrast: true,
	}
}

// UnmarshalJSON decodes data over DefaultOptions.
func (o *Options) UnmarshalJSON(data []byte) error {
	v, err := decodeOptions(DefaultOptions(), data)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// decodeOptions overlays the fields present in data on base.
func decodeOptions(base Options, data []byte) (Options, error) {
	type plain Options
	p := plain(base)
	if err := json.Unmarshal(data, &p); err != nil {
		return Options{}, err
	}
	return Options(p), nil
}

// Validate rejects settings the pipeline cannot apply.
func (o Options) Validate() error {
	if o.Gamma <= 0 || math.IsNaN(o.Gamma) || math.IsInf(o.Gamma, 0) {
		return fmt.Errorf("%w: gamma must be positive, got %v", ErrInvalidOptions, o.Gamma)
	}
	if o.Contrast < 0 || math.IsNaN(o.Contrast) {
		return fmt.Errorf("%w: contrast must not be negative, got %v", ErrInvalidOptions, o.Contrast)
	}
	return nil
}

// Presets are the named filter sets offered to the capture UI.
var Presets = map[string]Options{
	"default":       {Contrast: 1.6, Brightness: 5, Gamma: 0.8, Grayscale: true, Sharpen: true, EnhanceContrast: true},
	"high-contrast": {Contrast: 2.0, Brightness: 0, Gamma: 0.7, Grayscale: true, Sharpen: true, EnhanceContrast: true},
	"soft":          {Contrast: 1.3, Brightness: 10, Gamma: 1.0, Grayscale: true},
}

// Process runs brightness, gamma, contrast, grayscale, threshold, histogram
// equalization and sharpen over img, in that order, and returns img. A nil or
// empty raster is returned untouched, which callers must read as "did not run".
func Process(img *image.NRGBA, opts Options) *image.NRGBA {
	if img == nil || img.Rect.Empty() {
		return img
	}
	applyPointOps(img, opts)
	if opts.Grayscale && opts.Threshold == nil && opts.EnhanceContrast {
		equalizeHistogram(img)
	}
	if opts.Sharpen && opts.Threshold == nil {
		sharpen(img)
	}
	return img
}

// applyPointOps runs the per-pixel stages, keeping full precision until the
// value is stored.
func applyPointOps(img *image.NRGBA, opts Options) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	gammaExp := 0.0
	if opts.Gamma != 1.0 && opts.Gamma > 0 {
		gammaExp = 1.0 / opts.Gamma
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			r, g, b := float64(row[i]), float64(row[i+1]), float64(row[i+2])

			r, g, b = clamp(r+opts.Brightness), clamp(g+opts.Brightness), clamp(b+opts.Brightness)

			if gammaExp != 0 {
				r = clamp(math.Pow(r/255, gammaExp) * 255)
				g = clamp(math.Pow(g/255, gammaExp) * 255)
				b = clamp(math.Pow(b/255, gammaExp) * 255)
			}

			r = clamp((r-128)*opts.Contrast + 128)
			g = clamp((g-128)*opts.Contrast + 128)
			b = clamp((b-128)*opts.Contrast + 128)

			if opts.Grayscale {
				l := math.Round(0.299*r + 0.587*g + 0.114*b)
				r, g, b = l, l, l
			}

			if opts.Threshold != nil {
				v := 0.0
				if (r+g+b)/3 > *opts.Threshold {
					v = 255
				}
				r, g, b = v, v, v
			}

			row[i], row[i+1], row[i+2] = toByte(r), toByte(g), toByte(b)
		}
	}
}

// equalizeHistogram remaps the gray channel through its cumulative
// distribution. An image with a single intensity is left as is.
func equalizeHistogram(img *image.NRGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var hist [256]int
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			hist[row[i]]++
		}
	}
	var cdf [256]int
	cdf[0] = hist[0]
	for i := 1; i < 256; i++ {
		cdf[i] = cdf[i-1] + hist[i]
	}
	cdfMin := 0
	for _, c := range cdf {
		if c > 0 {
			cdfMin = c
			break
		}
	}
	span := cdf[255] - cdfMin
	if span <= 0 {
		return
	}
	var lut [256]uint8
	for v := range lut {
		lut[v] = toByte(math.Round(float64(cdf[v]-cdfMin) / float64(span) * 255))
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			v := lut[row[i]]
			row[i], row[i+1], row[i+2] = v, v, v
		}
	}
}

var sharpenKernel = [9]float64{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// sharpen convolves the colour channels of interior pixels, reading from a
// snapshot so every output pixel sees the unsharpened neighbourhood.
func sharpen(img *image.NRGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 3 || h < 3 {
		return
	}
	src := make([]uint8, len(img.Pix))
	copy(src, img.Pix)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			for c := 0; c < 3; c++ {
				sum := 0.0
				k := 0
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						sum += float64(src[(y+ky)*img.Stride+(x+kx)*4+c]) * sharpenKernel[k]
						k++
					}
				}
				img.Pix[y*img.Stride+x*4+c] = toByte(sum)
			}
		}
	}
}

// Upscale resamples img by factor with a Lanczos filter into a new raster of
// floor(w*factor) by floor(h*factor). img itself is not modified.
func Upscale(img image.Image, factor float64) *image.NRGBA {
	if factor <= 0 {
		factor = DefaultUpscaleFactor
	}
	b := img.Bounds()
	w := int(math.Floor(float64(b.Dx()) * factor))
	h := int(math.Floor(float64(b.Dy()) * factor))
	if w < 1 || h < 1 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// toByte stores v the way a clamped 8-bit buffer does: clamped, then rounded
// half to even.
func toByte(v float64) uint8 {
	return uint8(math.RoundToEven(clamp(v)))
}
