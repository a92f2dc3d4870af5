package ocr

import (
	"encoding/json"
	"image"

	"github.com/disintegration/imaging"
)

const (
	textAreaLuma     = 200
	textAreaEdgeLuma = 180
	minAreaWidth     = 0.2
	minAreaHeight    = 0.1
	minAreaFraction  = 0.1
	areaPadding      = 0.05
)

// FrameOptions describes how a raw capture is turned into an OCR-ready frame.
type FrameOptions struct {
	// Mirror flips the capture horizontally, undoing a selfie-style preview.
	Mirror bool `json:"mirror"`
	// CropCenter keeps only the middle cell of a 3x3 grid.
	CropCenter bool `json:"cropCenter"`
	// DetectText crops to the card's text box when one is found.
	DetectText bool `json:"detectText"`
	// UpscaleFactor of 0 or 1 leaves the size alone.
	UpscaleFactor float64 `json:"upscaleFactor"`
	Filters       Options `json:"filters"`
}

// DefaultFrameOptions matches the webcam capture flow.
func DefaultFrameOptions() FrameOptions {
	f := DefaultOptions()
	f.Contrast = 1.3
	f.Brightness = 15
	return FrameOptions{
		Mirror:        true,
		CropCenter:    true,
		UpscaleFactor: DefaultUpscaleFactor,
		Filters:       f,
	}
}

// UnmarshalJSON decodes data over DefaultFrameOptions, so a request naming
// only some fields keeps the capture defaults for the rest, filters included.
func (fo *FrameOptions) UnmarshalJSON(data []byte) error {
	type plain FrameOptions
	var raw struct {
		plain
		Filters json.RawMessage `json:"filters"`
	}
	raw.plain = plain(DefaultFrameOptions())
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := FrameOptions(raw.plain)
	if len(raw.Filters) > 0 && string(raw.Filters) != "null" {
		f, err := decodeOptions(out.Filters, raw.Filters)
		if err != nil {
			return err
		}
		out.Filters = f
	}
	*fo = out
	return nil
}

// PrepareFrame mirrors, crops, upscales and filters img into a new raster.
// img is not modified.
func PrepareFrame(img image.Image, fo FrameOptions) *image.NRGBA {
	out := imaging.Clone(img)
	if fo.Mirror {
		out = imaging.FlipH(out)
	}
	if fo.CropCenter {
		w, h := out.Rect.Dx()/3, out.Rect.Dy()/3
		if w > 0 && h > 0 {
			out = imaging.Crop(out, image.Rect(w, h, 2*w, 2*h))
		}
	}
	if fo.UpscaleFactor > 0 && fo.UpscaleFactor != 1 {
		out = Upscale(out, fo.UpscaleFactor)
	}
	if fo.DetectText {
		if r, ok := DetectTextArea(out); ok {
			out = ExtractTextArea(out, r)
		}
	}
	return Process(out, fo.Filters)
}

// DetectTextArea locates the bright text box of a card. It looks for the
// largest rectangle of near-white pixels spanning more than a fifth of the
// width and a tenth of the height, pads it slightly and, failing that, falls
// back to the bounding box of all light pixels. The rectangle is in img's
// coordinate space.
func DetectTextArea(img image.Image) (image.Rectangle, bool) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return image.Rectangle{}, false
	}
	luma := lumaGrid(src)
	r, area := largestBrightRect(luma, w, h)
	if area == 0 || float64(area) < float64(w*h)*minAreaFraction {
		r, ok := lightBounds(luma, w, h)
		if !ok {
			return image.Rectangle{}, false
		}
		return r.Add(img.Bounds().Min), true
	}
	pad := int(float64(min(w, h)) * areaPadding)
	r = image.Rect(r.Min.X-pad, r.Min.Y-pad, r.Max.X+pad, r.Max.Y+pad).Intersect(src.Rect)
	return r.Add(img.Bounds().Min), true
}

// ExtractTextArea crops img to r.
func ExtractTextArea(img image.Image, r image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, r)
}

func lumaGrid(img *image.NRGBA) []int {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]int, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			out[y*w+x] = luma(row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

func luma(r, g, b uint8) int {
	return int(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b) + 0.5)
}

// largestBrightRect runs the largest-rectangle-in-histogram sweep row by row
// over pixels brighter than textAreaLuma. Only rectangles passing the size
// limits compete.
func largestBrightRect(luma []int, w, h int) (image.Rectangle, int) {
	heights := make([]int, w+1)
	stack := make([]int, 0, w+1)
	var best image.Rectangle
	bestArea := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if luma[y*w+x] > textAreaLuma {
				heights[x]++
			} else {
				heights[x] = 0
			}
		}
		stack = stack[:0]
		for x := 0; x <= w; x++ {
			for len(stack) > 0 && heights[stack[len(stack)-1]] >= heights[x] {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				left := 0
				if len(stack) > 0 {
					left = stack[len(stack)-1] + 1
				}
				rh, rw := heights[top], x-left
				if rh == 0 {
					continue
				}
				if float64(rw) <= float64(w)*minAreaWidth || float64(rh) <= float64(h)*minAreaHeight {
					continue
				}
				if a := rw * rh; a > bestArea {
					bestArea = a
					best = image.Rect(left, y-rh+1, x, y+1)
				}
			}
			stack = append(stack, x)
		}
	}
	return best, bestArea
}

func lightBounds(luma []int, w, h int) (image.Rectangle, bool) {
	minX, minY, maxX, maxY := w, h, -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if luma[y*w+x] <= textAreaEdgeLuma {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX <= minX || maxY <= minY {
		return image.Rectangle{}, false
	}
	if float64(maxX-minX) <= float64(w)*minAreaWidth || float64(maxY-minY) <= float64(h)*minAreaHeight {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}
