package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"cardscan/pkg/ocr"

	"github.com/disintegration/imaging"
)

// Writes the frame the engine would see, to tune filter presets by eye.
func main() {
	in := flag.String("in", "", "card photo")
	out := flag.String("out", "", "output PNG (default <in>.ocr.png)")
	preset := flag.String("preset", "default", "filter preset")
	mirror := flag.Bool("mirror", false, "flip horizontally, as the webcam client does")
	crop := flag.Bool("crop", true, "keep the centre third of the frame")
	detect := flag.Bool("detect", false, "crop to the detected text area")
	scale := flag.Float64("scale", ocr.DefaultUpscaleFactor, "upscale factor")
	flag.Parse()
	if *in == "" {
		log.Fatalf("-in required")
	}
	filters, ok := ocr.Presets[*preset]
	if !ok {
		log.Fatalf("unknown preset %q", *preset)
	}

	img, err := imaging.Open(*in, imaging.AutoOrientation(true))
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	if *detect {
		if r, found := ocr.DetectTextArea(img); found {
			fmt.Printf("text area %v\n", r)
		} else {
			fmt.Println("no text area found")
		}
	}
	proc := ocr.PrepareFrame(img, ocr.FrameOptions{
		Mirror:        *mirror,
		CropCenter:    *crop,
		DetectText:    *detect,
		UpscaleFactor: *scale,
		Filters:       filters,
	})

	dst := *out
	if dst == "" {
		dst = strings.TrimSuffix(*in, filepath.Ext(*in)) + ".ocr.png"
	}
	if err := imaging.Save(proc, dst); err != nil {
		log.Fatalf("save: %v", err)
	}
	fmt.Printf("wrote %s (%dx%d)\n", dst, proc.Bounds().Dx(), proc.Bounds().Dy())
}
