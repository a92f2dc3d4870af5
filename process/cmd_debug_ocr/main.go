package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"cardscan/pkg/calibration"
	"cardscan/pkg/correct"
	"cardscan/pkg/ocr"
)

// Runs one image through the engine and prints every stage of the text
// post-processing, without touching the store.
func main() {
	f := flag.String("file", "", "image file to OCR")
	expected := flag.String("expected", "", "score the corrected text against this")
	preset := flag.String("preset", "", "run the frame pipeline with this filter preset first")
	langs := flag.String("lang", "por+eng", "tesseract languages")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}

	data, err := os.ReadFile(*f)
	if err != nil {
		log.Fatalf("read: %v", err)
	}
	if *preset != "" {
		filters, ok := ocr.Presets[*preset]
		if !ok {
			log.Fatalf("unknown preset %q", *preset)
		}
		img, err := ocr.DecodeImage(data)
		if err != nil {
			log.Fatalf("decode: %v", err)
		}
		fo := ocr.DefaultFrameOptions()
		fo.Filters = filters
		if data, err = ocr.EncodePNG(ocr.PrepareFrame(img, fo)); err != nil {
			log.Fatalf("encode: %v", err)
		}
	}

	engine, err := ocr.NewEngine(ocr.EngineConfig{Languages: strings.Split(*langs, "+")})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer engine.Close()
	rec, err := engine.Recognize(context.Background(), data)
	if err != nil {
		log.Fatalf("ocr error: %v", err)
	}

	c := correct.Default()
	text := strings.TrimSpace(c.Correct(rec.Text))
	fmt.Printf("confidence=%.0f\n", rec.Confidence)
	fmt.Printf("raw=%q\n", rec.Text)
	fmt.Printf("corrected=%q\n", text)
	fmt.Printf("title=%q\n", c.ExtractTitle(rec.Text))
	if *expected != "" {
		v := calibration.Classify(*expected, text)
		fmt.Printf("verdict=%s similarity=%.2f correct=%v almost=%v contains=%v\n",
			v.FeedbackType, v.Similarity, v.IsCorrect, v.IsAlmostCorrect, v.ContainsText)
	}
}
