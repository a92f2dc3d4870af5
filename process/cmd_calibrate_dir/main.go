package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cardscan/pkg/config"
	"cardscan/pkg/correct"
	"cardscan/pkg/ocr"
	"cardscan/pkg/service"
	"cardscan/pkg/store"
	"cardscan/process/calibratedir"

	"github.com/sirupsen/logrus"
)

// Main: scans a directory of card photos, runs OCR on each and stores the
// scored result, optional watch mode.
func main() {
	dir := flag.String("dir", "data/cards", "directory to scan for card images")
	processed := flag.String("processed", "", "move images with a saved result here")
	cfgFile := flag.String("config", "", "YAML config file (default ./cardscan.yaml)")
	dryRun := flag.Bool("dry-run", false, "list files and expected texts without storing anything")
	simulate := flag.Bool("simulate-ocr", false, "in dry-run: run OCR and score locally")
	watch := flag.Bool("watch", false, "watch directory for new files after the initial scan")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	preset := flag.String("preset", "", "server-side filter preset (default, high-contrast, soft)")
	verbose := flag.Bool("verbose", false, "verbose per-file logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if err := run(*cfgFile, calibratedir.Options{
		Dir:          *dir,
		ProcessedDir: *processed,
		Workers:      *workers,
		DryRun:       *dryRun,
		Simulate:     *simulate,
		Preset:       *preset,
	}, *watch); err != nil {
		logrus.Fatal(err)
	}
}

func run(cfgFile string, opts calibratedir.Options, watch bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	var proc calibratedir.Processor
	if !opts.DryRun || opts.Simulate {
		repo, err := store.Open(cfg.Store())
		if err != nil {
			return err
		}
		defer repo.Close()
		engine, err := ocr.NewEngine(ocr.EngineConfig{Languages: cfg.Languages(), Whitelist: cfg.OCRWhitelist})
		if err != nil {
			return err
		}
		defer engine.Close()
		proc = service.New(repo, engine, correct.Default(), service.WithMaxImageBytes(cfg.MaxImageBytes))
	}

	runner := calibratedir.New(proc, opts)
	outcomes, err := runner.Scan(ctx)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Printf("%-32s ERROR %v\n", o.File, o.Err)
		case o.Verdict == nil:
			fmt.Printf("%-32s expected=%q\n", o.File, o.Expected)
		default:
			fmt.Printf("%-32s %-13s %6.2f%% expected=%q got=%q\n", o.File, o.Verdict.FeedbackType, o.Verdict.Similarity, o.Expected, o.Text)
		}
	}
	if !opts.DryRun || opts.Simulate {
		b, _ := json.MarshalIndent(calibratedir.Summary(outcomes), "", "  ")
		fmt.Println(string(b))
	}

	if watch {
		return runner.Watch(ctx, func(o calibratedir.Outcome) {
			if o.Err != nil {
				fmt.Printf("%-32s ERROR %v\n", o.File, o.Err)
				return
			}
			if o.Verdict != nil {
				fmt.Printf("%-32s %-13s %6.2f%%\n", o.File, o.Verdict.FeedbackType, o.Verdict.Similarity)
			}
		})
	}
	return nil
}
