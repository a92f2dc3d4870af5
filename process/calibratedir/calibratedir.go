// Package calibratedir feeds a directory of card photos through the
// calibration service. Each image's expected text comes from a sidecar
// <name>.txt or, failing that, from the file name itself.
package calibratedir

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"cardscan/pkg/calibration"
	"cardscan/pkg/ocr"
	"cardscan/pkg/service"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "calibratedir")

// archiveMaxBytes is the size budget for images moved to the processed dir.
const archiveMaxBytes = 1_000_000

const (
	debounceTick = 250 * time.Millisecond
	settleDelay  = 300 * time.Millisecond
)

// Processor is the part of the calibration service the runner needs.
type Processor interface {
	Process(ctx context.Context, req service.ProcessRequest) (service.ProcessResponse, error)
}

// Options controls a Runner.
type Options struct {
	Dir string
	// ProcessedDir receives images whose result was saved. Empty keeps
	// images in place.
	ProcessedDir string
	// Workers defaults to NumCPU.
	Workers int
	// DryRun lists files and expected texts without touching the store.
	DryRun bool
	// Simulate runs OCR during a dry run and scores it locally.
	Simulate bool
	// Preset selects a server-side filter preset; empty sends images as is.
	Preset string
}

// Outcome is the result of one file.
type Outcome struct {
	File          string
	Expected      string
	Text          string
	Confidence    float64
	CalibrationID string
	Verdict       *calibration.Verdict
	Err           error
}

// Runner processes image files with a worker pool. A file is handled at most
// once per Runner.
type Runner struct {
	proc Processor
	opts Options

	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns a Runner.
func New(proc Processor, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Runner{proc: proc, opts: opts, seen: make(map[string]struct{})}
}

// Scan processes every supported image currently in the directory and
// returns the outcomes sorted by file name.
func (r *Runner) Scan(ctx context.Context) ([]Outcome, error) {
	files, err := ListImages(r.opts.Dir)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"dir": r.opts.Dir, "files": len(files), "workers": r.opts.Workers}).Info("scanning")

	names := make(chan string)
	results := make(chan Outcome, len(files))
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range names {
				if o, ok := r.processFile(ctx, name); ok {
					results <- o
				}
			}
		}()
	}
	go func() {
		defer close(names)
		for _, f := range files {
			select {
			case names <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()
	close(results)

	out := make([]Outcome, 0, len(files))
	for o := range results {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, ctx.Err()
}

// Watch processes images as they appear in the directory until ctx is done.
// Files are handled once their events have been quiet for a short delay.
func (r *Runner) Watch(ctx context.Context, report func(Outcome)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(r.opts.Dir); err != nil {
		return err
	}
	log.WithField("dir", r.opts.Dir).Info("watching (debounced)")

	names := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range names {
				if o, ok := r.processFile(ctx, name); ok && report != nil {
					report(o)
				}
			}
		}()
	}
	defer func() {
		close(names)
		wg.Wait()
	}()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if IsSupported(name) {
				pending[name] = time.Now()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) <= settleDelay {
					continue
				}
				delete(pending, name)
				select {
				case names <- name:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// processFile handles one image. It reports false when the file was already
// handled by this Runner.
func (r *Runner) processFile(ctx context.Context, name string) (Outcome, bool) {
	r.mu.Lock()
	if _, dup := r.seen[name]; dup {
		r.mu.Unlock()
		return Outcome{}, false
	}
	r.seen[name] = struct{}{}
	r.mu.Unlock()

	o := Outcome{File: name}
	defer func() {
		// failed files may be retried on a later event
		if o.Err != nil {
			r.mu.Lock()
			delete(r.seen, name)
			r.mu.Unlock()
		}
	}()
	o.Expected, o.Err = ExpectedText(r.opts.Dir, name)
	if o.Err != nil {
		return o, true
	}
	if r.opts.DryRun && !r.opts.Simulate {
		log.WithFields(logrus.Fields{"file": name, "expected": o.Expected}).Debug("dry-run")
		return o, true
	}

	path := filepath.Join(r.opts.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		o.Err = err
		return o, true
	}
	req := service.ProcessRequest{
		Image:        base64.StdEncoding.EncodeToString(data),
		ExpectedText: o.Expected,
		Preset:       r.opts.Preset,
	}
	if r.opts.DryRun {
		req.ExpectedText = ""
	}
	resp, err := r.proc.Process(ctx, req)
	if err != nil {
		o.Err = err
		log.WithError(err).WithField("file", name).Warn("process failed")
		return o, true
	}
	o.Text = resp.Text
	o.Confidence = resp.Confidence
	o.CalibrationID = resp.CalibrationID
	o.Verdict = resp.Verdict
	if o.Verdict == nil {
		v := calibration.Classify(o.Expected, o.Text)
		o.Verdict = &v
	}
	log.WithFields(logrus.Fields{"file": name, "feedback": o.Verdict.FeedbackType, "similarity": o.Verdict.Similarity}).Info("processed")

	if !r.opts.DryRun && o.CalibrationID != "" && r.opts.ProcessedDir != "" {
		if err := moveToProcessed(path, r.opts.ProcessedDir, name); err != nil {
			log.WithError(err).WithField("file", name).Warn("failed to move processed file")
		} else {
			moveSidecar(r.opts.Dir, r.opts.ProcessedDir, name)
		}
	}
	return o, true
}

// Summary aggregates the scored outcomes.
func Summary(outcomes []Outcome) calibration.Summary {
	entries := make([]calibration.Entry, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil || o.Verdict == nil {
			continue
		}
		entries = append(entries, calibration.Entry{ExpectedText: o.Expected, Confidence: o.Confidence, Flags: o.Verdict.Flags})
	}
	return calibration.Summarize(entries)
}

// ListImages returns the supported image files in dir, sorted.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// IsSupported reports whether name has an image extension the decoder reads.
func IsSupported(name string) bool {
	// ignore intermediate files written by the debug tools
	if strings.Contains(name, ".ocr.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// ExpectedText reads the first non-empty line of <stem>.txt next to the
// image. Without a sidecar the stem is used, with '_' and '-' read as spaces.
func ExpectedText(dir, name string) (string, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	b, err := os.ReadFile(filepath.Join(dir, stem+".txt"))
	switch {
	case err == nil:
		for _, l := range strings.Split(string(b), "\n") {
			if l = strings.TrimSpace(l); l != "" {
				return l, nil
			}
		}
		return "", fmt.Errorf("sidecar %s.txt is empty", stem)
	case errors.Is(err, fs.ErrNotExist):
		return strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(stem)), " "), nil
	default:
		return "", err
	}
}

func moveSidecar(dir, dstDir, name string) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	src := filepath.Join(dir, stem+".txt")
	if _, err := os.Stat(src); err != nil {
		return
	}
	if err := os.Rename(src, filepath.Join(dstDir, stem+".txt")); err != nil {
		_ = copyRemove(src, filepath.Join(dstDir, stem+".txt"))
	}
}

// moveToProcessed moves src into dstDir. Images over archiveMaxBytes are
// downscaled on the way; anything that cannot be decoded moves as is.
func moveToProcessed(src, dstDir, name string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dstDir, name)
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= archiveMaxBytes {
		return rename(src, dst)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	img, err := ocr.DecodeImage(data)
	if err != nil {
		return rename(src, dst)
	}
	// size roughly scales with area
	scale := math.Sqrt(float64(archiveMaxBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	if err := imaging.Save(imaging.Resize(img, w, h, imaging.Lanczos), dst); err != nil {
		return rename(src, dst)
	}
	return os.Remove(src)
}

func rename(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
