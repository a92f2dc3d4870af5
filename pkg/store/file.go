package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cardscan/models"

	"github.com/google/uuid"
)

// DefaultDataFile is where the file store keeps its records.
const DefaultDataFile = "data/calibration/ocr-calibration.json"

// FileStore keeps all results in one pretty-printed JSON array. Every
// operation reads the file, and writes go through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore returns a store backed by path, DefaultDataFile when empty.
// The file is created on first write.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultDataFile
	}
	return &FileStore{path: path, now: time.Now}
}

// Path reports the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() ([]models.CalibrationResult, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.CalibrationResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	out := []models.CalibrationResult{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return out, nil
}

func (s *FileStore) write(records []models.CalibrationResult) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".calibration-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Save(ctx context.Context, r *models.CalibrationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	records = append(records, *r)
	return s.write(records)
}

func (s *FileStore) FindAll(ctx context.Context) ([]models.CalibrationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) FindByID(ctx context.Context, id string) (models.CalibrationResult, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return models.CalibrationResult{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return models.CalibrationResult{}, ErrNotFound
}

func (s *FileStore) Update(ctx context.Context, id string, u models.CalibrationUpdate) (models.CalibrationResult, error) {
	if err := ctx.Err(); err != nil {
		return models.CalibrationResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return models.CalibrationResult{}, err
	}
	for i := range records {
		if records[i].ID != id {
			continue
		}
		u.Apply(&records[i])
		if err := s.write(records); err != nil {
			return models.CalibrationResult{}, err
		}
		return records[i], nil
	}
	return models.CalibrationResult{}, ErrNotFound
}

func (s *FileStore) PruneOlderThan(ctx context.Context, days int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	limit, err := cutoff(s.now(), days)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return 0, err
	}
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(limit) {
			kept = append(kept, r)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(kept); err != nil {
		return 0, err
	}
	log.WithField("removed", removed).Infof("pruned results older than %d days", days)
	return removed, nil
}

func (s *FileStore) FindIncorrect(ctx context.Context, limit int) ([]models.CalibrationResult, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.CalibrationResult{}
	for _, r := range all {
		if !r.IsCorrect {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op; the file is not held open between calls.
func (s *FileStore) Close() error { return nil }
