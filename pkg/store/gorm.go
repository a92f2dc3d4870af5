package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardscan/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// GormStore keeps results in the calibration_results table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenGorm connects to postgres or sqlite as named by cfg.Driver and, when
// cfg.AutoMigrate is set, migrates the schema. Migration failures are logged
// and do not stop startup.
func OpenGorm(cfg Config) (*GormStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s store requires a DSN", cfg.Driver)
	}
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s database: %w", cfg.Driver, err)
	}
	s := NewGormStore(db)
	if cfg.AutoMigrate {
		if err := s.Migrate(); err != nil {
			log.Warnf("migration warning (calibration_results): %v", err)
		}
	}
	return s, nil
}

// NewGormStore wraps an existing connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying connection.
func (s *GormStore) DB() *gorm.DB { return s.db }

// Migrate creates or updates the calibration_results table.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&models.CalibrationResult{})
}

func (s *GormStore) Save(ctx context.Context, r *models.CalibrationResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	r.Timestamp = r.Timestamp.UTC()
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *GormStore) FindAll(ctx context.Context) ([]models.CalibrationResult, error) {
	out := []models.CalibrationResult{}
	err := s.db.WithContext(ctx).Order("timestamp asc").Order("id asc").Find(&out).Error
	return out, err
}

func (s *GormStore) FindByID(ctx context.Context, id string) (models.CalibrationResult, error) {
	var r models.CalibrationResult
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, ErrNotFound
	}
	return r, err
}

func (s *GormStore) Update(ctx context.Context, id string, u models.CalibrationUpdate) (models.CalibrationResult, error) {
	var r models.CalibrationResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		u.Apply(&r)
		return tx.Save(&r).Error
	})
	return r, err
}

func (s *GormStore) PruneOlderThan(ctx context.Context, days int) (int, error) {
	limit, err := cutoff(s.now(), days)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("timestamp <= ?", limit).Delete(&models.CalibrationResult{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.WithField("removed", res.RowsAffected).Infof("pruned results older than %d days", days)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) FindIncorrect(ctx context.Context, limit int) ([]models.CalibrationResult, error) {
	out := []models.CalibrationResult{}
	q := s.db.WithContext(ctx).Where("is_correct = ?", false).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
