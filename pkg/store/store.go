// Package store persists calibration results, either as a JSON document on
// disk or as a table behind gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardscan/models"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "store")

var (
	// ErrNotFound is returned when no result has the requested id.
	ErrNotFound = errors.New("calibration result not found")
	// ErrInvalidDays is returned for a negative retention window.
	ErrInvalidDays = errors.New("days must not be negative")
)

// Repository is the record store behind the calibration service.
// Implementations serialize read-modify-write cycles so concurrent updates
// are never lost.
type Repository interface {
	// Save assigns an id and timestamp when missing and appends r.
	Save(ctx context.Context, r *models.CalibrationResult) error
	// FindAll returns every result, oldest first.
	FindAll(ctx context.Context) ([]models.CalibrationResult, error)
	FindByID(ctx context.Context, id string) (models.CalibrationResult, error)
	// Update applies u to the stored result and returns the new version.
	Update(ctx context.Context, id string, u models.CalibrationUpdate) (models.CalibrationResult, error)
	// PruneOlderThan deletes results whose timestamp is not after now-days
	// and reports how many went.
	PruneOlderThan(ctx context.Context, days int) (int, error)
	// FindIncorrect returns results not marked correct, newest first. A
	// non-positive limit returns all of them.
	FindIncorrect(ctx context.Context, limit int) ([]models.CalibrationResult, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string
	DataFile    string
	DSN         string
	AutoMigrate bool
}

// Open builds the Repository named by cfg.Driver.
func Open(cfg Config) (Repository, error) {
	switch cfg.Driver {
	case DriverFile, "":
		return NewFileStore(cfg.DataFile), nil
	case DriverPostgres, DriverSQLite:
		return OpenGorm(cfg)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func cutoff(now time.Time, days int) (time.Time, error) {
	if days < 0 {
		return time.Time{}, ErrInvalidDays
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour), nil
}
