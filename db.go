package main

import (
	"fmt"

	"cardscan/pkg/config"
	"cardscan/pkg/store"
)

// initStore opens the repository selected by STORE_DRIVER.
func initStore(cfg *config.Config) (store.Repository, error) {
	repo, err := store.Open(cfg.Store())
	if err != nil {
		return nil, err
	}
	switch r := repo.(type) {
	case *store.FileStore:
		log.WithField("path", r.Path()).Info("using file store")
	default:
		log.WithField("driver", cfg.StoreDriver).Info("using database store")
	}
	return repo, nil
}

// runMigrate creates or updates the calibration_results table. Unlike
// startup, a failed migration here is an error.
func runMigrate(cfg *config.Config) error {
	sc := cfg.Store()
	if sc.Driver == store.DriverFile || sc.Driver == "" {
		return fmt.Errorf("migrate needs a database store_driver, got %q", sc.Driver)
	}
	sc.AutoMigrate = false
	s, err := store.OpenGorm(sc)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return fmt.Errorf("migrate calibration_results: %w", err)
	}
	return nil
}
