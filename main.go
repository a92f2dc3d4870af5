package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cardscan/pkg/config"
	"cardscan/pkg/correct"
	"cardscan/pkg/ocr"
	"cardscan/pkg/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.WithField("component", "server")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:          "cardscan",
		Short:        "Card OCR calibration backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default ./cardscan.yaml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgFile)
		},
	}

	// migrate runs AutoMigrate then exits. Useful for CI or manual DB setup.
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the calibration_results table",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if err := runMigrate(cfg); err != nil {
				return err
			}
			fmt.Println("migration completed")
			return nil
		},
	}

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete calibration results older than --days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			repo, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()
			n, err := repo.PruneOlderThan(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d results older than %d days\n", n, days)
			return nil
		},
	}
	prune.Flags().IntVar(&days, "days", 30, "age in days")

	hash := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			h, err := hashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	root.AddCommand(serve, migrate, prune, hash)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	} else {
		logrus.Warnf("unknown log level %q, using info", cfg.LogLevel)
	}
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func runServe(ctx context.Context, cfgFile string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AuthEnabled() && cfg.JWTSecret == config.DevJWTSecret {
		log.Warn("JWT_SECRET is the development default; set it before exposing the API")
	}

	repo, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	engine, err := ocr.NewEngine(ocr.EngineConfig{Languages: cfg.Languages(), Whitelist: cfg.OCRWhitelist})
	if err != nil {
		return err
	}
	defer engine.Close()

	svc := service.New(repo, engine, correct.Default(), service.WithMaxImageBytes(cfg.MaxImageBytes))
	if cfg.RetentionDays > 0 {
		log.WithFields(logrus.Fields{"days": cfg.RetentionDays, "interval": cfg.RetentionInterval}).Info("retention enabled")
		go svc.RunRetention(ctx, cfg.RetentionDays, cfg.RetentionInterval)
	}

	r := gin.Default()
	setupRoutes(r, &server{
		svc:         svc,
		jwtSecret:   []byte(cfg.JWTSecret),
		adminHash:   cfg.AdminPasswordHash,
		corsOrigin:  cfg.CORSOrigin,
		staticDir:   cfg.StaticDir,
		maxBodySize: int64(cfg.MaxImageBytes),
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
