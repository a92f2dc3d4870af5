// Package config loads service settings from .env, an optional YAML file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cardscan/pkg/store"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting. Each key maps to an upper-case
// environment variable of the same name (DB_DSN, JWT_SECRET, ...).
type Config struct {
	Port              int           `mapstructure:"port"`
	StoreDriver       string        `mapstructure:"store_driver"`
	DataFile          string        `mapstructure:"data_file"`
	DBDSN             string        `mapstructure:"db_dsn"`
	DBAutoMigrate     bool          `mapstructure:"db_auto_migrate"`
	OCRLanguages      string        `mapstructure:"ocr_languages"`
	OCRWhitelist      string        `mapstructure:"ocr_whitelist"`
	MaxImageBytes     int           `mapstructure:"max_image_bytes"`
	CORSOrigin        string        `mapstructure:"cors_origin"`
	StaticDir         string        `mapstructure:"static_dir"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	RetentionDays     int           `mapstructure:"retention_days"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
}

// DevJWTSecret is the development fallback when JWT_SECRET is unset.
const DevJWTSecret = "dev-insecure-secret-change"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("store_driver", store.DriverFile)
	v.SetDefault("data_file", store.DefaultDataFile)
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_auto_migrate", true)
	v.SetDefault("ocr_languages", "por+eng")
	v.SetDefault("ocr_whitelist", "")
	v.SetDefault("max_image_bytes", 10<<20)
	v.SetDefault("cors_origin", "http://localhost:5173")
	v.SetDefault("static_dir", "")
	v.SetDefault("jwt_secret", DevJWTSecret)
	v.SetDefault("admin_password_hash", "")
	v.SetDefault("retention_days", 0)
	v.SetDefault("retention_interval", "24h")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads .env (without overriding variables already set), then the YAML
// file at path or ./cardscan.yaml when path is empty, then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("cardscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case store.DriverFile:
	case store.DriverPostgres, store.DriverSQLite:
		if c.DBDSN == "" {
			return fmt.Errorf("store_driver %s requires DB_DSN", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("max_image_bytes must be positive")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if c.RetentionDays > 0 && c.RetentionInterval <= 0 {
		return fmt.Errorf("retention_interval must be positive when retention_days is set")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Store returns the repository settings.
func (c *Config) Store() store.Config {
	return store.Config{Driver: c.StoreDriver, DataFile: c.DataFile, DSN: c.DBDSN, AutoMigrate: c.DBAutoMigrate}
}

// Languages splits OCR_LANGUAGES ("por+eng") into Tesseract model names.
func (c *Config) Languages() []string {
	var out []string
	for _, l := range strings.Split(c.OCRLanguages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// AuthEnabled reports whether mutating routes require a token.
func (c *Config) AuthEnabled() bool {
	return c.AdminPasswordHash != ""
}
