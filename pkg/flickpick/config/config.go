// Package config loads server settings from the environment, .env files and
// an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrUnknownDBDriver = errors.New("config: db driver must be sqlite or postgres")
	ErrMissingDSN      = errors.New("config: database dsn is required")
)

const devJWTSecret = "flickpick-dev-secret-change-in-production"

// Config holds application configuration
type Config struct {
	Port          string
	DBDriver      string
	DBDSN         string
	JWTSecret     string
	TokenTTL      time.Duration
	TMDB          TMDBConfig
	Cache         CacheConfig
	SeedRulesFile string
	LogLevel      string
	LogFormat     string
	AdminEmail    string
	AdminPassword string
}

// TMDBConfig configures the external movie catalog
type TMDBConfig struct {
	ReadToken string
	APIKey    string
	Region    string
	Timeout   time.Duration
	MaxPages  int
}

// CacheConfig configures the catalog page cache. An empty RedisURL selects
// the in-process cache.
type CacheConfig struct {
	RedisURL string
	Size     int
	TTL      time.Duration
}

// Default returns the built-in defaults
func Default() *Config {
	return &Config{
		Port:      "8080",
		DBDriver:  "sqlite",
		DBDSN:     "flickpick.db",
		JWTSecret: devJWTSecret,
		TokenTTL:  60 * time.Minute,
		TMDB: TMDBConfig{
			Region:   "US",
			Timeout:  7 * time.Second,
			MaxPages: 5,
		},
		Cache: CacheConfig{
			Size: 512,
			TTL:  30 * time.Minute,
		},
		LogLevel:   "info",
		LogFormat:  "text",
		AdminEmail: "admin@flickpick.local",
	}
}

// Load builds config from defaults and environment variables. Variables
// from .env.local and .env are applied first without overriding ones
// already set.
func Load() (*Config, error) {
	loadEnvFiles()
	c := Default()
	c.applyEnv()
	return c, c.Validate()
}

func loadEnvFiles() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read env file", "file", name, "error", err)
		}
	}
}

func (c *Config) applyEnv() {
	setString(&c.Port, "FLICKPICK_PORT")
	setString(&c.Port, "PORT")
	setString(&c.DBDriver, "FLICKPICK_DB_DRIVER")
	setString(&c.DBDSN, "FLICKPICK_DB_DSN")
	setString(&c.JWTSecret, "JWT_SECRET")
	setDuration(&c.TokenTTL, "TOKEN_TTL")
	setString(&c.TMDB.ReadToken, "TMDB_READ_TOKEN")
	setString(&c.TMDB.APIKey, "TMDB_API_KEY")
	setString(&c.TMDB.Region, "TMDB_REGION")
	setDuration(&c.TMDB.Timeout, "CATALOG_TIMEOUT")
	setInt(&c.TMDB.MaxPages, "CATALOG_MAX_PAGES")
	setString(&c.Cache.RedisURL, "REDIS_URL")
	setInt(&c.Cache.Size, "CACHE_SIZE")
	setDuration(&c.Cache.TTL, "CACHE_TTL")
	setString(&c.SeedRulesFile, "SEED_RULES_FILE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.AdminEmail, "ADMIN_EMAIL")
	setString(&c.AdminPassword, "ADMIN_PASSWORD")
}

// Validate checks the settings that cannot fall back to a default
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDBDriver, c.DBDriver)
	}
	if c.DBDSN == "" {
		return ErrMissingDSN
	}
	return nil
}

// CatalogConfigured reports whether TMDb credentials are present
func (c *Config) CatalogConfigured() bool {
	return c.TMDB.ReadToken != "" || c.TMDB.APIKey != ""
}

// UsesDevSecret reports whether the built-in development JWT secret is in use
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

// SlogLevel parses LogLevel, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
