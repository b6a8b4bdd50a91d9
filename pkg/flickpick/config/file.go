package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Port     string `yaml:"port"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
	TMDB      struct {
		ReadToken string `yaml:"read_token"`
		APIKey    string `yaml:"api_key"`
		Region    string `yaml:"region"`
		Timeout   string `yaml:"timeout"`
		MaxPages  int    `yaml:"max_pages"`
	} `yaml:"tmdb"`
	Cache struct {
		RedisURL string `yaml:"redis_url"`
		Size     int    `yaml:"size"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
	SeedRulesFile string `yaml:"seed_rules_file"`
	Log           struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Admin struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
}

// LoadFromFile loads config from a YAML file. Environment variables still
// take precedence over values in the file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	c := Default()
	overlay(&c.Port, f.Port)
	overlay(&c.DBDriver, f.Database.Driver)
	overlay(&c.DBDSN, f.Database.DSN)
	overlay(&c.JWTSecret, f.JWTSecret)
	overlayDuration(&c.TokenTTL, f.TokenTTL)
	overlay(&c.TMDB.ReadToken, f.TMDB.ReadToken)
	overlay(&c.TMDB.APIKey, f.TMDB.APIKey)
	overlay(&c.TMDB.Region, f.TMDB.Region)
	overlayDuration(&c.TMDB.Timeout, f.TMDB.Timeout)
	if f.TMDB.MaxPages > 0 {
		c.TMDB.MaxPages = f.TMDB.MaxPages
	}
	overlay(&c.Cache.RedisURL, f.Cache.RedisURL)
	if f.Cache.Size > 0 {
		c.Cache.Size = f.Cache.Size
	}
	overlayDuration(&c.Cache.TTL, f.Cache.TTL)
	overlay(&c.SeedRulesFile, f.SeedRulesFile)
	overlay(&c.LogLevel, f.Log.Level)
	overlay(&c.LogFormat, f.Log.Format)
	overlay(&c.AdminEmail, f.Admin.Email)
	overlay(&c.AdminPassword, f.Admin.Password)

	loadEnvFiles()
	c.applyEnv()
	return c, c.Validate()
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
