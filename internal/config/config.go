// Package config loads the daemon configuration from tabserve.yaml with
// TABSERVE_* environment overrides. Missing file means defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// DataRoots are the directories served and watched for invalidation.
	// Empty means any path the caller names is accepted.
	DataRoots []string `yaml:"data_roots"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Cache     CacheConfig     `yaml:"cache"`
	Query     QueryConfig     `yaml:"query"`
	Ingest    IngestConfig    `yaml:"ingest"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// CacheConfig bounds the accessor registry and per-file caches.
type CacheConfig struct {
	// MaxAccessors bounds live file accessors.
	MaxAccessors int `yaml:"max_accessors"`
	// IdleTimeout evicts accessors unused for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// MaxEntries bounds cached selections per file.
	MaxEntries int `yaml:"max_entries"`
}

// QueryConfig bounds query results.
type QueryConfig struct {
	// DefaultLimit applies when a query names no limit.
	DefaultLimit int `yaml:"default_limit"`
	// MaxLimit caps any requested limit.
	MaxLimit int `yaml:"max_limit"`
}

// IngestConfig controls the optional parallel decode path.
type IngestConfig struct {
	Parallel bool `yaml:"parallel"`
	// Workers caps the ingestion pool (hard cap 8).
	Workers int `yaml:"workers"`
}

// RateLimitConfig limits tool calls per client per minute. 0 disables.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:   "localhost:8080",
		LogLevel: "info",
		Cache: CacheConfig{
			MaxAccessors: 5,
			IdleTimeout:  5 * time.Minute,
			MaxEntries:   10,
		},
		Query: QueryConfig{
			DefaultLimit: 100,
			MaxLimit:     10000,
		},
		Ingest: IngestConfig{
			Parallel: false,
			Workers:  4,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMin: 600,
			Burst:          60,
		},
	}
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return cfg, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays TABSERVE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("TABSERVE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("TABSERVE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v, ok := envInt("TABSERVE_MAX_ACCESSORS"); ok {
		c.Cache.MaxAccessors = v
	}
	if v := os.Getenv("TABSERVE_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.IdleTimeout = d
		}
	}
	if v, ok := envInt("TABSERVE_CACHE_MAX_ENTRIES"); ok {
		c.Cache.MaxEntries = v
	}
	if v, ok := envInt("TABSERVE_DEFAULT_LIMIT"); ok {
		c.Query.DefaultLimit = v
	}
	if v, ok := envInt("TABSERVE_MAX_LIMIT"); ok {
		c.Query.MaxLimit = v
	}
	if v := os.Getenv("TABSERVE_PARALLEL_INGEST"); v != "" {
		c.Ingest.Parallel = v == "true" || v == "1"
	}
	if v, ok := envInt("TABSERVE_INGEST_WORKERS"); ok {
		c.Ingest.Workers = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Cache.MaxAccessors <= 0 {
		return errors.New("cache.max_accessors must be positive")
	}
	if c.Cache.IdleTimeout < 0 {
		return errors.New("cache.idle_timeout must be non-negative")
	}
	if c.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive")
	}
	if c.Query.DefaultLimit <= 0 {
		return errors.New("query.default_limit must be positive")
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("query.max_limit (%d) must be >= query.default_limit (%d)",
			c.Query.MaxLimit, c.Query.DefaultLimit)
	}
	if c.Ingest.Workers < 0 {
		return errors.New("ingest.workers must be non-negative")
	}
	if c.RateLimit.RequestsPerMin < 0 {
		return errors.New("rate_limit.requests_per_min must be non-negative")
	}
	return nil
}
