// Package config defines the top-level configuration for chartd and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketchart/internal/pipeline"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CHARTD_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Chart      ChartConfig      `toml:"chart"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the history
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PolymarketConfig holds the public API endpoints markets and price history
// are read from.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
}

// PipelineConfig holds sync and archival parameters.
type PipelineConfig struct {
	Enabled          bool     `toml:"enabled"`
	MarketInterval   duration `toml:"market_interval"`
	HistoryInterval  duration `toml:"history_interval"`
	HistoryFidelity  duration `toml:"history_fidelity"`
	ArchiveCron      string   `toml:"archive_cron"`
	ArchiveAfterDays int      `toml:"archive_after_days"`
}

// ArchiveAfter is the resolved-age after which a market's history moves to S3.
func (p PipelineConfig) ArchiveAfter() time.Duration {
	return time.Duration(p.ArchiveAfterDays) * 24 * time.Hour
}

// ChartConfig holds chart window defaults.
type ChartConfig struct {
	DefaultPeriod string `toml:"default_period"`
	HistoryLimit  int    `toml:"history_limit"`
}

// Period returns the parsed default period, falling back to allTime.
func (c ChartConfig) Period() timerange.Period {
	p, err := timerange.ParsePeriod(c.DefaultPeriod)
	if err != nil {
		return timerange.PeriodAllTime
	}
	return p
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "chartd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			CacheTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "chartd-history",
			ForcePathStyle: true,
		},
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
		},
		Pipeline: PipelineConfig{
			Enabled:          true,
			MarketInterval:   duration{5 * time.Minute},
			HistoryInterval:  duration{10 * time.Minute},
			HistoryFidelity:  duration{time.Hour},
			ArchiveCron:      "0 3 * * *",
			ArchiveAfterDays: 30,
		},
		Chart: ChartConfig{
			DefaultPeriod: string(timerange.PeriodAllTime),
			HistoryLimit:  2000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"sync":   true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, sync, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, "redis: cache_ttl must be > 0")
	}

	// S3
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Polymarket
	if mode != "server" {
		if c.Polymarket.GammaHost == "" {
			errs = append(errs, "polymarket: gamma_host must not be empty")
		}
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host must not be empty")
		}
	}

	// Pipeline
	if c.Pipeline.Enabled && mode != "server" {
		if c.Pipeline.MarketInterval.Duration <= 0 {
			errs = append(errs, "pipeline: market_interval must be > 0")
		}
		if c.Pipeline.HistoryInterval.Duration <= 0 {
			errs = append(errs, "pipeline: history_interval must be > 0")
		}
		if c.Pipeline.HistoryFidelity.Duration < time.Minute {
			errs = append(errs, "pipeline: history_fidelity must be at least 1m")
		}
		if c.Pipeline.ArchiveCron != "" {
			if err := pipeline.ValidateCron(c.Pipeline.ArchiveCron); err != nil {
				errs = append(errs, fmt.Sprintf("pipeline: archive_cron: %v", err))
			}
		}
		if c.Pipeline.ArchiveAfterDays < 0 {
			errs = append(errs, "pipeline: archive_after_days must be >= 0")
		}
	}

	// Chart
	if _, err := timerange.ParsePeriod(c.Chart.DefaultPeriod); err != nil {
		errs = append(errs, fmt.Sprintf("chart: default_period: %v", err))
	}
	if c.Chart.HistoryLimit < 0 {
		errs = append(errs, "chart: history_limit must be >= 0")
	}

	// Server
	if c.Server.Enabled && mode != "sync" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
