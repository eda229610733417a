package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CHARTD_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CHARTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform convention; CHARTD_ wins
	setStr(&cfg.Postgres.DSN, "CHARTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CHARTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CHARTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CHARTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CHARTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CHARTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CHARTD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CHARTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CHARTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CHARTD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CHARTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CHARTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CHARTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CHARTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CHARTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CHARTD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "CHARTD_REDIS_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CHARTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CHARTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "CHARTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CHARTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CHARTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CHARTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CHARTD_S3_FORCE_PATH_STYLE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "CHARTD_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "CHARTD_POLYMARKET_CLOB_HOST")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "CHARTD_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.MarketInterval, "CHARTD_PIPELINE_MARKET_INTERVAL")
	setDuration(&cfg.Pipeline.HistoryInterval, "CHARTD_PIPELINE_HISTORY_INTERVAL")
	setDuration(&cfg.Pipeline.HistoryFidelity, "CHARTD_PIPELINE_HISTORY_FIDELITY")
	setStr(&cfg.Pipeline.ArchiveCron, "CHARTD_PIPELINE_ARCHIVE_CRON")
	setInt(&cfg.Pipeline.ArchiveAfterDays, "CHARTD_PIPELINE_ARCHIVE_AFTER_DAYS")

	// ── Chart ──
	setStr(&cfg.Chart.DefaultPeriod, "CHARTD_CHART_DEFAULT_PERIOD")
	setInt(&cfg.Chart.HistoryLimit, "CHARTD_CHART_HISTORY_LIMIT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CHARTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CHARTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CHARTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CHARTD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CHARTD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CHARTD_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "CHARTD_MODE")
	setStr(&cfg.LogLevel, "CHARTD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
