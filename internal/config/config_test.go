package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketchart/internal/timerange"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chartd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, timerange.PeriodAllTime, cfg.Chart.Period())
	assert.Equal(t, 30*24*time.Hour, cfg.Pipeline.ArchiveAfter())
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "server"

[chart]
default_period = "1w"
history_limit = 500

[pipeline]
history_fidelity = "15m"

[server]
port = 9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, timerange.PeriodWeekly, cfg.Chart.Period())
	assert.Equal(t, 500, cfg.Chart.HistoryLimit)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.HistoryFidelity.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHARTD_MODE", "sync")
	t.Setenv("CHARTD_POSTGRES_DSN", "postgres://env")
	t.Setenv("CHARTD_REDIS_CACHE_TTL", "90s")
	t.Setenv("CHARTD_SERVER_CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("CHARTD_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sync", cfg.Mode)
	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
	assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL.Duration)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(writeTOML(t, "mode = "))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Chart.DefaultPeriod = "fortnight"
	cfg.Pipeline.ArchiveCron = "0 3 * *"
	cfg.Pipeline.HistoryFidelity = duration{time.Second}
	cfg.Server.Port = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"chart: default_period",
		"pipeline: archive_cron",
		"pipeline: history_fidelity",
		"server: port",
		"redis: addr",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ModeScopesSections(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sync"
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate())

	cfg = Defaults()
	cfg.Mode = "server"
	cfg.Polymarket.GammaHost = ""
	cfg.Pipeline.MarketInterval = duration{}
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "key"
	cfg.S3.SecretKey = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.S3.SecretKey)
	assert.Equal(t, "pw", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
