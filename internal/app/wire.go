package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/marketchart/internal/blob/s3"
	"github.com/alanyoungcy/marketchart/internal/cache/redis"
	"github.com/alanyoungcy/marketchart/internal/config"
	"github.com/alanyoungcy/marketchart/internal/domain"
	"github.com/alanyoungcy/marketchart/internal/server/handler"
	"github.com/alanyoungcy/marketchart/internal/service"
	"github.com/alanyoungcy/marketchart/internal/store/postgres"
)

// Dependencies bundles the infrastructure and services the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	PriceStore  domain.PricePointStore

	// Caches
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	HistoryArchive domain.HistoryArchive

	// Services
	Markets *service.MarketService
	History *service.HistoryService
	Charts  *service.ChartService

	// HealthChecks ping every backing store for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PriceStore = postgres.NewPricePointStore(pool)
	deps.HealthChecks["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 history archive ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	deps.HistoryArchive = s3blob.NewHistoryArchive(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
	deps.HealthChecks["s3"] = s3Client.Health

	// --- Services ---
	deps.Markets = service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.SignalBus,
		logger.With(slog.String("component", "market_service")),
	)
	deps.History = service.NewHistoryService(
		deps.MarketStore, deps.PriceStore, deps.HistoryArchive,
		logger.With(slog.String("component", "history_service")),
	)
	deps.Charts = service.NewChartService(
		deps.Markets, deps.History,
		cfg.Chart.Period(), cfg.Chart.HistoryLimit,
		logger.With(slog.String("component", "chart_service")),
	)

	return deps, cleanup, nil
}
