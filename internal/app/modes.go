package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketchart/internal/pipeline"
	"github.com/alanyoungcy/marketchart/internal/platform/polymarket"
	"github.com/alanyoungcy/marketchart/internal/server"
	"github.com/alanyoungcy/marketchart/internal/server/handler"
	"github.com/alanyoungcy/marketchart/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// ServerMode serves the chart API and live chart sessions without syncing.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SyncMode runs the market, history and archive pipelines only.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	if !a.cfg.Pipeline.Enabled {
		a.logger.WarnContext(ctx, "pipeline.enabled is false, but sync mode always runs the pipeline")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startDataPipeline(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the pipelines and the HTTP server side by side.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Pipeline.Enabled {
		a.startDataPipeline(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "pipeline disabled")
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "server disabled")
	}

	return g.Wait()
}

// startDataPipeline adds the pipeline orchestrator to the errgroup.
func (a *App) startDataPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	cfg := a.cfg.Pipeline
	logger := a.logger.With(slog.String("component", "pipeline"))

	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
	prices := polymarket.NewHistoryClient(a.cfg.Polymarket.ClobHost)

	markets := pipeline.NewMarketScraper(deps.Markets, gamma, deps.LockManager, logger)
	history := pipeline.NewHistoryScraper(
		deps.Markets, deps.History, prices, deps.LockManager,
		cfg.HistoryFidelity.Duration, logger,
	)

	var archiver *pipeline.Archiver
	if cfg.ArchiveCron != "" {
		archiver = pipeline.NewArchiver(deps.History, deps.LockManager, cfg.ArchiveAfter(), logger)
	}

	orch := pipeline.NewOrchestrator(markets, history, archiver, pipeline.Schedule{
		MarketInterval:  cfg.MarketInterval.Duration,
		HistoryInterval: cfg.HistoryInterval.Duration,
		ArchiveCron:     cfg.ArchiveCron,
	}, logger)

	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer adds the WebSocket hub, the HTTP server and its graceful
// shutdown to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	cfg := a.cfg.Server

	hub := ws.NewHub(deps.SignalBus, deps.Charts, cfg.CORSOrigins, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, string(a.cfg.Chart.Period()), deps.Markets, hub, a.logger),
		Markets: handler.NewMarketHandler(deps.Markets, a.logger),
		Charts:  handler.NewChartHandler(deps.Charts, a.logger),
		WS:      hub.HandleWS,
	}
	srv := server.NewServer(server.Config{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		APIKey:      cfg.APIKey,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
