package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Schedule configures how often each pipeline runs.
type Schedule struct {
	MarketInterval  time.Duration
	HistoryInterval time.Duration
	ArchiveCron     string
}

// Orchestrator runs the market scraper, the history scraper and the
// archiver side by side.
type Orchestrator struct {
	markets  *MarketScraper
	history  *HistoryScraper
	archiver *Archiver
	schedule Schedule
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A nil pipeline is not run.
func NewOrchestrator(
	markets *MarketScraper,
	history *HistoryScraper,
	archiver *Archiver,
	schedule Schedule,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		markets:  markets,
		history:  history,
		archiver: archiver,
		schedule: schedule,
		logger:   logger,
	}
}

// Run starts every configured pipeline in an errgroup and blocks until ctx
// is cancelled or one of them fails for a reason other than cancellation.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline: orchestrator starting",
		slog.Duration("market_interval", o.schedule.MarketInterval),
		slog.Duration("history_interval", o.schedule.HistoryInterval),
		slog.String("archive_cron", o.schedule.ArchiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.markets != nil {
		g.Go(func() error {
			return stopped(ctx, "market scraper", o.markets.RunLoop(ctx, o.schedule.MarketInterval))
		})
	}
	if o.history != nil {
		g.Go(func() error {
			return stopped(ctx, "history scraper", o.history.RunLoop(ctx, o.schedule.HistoryInterval))
		})
	}
	if o.archiver != nil {
		g.Go(func() error {
			return stopped(ctx, "archiver", o.archiver.RunCron(ctx, o.schedule.ArchiveCron))
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.ErrorContext(ctx, "pipeline: orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline: orchestrator stopped cleanly")
	return nil
}

// stopped turns a loop's exit into an errgroup result: nil on shutdown.
func stopped(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil || err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
