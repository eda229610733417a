package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// HistoryArchiver is the archive side of the history service.
type HistoryArchiver interface {
	Archivable(ctx context.Context, resolvedBefore time.Time, limit int) ([]domain.Market, error)
	ArchiveMarket(ctx context.Context, m domain.Market) (int, error)
}

const (
	archiveLockKey   = "pipeline:archive"
	archiveBatchSize = 50
)

// Archiver moves the price history of long-resolved markets from Postgres
// to the S3 archive.
type Archiver struct {
	history      HistoryArchiver
	locks        domain.LockManager
	archiveAfter time.Duration
	lockTTL      time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewArchiver creates an Archiver for markets resolved more than
// archiveAfter ago. locks may be nil.
func NewArchiver(history HistoryArchiver, locks domain.LockManager, archiveAfter time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		history:      history,
		locks:        locks,
		archiveAfter: archiveAfter,
		lockTTL:      30 * time.Minute,
		logger:       logger.With(slog.String("component", "archiver")),
		now:          time.Now,
	}
}

// Run executes a single archive run under the archiver lock.
func (a *Archiver) Run(ctx context.Context) error {
	return runLocked(ctx, a.locks, archiveLockKey, a.lockTTL, a.logger, a.run)
}

func (a *Archiver) run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.archiveAfter)
	markets, points, failed := 0, 0, 0

	for {
		batch, err := a.history.Archivable(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("pipeline: list archivable before %s: %w", cutoff.Format(time.RFC3339), err)
		}

		progressed := false
		for _, m := range batch {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("pipeline: archive cancelled: %w", err)
			}
			n, err := a.history.ArchiveMarket(ctx, m)
			if err != nil {
				failed++
				a.logger.ErrorContext(ctx, "pipeline: archive market failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			progressed = true
			markets++
			points += n
		}

		// A batch made only of failures would come back unchanged.
		if len(batch) < archiveBatchSize || !progressed {
			break
		}
	}

	a.logger.InfoContext(ctx, "pipeline: archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int("markets", markets),
		slog.Int("points", points),
		slog.Int("failed", failed),
	)
	return nil
}

// RunCron runs the archiver on a 5-field UTC cron schedule, e.g.
// "0 3 * * *" for every day at 03:00, until ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("pipeline: archive schedule: %w", err)
	}

	for {
		next, err := sched.next(a.now())
		if err != nil {
			return fmt.Errorf("pipeline: archive schedule %q: %w", expr, err)
		}
		wait := time.Until(next)
		a.logger.InfoContext(ctx, "pipeline: archiver waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "pipeline: archiver stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.ErrorContext(ctx, "pipeline: archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
