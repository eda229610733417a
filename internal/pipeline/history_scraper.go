package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// ActiveLister pages through stored active markets.
type ActiveLister interface {
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// HistoryIngester stores scraped samples and knows where each market's
// stored history ends.
type HistoryIngester interface {
	Since(ctx context.Context, m domain.Market) (time.Time, error)
	Ingest(ctx context.Context, points []domain.PricePoint) error
}

// PriceHistoryFetcher reads a market's price history from the exchange.
type PriceHistoryFetcher interface {
	GetPriceHistory(ctx context.Context, m domain.Market, from, to time.Time, fidelity time.Duration) ([]domain.PricePoint, error)
}

const historyLockKey = "pipeline:history"

// HistoryScraper appends new price samples for every active market.
type HistoryScraper struct {
	markets  ActiveLister
	history  HistoryIngester
	fetcher  PriceHistoryFetcher
	locks    domain.LockManager
	fidelity time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewHistoryScraper creates a HistoryScraper sampling at fidelity. locks may
// be nil.
func NewHistoryScraper(
	markets ActiveLister,
	history HistoryIngester,
	fetcher PriceHistoryFetcher,
	locks domain.LockManager,
	fidelity time.Duration,
	logger *slog.Logger,
) *HistoryScraper {
	if fidelity < time.Minute {
		fidelity = time.Minute
	}
	return &HistoryScraper{
		markets:  markets,
		history:  history,
		fetcher:  fetcher,
		locks:    locks,
		fidelity: fidelity,
		lockTTL:  15 * time.Minute,
		logger:   logger.With(slog.String("component", "history_scraper")),
		now:      time.Now,
	}
}

// Run executes a single pass over the active markets under the scraper lock.
func (s *HistoryScraper) Run(ctx context.Context) error {
	return runLocked(ctx, s.locks, historyLockKey, s.lockTTL, s.logger, s.run)
}

func (s *HistoryScraper) run(ctx context.Context) error {
	now := s.now().UTC()
	scraped, failed, samples := 0, 0, 0

	for offset := 0; ; offset += marketPageSize {
		markets, err := s.markets.ListActive(ctx, domain.ListOpts{Limit: marketPageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("pipeline: list active markets: %w", err)
		}

		for _, m := range markets {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("pipeline: history scrape cancelled: %w", err)
			}
			n, err := s.scrapeMarket(ctx, m, now)
			if err != nil {
				failed++
				s.logger.WarnContext(ctx, "pipeline: scrape market history failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			scraped++
			samples += n
		}

		if len(markets) < marketPageSize {
			break
		}
	}

	s.logger.InfoContext(ctx, "pipeline: history scrape complete",
		slog.Int("markets", scraped),
		slog.Int("failed", failed),
		slog.Int("samples", samples),
	)
	return nil
}

func (s *HistoryScraper) scrapeMarket(ctx context.Context, m domain.Market, now time.Time) (int, error) {
	if m.TokenIDs[0] == "" || m.CreatedAt.IsZero() {
		return 0, nil
	}
	since, err := s.history.Since(ctx, m)
	if err != nil {
		return 0, err
	}
	if now.Sub(since) < s.fidelity {
		return 0, nil
	}

	points, err := s.fetcher.GetPriceHistory(ctx, m, since, now, s.fidelity)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.history.Ingest(ctx, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

// RunLoop runs the scraper immediately and then on every interval until ctx
// is cancelled.
func (s *HistoryScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	return tickLoop(ctx, interval, s.logger, "history scrape", s.Run)
}
