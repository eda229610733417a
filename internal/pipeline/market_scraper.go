package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// MarketSyncer persists a batch of markets and reports how many changed
// chart bounds.
type MarketSyncer interface {
	SyncMarkets(ctx context.Context, markets []domain.Market) (int, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// MarketFetcher retrieves markets from the metadata API.
type MarketFetcher interface {
	GetMarkets(ctx context.Context, limit, offset int, closed bool) ([]domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
}

const (
	marketPageSize = 100
	marketLockKey  = "pipeline:markets"
)

// MarketScraper keeps stored market metadata in step with the API. Besides
// paging through open markets it re-fetches stored active markets that
// dropped out of the open listing, which is how closures and resolutions
// reach the store.
type MarketScraper struct {
	syncer  MarketSyncer
	fetcher MarketFetcher
	locks   domain.LockManager
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewMarketScraper creates a new MarketScraper. locks may be nil.
func NewMarketScraper(syncer MarketSyncer, fetcher MarketFetcher, locks domain.LockManager, logger *slog.Logger) *MarketScraper {
	return &MarketScraper{
		syncer:  syncer,
		fetcher: fetcher,
		locks:   locks,
		lockTTL: 10 * time.Minute,
		logger:  logger.With(slog.String("component", "market_scraper")),
	}
}

// Run executes a single scrape under the scraper lock.
func (s *MarketScraper) Run(ctx context.Context) error {
	return runLocked(ctx, s.locks, marketLockKey, s.lockTTL, s.logger, s.run)
}

func (s *MarketScraper) run(ctx context.Context) error {
	seen := make(map[string]struct{})
	offset, total, changed := 0, 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: market scrape cancelled: %w", err)
		}

		markets, err := s.fetcher.GetMarkets(ctx, marketPageSize, offset, false)
		if err != nil {
			return fmt.Errorf("pipeline: fetch markets at offset %d: %w", offset, err)
		}
		if len(markets) == 0 {
			break
		}

		n, err := s.syncer.SyncMarkets(ctx, markets)
		if err != nil {
			return fmt.Errorf("pipeline: sync %d markets at offset %d: %w", len(markets), offset, err)
		}
		for _, m := range markets {
			seen[m.ID] = struct{}{}
		}
		total += len(markets)
		changed += n

		if len(markets) < marketPageSize {
			break
		}
		offset += marketPageSize
	}

	refreshed, n, err := s.refreshDeparted(ctx, seen)
	if err != nil {
		return err
	}
	changed += n

	s.logger.InfoContext(ctx, "pipeline: market scrape complete",
		slog.Int("open_synced", total),
		slog.Int("refreshed", refreshed),
		slog.Int("bounds_changed", changed),
	)
	return nil
}

// refreshDeparted re-fetches stored active markets missing from the open
// listing.
func (s *MarketScraper) refreshDeparted(ctx context.Context, seen map[string]struct{}) (int, int, error) {
	var departed []domain.Market
	for offset := 0; ; offset += marketPageSize {
		stored, err := s.syncer.ListActive(ctx, domain.ListOpts{Limit: marketPageSize, Offset: offset})
		if err != nil {
			return 0, 0, fmt.Errorf("pipeline: list stored active markets: %w", err)
		}
		for _, m := range stored {
			if _, ok := seen[m.ID]; !ok {
				departed = append(departed, m)
			}
		}
		if len(stored) < marketPageSize {
			break
		}
	}

	var fresh []domain.Market
	for _, m := range departed {
		latest, err := s.fetcher.GetMarket(ctx, m.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			s.logger.WarnContext(ctx, "pipeline: refresh market failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		fresh = append(fresh, latest)
	}
	if len(fresh) == 0 {
		return 0, 0, nil
	}

	n, err := s.syncer.SyncMarkets(ctx, fresh)
	if err != nil {
		return 0, 0, fmt.Errorf("pipeline: sync %d refreshed markets: %w", len(fresh), err)
	}
	return len(fresh), n, nil
}

// RunLoop runs the scraper immediately and then on every interval until ctx
// is cancelled.
func (s *MarketScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	return tickLoop(ctx, interval, s.logger, "market scrape", s.Run)
}
