package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// MarketService handles market metadata sync and cached lookups.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	bus     domain.SignalBus
	logger  *slog.Logger
	now     func() time.Time
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// SyncMarkets upserts a batch of markets, invalidates their cache entries and
// publishes a MarketBoundsEvent for every already known market whose chart
// bounds changed. It returns the number of events published.
func (s *MarketService) SyncMarkets(ctx context.Context, markets []domain.Market) (int, error) {
	if len(markets) == 0 {
		return 0, nil
	}

	ids := make([]string, len(markets))
	for i, m := range markets {
		ids[i] = m.ID
	}
	previous, err := s.markets.GetManyByID(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("market_service: load previous: %w", err)
	}

	if err := s.markets.UpsertBatch(ctx, markets); err != nil {
		return 0, fmt.Errorf("market_service: upsert batch: %w", err)
	}

	now := s.now()
	published := 0
	for _, m := range markets {
		if err := s.cache.Invalidate(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}

		old, known := previous[m.ID]
		if !known {
			continue
		}
		next := m.Bounds(now)
		if old.Bounds(now).Equal(next) {
			continue
		}
		if err := s.publishBounds(ctx, m.ID, next.Start, next.End); err != nil {
			s.logger.WarnContext(ctx, "market_service: publish bounds failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		published++
	}

	s.logger.InfoContext(ctx, "market_service: synced markets",
		slog.Int("count", len(markets)),
		slog.Int("bounds_changed", published),
	)
	return published, nil
}

func (s *MarketService) publishBounds(ctx context.Context, id string, start int64, end *int64) error {
	payload, err := json.Marshal(domain.MarketBoundsEvent{MarketID: id, Start: start, End: end})
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, domain.ChannelMarketBounds, payload)
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a cache miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListActive returns active markets directly from the persistent store.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}
