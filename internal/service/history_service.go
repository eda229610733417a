package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// archiveHorizon is far enough ahead to cover every stored sample.
var archiveHorizon = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// HistoryService owns market price history: ingestion into Postgres, reads
// that fall back to the S3 archive, and moving finished markets to the
// archive.
type HistoryService struct {
	markets domain.MarketStore
	points  domain.PricePointStore
	archive domain.HistoryArchive
	logger  *slog.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(
	markets domain.MarketStore,
	points domain.PricePointStore,
	archive domain.HistoryArchive,
	logger *slog.Logger,
) *HistoryService {
	return &HistoryService{
		markets: markets,
		points:  points,
		archive: archive,
		logger:  logger,
	}
}

// Ingest stores freshly scraped samples. Duplicates are ignored.
func (s *HistoryService) Ingest(ctx context.Context, points []domain.PricePoint) error {
	if err := s.points.InsertBatch(ctx, points); err != nil {
		return fmt.Errorf("history_service: ingest: %w", err)
	}
	return nil
}

// Since returns the instant from which the market's history still needs
// fetching: just after the newest stored sample, or its creation time.
func (s *HistoryService) Since(ctx context.Context, m domain.Market) (time.Time, error) {
	last, err := s.points.LastTimestamp(ctx, m.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return m.CreatedAt, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("history_service: since %s: %w", m.ID, err)
	}
	return last.Add(time.Second), nil
}

// Points returns the samples of m within [from, to], thinned to at most
// limit points when limit is positive.
func (s *HistoryService) Points(ctx context.Context, m domain.Market, from, to time.Time, limit int) ([]domain.PricePoint, error) {
	var (
		points []domain.PricePoint
		err    error
	)
	if m.HistoryArchived {
		points, err = s.archive.Read(ctx, m.ID, from, to)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
	} else {
		points, err = s.points.ListRange(ctx, m.ID, from, to, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("history_service: points %s: %w", m.ID, err)
	}
	return downsample(points, limit), nil
}

// Archivable lists resolved markets whose history can leave Postgres.
func (s *HistoryService) Archivable(ctx context.Context, resolvedBefore time.Time, limit int) ([]domain.Market, error) {
	markets, err := s.markets.ListArchivable(ctx, resolvedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("history_service: archivable: %w", err)
	}
	return markets, nil
}

// ArchiveMarket uploads the full history of m, flags the market as archived
// and then drops its rows. Rows are only removed once the flag is set so a
// failed run never loses data. It returns the number of archived samples.
func (s *HistoryService) ArchiveMarket(ctx context.Context, m domain.Market) (int, error) {
	points, err := s.points.ListRange(ctx, m.ID, time.Time{}, archiveHorizon, 0)
	if err != nil {
		return 0, fmt.Errorf("history_service: archive %s: load: %w", m.ID, err)
	}
	if err := s.archive.Write(ctx, m.ID, points); err != nil {
		return 0, fmt.Errorf("history_service: archive %s: %w", m.ID, err)
	}
	if err := s.markets.MarkHistoryArchived(ctx, m.ID); err != nil {
		return 0, fmt.Errorf("history_service: archive %s: mark: %w", m.ID, err)
	}

	deleted, err := s.points.DeleteByMarket(ctx, m.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "history_service: delete archived rows failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "history_service: archived market",
		slog.String("market_id", m.ID),
		slog.Int("points", len(points)),
		slog.Int64("deleted", deleted),
	)
	return len(points), nil
}

// downsample keeps at most limit points, evenly spread and always keeping
// the first and last sample.
func downsample(points []domain.PricePoint, limit int) []domain.PricePoint {
	if limit <= 0 || len(points) <= limit {
		return points
	}
	if limit == 1 {
		return points[len(points)-1:]
	}
	out := make([]domain.PricePoint, limit)
	step := float64(len(points)-1) / float64(limit-1)
	for i := range out {
		out[i] = points[int(float64(i)*step+0.5)]
	}
	return out
}
