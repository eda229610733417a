package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

// MarketGetter is the slice of MarketService the chart service needs.
type MarketGetter interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
}

// HistoryReader is the slice of HistoryService the chart service needs.
type HistoryReader interface {
	Points(ctx context.Context, m domain.Market, from, to time.Time, limit int) ([]domain.PricePoint, error)
}

// RangeQuery is a stateless description of a chart window: a period plus
// an optional zoom. A nil Period keeps the controller's default.
type RangeQuery struct {
	Period *timerange.Period
	View   timerange.ViewWindow
	Values timerange.ValueRange
}

// ChartHistory is a computed range with the samples that fall inside it.
type ChartHistory struct {
	MarketID string                 `json:"market_id"`
	Range    timerange.Range        `json:"range"`
	Points   []domain.ArchivedPoint `json:"points"`
}

// ChartService turns markets into chart windows.
type ChartService struct {
	markets       MarketGetter
	history       HistoryReader
	defaultPeriod timerange.Period
	historyLimit  int
	logger        *slog.Logger
	now           func() time.Time
}

// NewChartService creates a ChartService. Controllers it hands out start on
// defaultPeriod and history responses hold at most historyLimit points.
func NewChartService(
	markets MarketGetter,
	history HistoryReader,
	defaultPeriod timerange.Period,
	historyLimit int,
	logger *slog.Logger,
) *ChartService {
	if !defaultPeriod.Valid() {
		defaultPeriod = timerange.PeriodAllTime
	}
	return &ChartService{
		markets:       markets,
		history:       history,
		defaultPeriod: defaultPeriod,
		historyLimit:  historyLimit,
		logger:        logger,
		now:           time.Now,
	}
}

// Bounds returns the chart bounds of a market. domain.ErrBoundsUnavailable
// is returned while the market's creation time is unknown.
func (s *ChartService) Bounds(ctx context.Context, marketID string) (timerange.Bounds, error) {
	m, err := s.markets.GetMarket(ctx, marketID)
	if err != nil {
		return timerange.Bounds{}, fmt.Errorf("chart_service: bounds: %w", err)
	}
	return s.boundsOf(m)
}

func (s *ChartService) boundsOf(m domain.Market) (timerange.Bounds, error) {
	if m.CreatedAt.IsZero() {
		return timerange.Bounds{}, fmt.Errorf("chart_service: market %s: %w", m.ID, domain.ErrBoundsUnavailable)
	}
	return m.Bounds(s.now()), nil
}

// NewController returns a controller for the market's bounds, on the
// configured default period and sharing the service clock.
func (s *ChartService) NewController(ctx context.Context, marketID string) (*timerange.Controller, error) {
	b, err := s.Bounds(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return s.controllerFor(b), nil
}

func (s *ChartService) controllerFor(b timerange.Bounds) *timerange.Controller {
	return timerange.NewController(b,
		timerange.WithClock(s.now),
		timerange.WithPeriod(s.defaultPeriod),
	)
}

// Range evaluates q against the market's bounds. The period is applied
// before the zoom since a period change clears any zoom.
func (s *ChartService) Range(ctx context.Context, marketID string, q RangeQuery) (timerange.Range, error) {
	m, err := s.markets.GetMarket(ctx, marketID)
	if err != nil {
		return timerange.Range{}, fmt.Errorf("chart_service: range: %w", err)
	}
	return s.rangeOf(m, q)
}

func (s *ChartService) rangeOf(m domain.Market, q RangeQuery) (timerange.Range, error) {
	b, err := s.boundsOf(m)
	if err != nil {
		return timerange.Range{}, err
	}
	c := s.controllerFor(b)
	if q.Period != nil {
		c.SetPeriod(*q.Period)
	}
	if !q.View.IsZero() {
		c.SetViewWindow(q.View)
	}
	if !q.Values.IsZero() {
		c.SetValueRange(q.Values)
	}
	return c.Range(), nil
}

// History returns the range for q together with the market's samples
// inside it.
func (s *ChartService) History(ctx context.Context, marketID string, q RangeQuery) (ChartHistory, error) {
	m, err := s.markets.GetMarket(ctx, marketID)
	if err != nil {
		return ChartHistory{}, fmt.Errorf("chart_service: history: %w", err)
	}
	r, err := s.rangeOf(m, q)
	if err != nil {
		return ChartHistory{}, err
	}

	points, err := s.history.Points(ctx, m,
		time.UnixMilli(r.Start).UTC(), time.UnixMilli(r.End).UTC(), s.historyLimit)
	if err != nil {
		return ChartHistory{}, fmt.Errorf("chart_service: history: %w", err)
	}

	out := ChartHistory{
		MarketID: m.ID,
		Range:    r,
		Points:   make([]domain.ArchivedPoint, 0, len(points)),
	}
	for _, p := range points {
		out.Points = append(out.Points, p.Compact())
	}
	s.logger.DebugContext(ctx, "chart_service: history",
		slog.String("market_id", m.ID),
		slog.String("period", string(r.Period)),
		slog.Int("points", len(out.Points)),
	)
	return out, nil
}
