package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketchart/internal/domain"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

var (
	t0      = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testNow = t0.Add(60 * 24 * time.Hour)
)

func tp(t time.Time) *time.Time { return &t }

func activeMarket(id string) domain.Market {
	return domain.Market{
		ID:        id,
		Status:    domain.MarketStatusActive,
		CreatedAt: t0,
		CloseTime: tp(t0.Add(90 * 24 * time.Hour)),
		TokenIDs:  [2]string{id + "-yes", id + "-no"},
	}
}

func TestMarketService_GetMarket_CacheThrough(t *testing.T) {
	store := newFakeMarketStore(activeMarket("m1"))
	cache := newFakeCache()
	svc := NewMarketService(store, cache, &fakeBus{}, discardLogger())
	ctx := context.Background()

	m, err := svc.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, 1, store.getCalls)

	_, err = svc.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.getCalls, "second read is served from cache")

	_, err = svc.GetMarket(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketService_SyncMarkets_PublishesOnBoundsChange(t *testing.T) {
	unchanged := activeMarket("same")
	closing := activeMarket("closing")
	store := newFakeMarketStore(unchanged, closing)
	cache := newFakeCache()
	bus := &fakeBus{}
	svc := NewMarketService(store, cache, bus, discardLogger())
	svc.now = func() time.Time { return testNow }

	resolved := closing
	resolved.Status = domain.MarketStatusResolved
	resolved.ResolutionTime = tp(t0.Add(50 * 24 * time.Hour))

	fresh := activeMarket("fresh")

	n, err := svc.SyncMarkets(context.Background(), []domain.Market{unchanged, resolved, fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"same", "closing", "fresh"}, cache.invalidated)

	require.Len(t, bus.sent, 1)
	assert.Equal(t, domain.ChannelMarketBounds, bus.sent[0].channel)

	var evt domain.MarketBoundsEvent
	require.NoError(t, json.Unmarshal(bus.sent[0].payload, &evt))
	assert.Equal(t, "closing", evt.MarketID)
	assert.Equal(t, t0.UnixMilli(), evt.Start)
	require.NotNil(t, evt.End)
	assert.Equal(t, resolved.ResolutionTime.UnixMilli(), *evt.End)

	stored, err := store.GetByID(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.ID)
}

func TestMarketService_SyncMarkets_Empty(t *testing.T) {
	svc := NewMarketService(newFakeMarketStore(), newFakeCache(), &fakeBus{}, discardLogger())
	n, err := svc.SyncMarkets(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func newChartFixture(t *testing.T, ms ...domain.Market) (*ChartService, *fakePointStore, *fakeArchive) {
	t.Helper()
	store := newFakeMarketStore(ms...)
	points := newFakePointStore()
	archive := newFakeArchive()
	markets := NewMarketService(store, newFakeCache(), &fakeBus{}, discardLogger())
	history := NewHistoryService(store, points, archive, discardLogger())

	svc := NewChartService(markets, history, timerange.PeriodAllTime, 0, discardLogger())
	svc.now = func() time.Time { return testNow }
	return svc, points, archive
}

func TestChartService_Range(t *testing.T) {
	svc, _, _ := newChartFixture(t, activeMarket("m1"))
	ctx := context.Background()

	r, err := svc.Range(ctx, "m1", RangeQuery{})
	require.NoError(t, err)
	assert.Equal(t, timerange.PeriodAllTime, r.Period)
	assert.Equal(t, t0.UnixMilli(), r.Start)
	assert.Equal(t, testNow.UnixMilli(), r.End)
	assert.True(t, r.Open)

	weekly := timerange.PeriodWeekly
	r, err = svc.Range(ctx, "m1", RangeQuery{Period: &weekly})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-7*24*time.Hour).UnixMilli(), r.Start)

	viewStart := testNow.Add(-48 * time.Hour).UnixMilli()
	r, err = svc.Range(ctx, "m1", RangeQuery{
		Period: &weekly,
		View:   timerange.ViewWindow{Start: &viewStart},
	})
	require.NoError(t, err)
	assert.Equal(t, viewStart, r.Start)
	assert.True(t, r.Zoomed)
}

func TestChartService_BoundsUnavailable(t *testing.T) {
	svc, _, _ := newChartFixture(t, domain.Market{ID: "new"})

	_, err := svc.Range(context.Background(), "new", RangeQuery{})
	assert.ErrorIs(t, err, domain.ErrBoundsUnavailable)

	_, err = svc.NewController(context.Background(), "new")
	assert.ErrorIs(t, err, domain.ErrBoundsUnavailable)

	_, err = svc.Bounds(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChartService_NewControllerUsesDefaultPeriod(t *testing.T) {
	svc, _, _ := newChartFixture(t, activeMarket("m1"))
	svc.defaultPeriod = timerange.PeriodMonthly

	c, err := svc.NewController(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, timerange.PeriodMonthly, c.Period())
	assert.Equal(t, testNow.UnixMilli(), c.Range().End)
}

func TestChartService_History(t *testing.T) {
	svc, points, _ := newChartFixture(t, activeMarket("m1"))
	ctx := context.Background()

	var samples []domain.PricePoint
	for i := 0; i < 10; i++ {
		samples = append(samples, domain.PricePoint{
			MarketID:  "m1",
			Timestamp: testNow.Add(-time.Duration(10-i) * 24 * time.Hour),
			Price:     float64(i) / 10,
		})
	}
	require.NoError(t, points.InsertBatch(ctx, samples))

	daily := timerange.PeriodDaily
	h, err := svc.History(ctx, "m1", RangeQuery{Period: &daily})
	require.NoError(t, err)
	assert.Equal(t, "m1", h.MarketID)
	require.Len(t, h.Points, 1)
	assert.Equal(t, samples[9].Timestamp.UnixMilli(), h.Points[0].T)

	all, err := svc.History(ctx, "m1", RangeQuery{})
	require.NoError(t, err)
	assert.Len(t, all.Points, 10)

	svc.historyLimit = 4
	thin, err := svc.History(ctx, "m1", RangeQuery{})
	require.NoError(t, err)
	require.Len(t, thin.Points, 4)
	assert.Equal(t, samples[0].Timestamp.UnixMilli(), thin.Points[0].T)
	assert.Equal(t, samples[9].Timestamp.UnixMilli(), thin.Points[3].T)
}

func TestHistoryService_ArchiveMarket(t *testing.T) {
	m := activeMarket("r1")
	m.Status = domain.MarketStatusResolved
	m.ResolutionTime = tp(t0.Add(10 * 24 * time.Hour))

	store := newFakeMarketStore(m)
	points := newFakePointStore()
	archive := newFakeArchive()
	svc := NewHistoryService(store, points, archive, discardLogger())
	ctx := context.Background()

	require.NoError(t, points.InsertBatch(ctx, []domain.PricePoint{
		{MarketID: "r1", Timestamp: t0.Add(time.Hour), Price: 0.3},
		{MarketID: "r1", Timestamp: t0.Add(2 * time.Hour), Price: 0.4},
	}))

	list, err := svc.Archivable(ctx, testNow, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	n, err := svc.ArchiveMarket(ctx, list[0])
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"r1"}, store.archived)
	assert.Empty(t, points.points["r1"])
	assert.Len(t, archive.objects["r1"], 2)

	archived, err := store.GetByID(ctx, "r1")
	require.NoError(t, err)
	got, err := svc.Points(ctx, archived, t0, t0.Add(90*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.3, got[0].Price)

	list, err = svc.Archivable(ctx, testNow, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistoryService_Since(t *testing.T) {
	svc := NewHistoryService(newFakeMarketStore(), newFakePointStore(), newFakeArchive(), discardLogger())
	ctx := context.Background()
	m := activeMarket("m1")

	since, err := svc.Since(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, t0, since)

	last := t0.Add(5 * time.Hour)
	require.NoError(t, svc.Ingest(ctx, []domain.PricePoint{{MarketID: "m1", Timestamp: last, Price: 0.5}}))
	since, err = svc.Since(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, last.Add(time.Second), since)
}

func TestDownsample(t *testing.T) {
	var ps []domain.PricePoint
	for i := 0; i < 7; i++ {
		ps = append(ps, domain.PricePoint{Price: float64(i)})
	}
	assert.Len(t, downsample(ps, 0), 7)
	assert.Len(t, downsample(ps, 10), 7)

	out := downsample(ps, 3)
	require.Len(t, out, 3)
	assert.Equal(t, 0.0, out[0].Price)
	assert.Equal(t, 3.0, out[1].Price)
	assert.Equal(t, 6.0, out[2].Price)

	assert.Equal(t, 6.0, downsample(ps, 1)[0].Price)
}
