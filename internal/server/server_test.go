package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/marketchart/internal/domain"
	"github.com/alanyoungcy/marketchart/internal/server/handler"
	"github.com/alanyoungcy/marketchart/internal/service"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

type stubMarkets struct{}

func (stubMarkets) GetMarket(_ context.Context, id string) (domain.Market, error) {
	if id != "m1" {
		return domain.Market{}, domain.ErrNotFound
	}
	return domain.Market{ID: "m1", CreatedAt: time.UnixMilli(0).UTC()}, nil
}

func (stubMarkets) ListActive(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (stubMarkets) Count(context.Context) (int64, error) { return 1, nil }

type stubCharts struct{}

func (stubCharts) Range(context.Context, string, service.RangeQuery) (timerange.Range, error) {
	return timerange.Range{Period: timerange.PeriodDaily}, nil
}

func (stubCharts) History(_ context.Context, id string, _ service.RangeQuery) (service.ChartHistory, error) {
	return service.ChartHistory{MarketID: id}, nil
}

type countingLimiter struct {
	calls int
	limit int
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.calls <= l.limit, nil
}

func testRouter(cfg Config, limiter domain.RateLimiter) http.Handler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handlers := Handlers{
		Health:  handler.NewHealthHandler(nil, logger),
		Status:  handler.NewStatusHandler("server", "allTime", stubMarkets{}, nil, logger),
		Markets: handler.NewMarketHandler(stubMarkets{}, logger),
		Charts:  handler.NewChartHandler(stubCharts{}, logger),
	}
	return NewRouter(cfg, handlers, limiter, logger)
}

func do(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Routes(t *testing.T) {
	h := testRouter(Config{}, nil)

	for _, target := range []string{
		"/api/health",
		"/api/status",
		"/api/markets",
		"/api/markets/m1",
		"/api/markets/m1/range?period=daily",
		"/api/markets/m1/history",
	} {
		rec := do(h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/markets/zz", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/ws", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPost, "/api/markets", nil).Code)
}

func TestRouter_AuthLeavesHealthPublic(t *testing.T) {
	h := testRouter(Config{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/status", nil).Code)

	auth := http.Header{"Authorization": []string{"Bearer secret"}}
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/status", auth).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/status?api_key=secret", nil).Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := testRouter(Config{CORSOrigins: []string{"https://charts.example.com"}, APIKey: "secret"}, nil)

	rec := do(h, http.MethodOptions, "/api/markets", http.Header{"Origin": []string{"https://charts.example.com"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://charts.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimit(t *testing.T) {
	limiter := &countingLimiter{limit: 2}
	h := testRouter(Config{RateLimit: 2, RateWindow: time.Minute}, limiter)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/api/status", nil).Code)

	off := &countingLimiter{}
	h = testRouter(Config{}, off)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/status", nil).Code)
	assert.Zero(t, off.calls)
}
