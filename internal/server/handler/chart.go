package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketchart/internal/service"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

// ChartService is what the chart handler needs from the service layer.
type ChartService interface {
	Range(ctx context.Context, marketID string, q service.RangeQuery) (timerange.Range, error)
	History(ctx context.Context, marketID string, q service.RangeQuery) (service.ChartHistory, error)
}

// ChartHandler serves stateless chart window computations.
type ChartHandler struct {
	charts ChartService
	logger *slog.Logger
}

// NewChartHandler creates a ChartHandler.
func NewChartHandler(charts ChartService, logger *slog.Logger) *ChartHandler {
	return &ChartHandler{charts: charts, logger: logger}
}

// GetRange returns the effective chart window for the query.
// GET /api/markets/{id}/range?period=weekly&view_start=&view_end=&value_min=&value_max=
func (h *ChartHandler) GetRange(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	q, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rng, err := h.charts.Range(r.Context(), id, q)
	if err != nil {
		h.fail(w, r, id, "range", err)
		return
	}
	writeJSON(w, http.StatusOK, rng)
}

// GetHistory returns the chart window and the price samples inside it.
// GET /api/markets/{id}/history?period=daily
func (h *ChartHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	q, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hist, err := h.charts.History(r.Context(), id, q)
	if err != nil {
		h.fail(w, r, id, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *ChartHandler) fail(w http.ResponseWriter, r *http.Request, id, op string, err error) {
	status := errorStatus(err)
	switch status {
	case http.StatusNotFound:
		writeError(w, status, "market not found")
	case http.StatusConflict:
		writeError(w, status, "chart bounds not yet available")
	default:
		h.logger.ErrorContext(r.Context(), "handler: chart "+op+" failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "failed to compute chart "+op)
	}
}
