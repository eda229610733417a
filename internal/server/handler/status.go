package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// StatusSource contributes counters to the status endpoint.
type StatusSource interface {
	Count(ctx context.Context) (int64, error)
}

// SessionCounter reports the number of live chart sessions.
type SessionCounter interface {
	SessionCount() int
}

// StatusHandler serves the run mode and basic counters.
type StatusHandler struct {
	mode          string
	defaultPeriod string
	markets       StatusSource
	sessions      SessionCounter
	logger        *slog.Logger
}

// NewStatusHandler creates a StatusHandler. sessions may be nil.
func NewStatusHandler(mode, defaultPeriod string, markets StatusSource, sessions SessionCounter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:          mode,
		defaultPeriod: defaultPeriod,
		markets:       markets,
		sessions:      sessions,
		logger:        logger,
	}
}

// GetStatus responds with the mode, the default chart period and counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"default_period": h.defaultPeriod,
	}

	if n, err := h.markets.Count(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "handler: status count markets failed",
			slog.String("error", err.Error()),
		)
	} else {
		body["markets"] = n
	}
	if h.sessions != nil {
		body["chart_sessions"] = h.sessions.SessionCount()
	}

	writeJSON(w, http.StatusOK, body)
}
