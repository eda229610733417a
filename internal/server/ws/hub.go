// Package ws serves live chart sessions over WebSocket. Each connection owns
// one chart controller; the hub only accepts connections and fans market
// lifecycle events out to them.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketchart/internal/domain"
	"github.com/alanyoungcy/marketchart/internal/server/middleware"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 64
	eventBuffer    = 16
)

// ChartSource hands out controllers for markets.
type ChartSource interface {
	NewController(ctx context.Context, marketID string) (*timerange.Controller, error)
}

// Hub accepts chart sessions and routes market bounds events to them.
type Hub struct {
	sessions   map[*session]struct{}
	register   chan *session
	unregister chan *session
	done       chan struct{}
	count      atomic.Int64

	bus      domain.SignalBus
	charts   ChartSource
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a Hub. Upgrades are accepted from allowedOrigins only; an
// empty list accepts every origin.
func NewHub(bus domain.SignalBus, charts ChartSource, allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[*session]struct{}),
		register:   make(chan *session),
		unregister: make(chan *session),
		done:       make(chan struct{}),
		bus:        bus,
		charts:     charts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
		logger: logger.With(slog.String("component", "ws_hub")),
	}
}

// SessionCount returns the number of live chart sessions.
func (h *Hub) SessionCount() int {
	return int(h.count.Load())
}

// Run subscribes to market bounds events and serves registrations until ctx
// is cancelled, at which point every session is told to stop.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	events, err := h.bus.Subscribe(ctx, domain.ChannelMarketBounds)
	if err != nil {
		h.logger.ErrorContext(ctx, "ws: subscribe to market bounds failed",
			slog.String("error", err.Error()),
		)
		events = nil
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws: hub stopped", slog.Int("sessions", len(h.sessions)))
			return ctx.Err()

		case s := <-h.register:
			h.sessions[s] = struct{}{}
			h.count.Store(int64(len(h.sessions)))
			h.logger.Info("ws: session opened",
				slog.String("session_id", s.id),
				slog.Int("sessions", len(h.sessions)),
			)

		case s := <-h.unregister:
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				h.count.Store(int64(len(h.sessions)))
				h.logger.Info("ws: session closed",
					slog.String("session_id", s.id),
					slog.Int("sessions", len(h.sessions)),
				)
			}

		case data, ok := <-events:
			if !ok {
				h.logger.Warn("ws: market bounds subscription closed")
				events = nil
				continue
			}
			var evt domain.MarketBoundsEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				h.logger.Warn("ws: bad market bounds event", slog.String("error", err.Error()))
				continue
			}
			h.route(evt)
		}
	}
}

// route offers evt to every session; each session ignores markets it is not
// showing.
func (h *Hub) route(evt domain.MarketBoundsEvent) {
	for s := range h.sessions {
		select {
		case s.events <- evt:
		default:
			h.logger.Warn("ws: dropping bounds event for slow session",
				slog.String("session_id", s.id),
				slog.String("market_id", evt.MarketID),
			)
		}
	}
}

// HandleWS upgrades the request and starts a chart session.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		commands: make(chan clientMsg),
		events:   make(chan domain.MarketBoundsEvent, eventBuffer),
		readDone: make(chan struct{}),
	}

	select {
	case h.register <- s:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
	go s.run()
}
