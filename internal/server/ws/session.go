package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketchart/internal/domain"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

// clientMsg is a command frame sent by the browser.
type clientMsg struct {
	Action   string   `json:"action"`
	MarketID string   `json:"market_id,omitempty"`
	Period   string   `json:"period,omitempty"`
	Start    *int64   `json:"start,omitempty"`
	End      *int64   `json:"end,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
}

// serverMsg is the envelope of every frame sent to the browser.
type serverMsg struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type chartRangePayload struct {
	MarketID string `json:"market_id"`
	timerange.Range
}

// session is one connection. Only run touches the controller, so it needs
// no locking.
type session struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	commands chan clientMsg
	events   chan domain.MarketBoundsEvent
	readDone chan struct{}

	marketID string
	ctrl     *timerange.Controller
}

// run serialises client commands and bounds events onto the controller.
func (s *session) run() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		close(s.send)
	}()

	s.push("session", map[string]string{"session_id": s.id})

	for {
		select {
		case <-s.hub.done:
			return
		case <-s.readDone:
			return
		case msg := <-s.commands:
			s.handle(msg)
		case evt := <-s.events:
			if s.ctrl == nil || evt.MarketID != s.marketID {
				continue
			}
			s.ctrl.SetBounds(evt.ChartBounds())
			s.pushRange()
		}
	}
}

func (s *session) handle(msg clientMsg) {
	switch msg.Action {
	case "":
		s.pushError("malformed command")
		return
	case "open":
		s.open(msg.MarketID)
		return
	}
	if s.ctrl == nil {
		s.pushError("no chart open")
		return
	}

	switch msg.Action {
	case "set_period":
		p, err := timerange.ParsePeriod(msg.Period)
		if err != nil {
			s.pushError(err.Error())
			return
		}
		s.ctrl.SetPeriod(p)
	case "set_view_window":
		s.ctrl.SetViewWindow(timerange.ViewWindow{Start: msg.Start, End: msg.End})
	case "set_value_range":
		s.ctrl.SetValueRange(timerange.ValueRange{Min: msg.Min, Max: msg.Max})
	case "reset_zoom":
		s.ctrl.ResetZoom()
	case "get_range":
	default:
		s.pushError("unknown action " + msg.Action)
		return
	}
	s.pushRange()
}

func (s *session) open(marketID string) {
	if marketID == "" {
		s.pushError("market_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctrl, err := s.hub.charts.NewController(ctx, marketID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			s.pushError("market not found")
		case errors.Is(err, domain.ErrBoundsUnavailable):
			s.pushError("chart bounds not yet available")
		default:
			s.hub.logger.Error("ws: open chart failed",
				slog.String("session_id", s.id),
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
			s.pushError("failed to open chart")
		}
		return
	}

	s.marketID = marketID
	s.ctrl = ctrl
	s.pushRange()
}

func (s *session) pushRange() {
	s.push("chart_range", chartRangePayload{MarketID: s.marketID, Range: s.ctrl.Range()})
}

func (s *session) pushError(msg string) {
	s.push("error", map[string]string{"message": msg})
}

func (s *session) push(typ string, payload any) {
	data, err := json.Marshal(serverMsg{Type: typ, Payload: payload})
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
		s.hub.logger.Warn("ws: dropping frame for slow session", slog.String("session_id", s.id))
	}
}

// readPump decodes command frames and hands them to run.
func (s *session) readPump() {
	defer func() {
		close(s.readDone)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: unexpected close",
					slog.String("session_id", s.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		// A frame that fails to decode reaches run with an empty action.
		var msg clientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = clientMsg{}
		}
		select {
		case s.commands <- msg:
		case <-s.hub.done:
			return
		}
	}
}

// writePump writes queued frames as text and keeps the connection alive
// with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
