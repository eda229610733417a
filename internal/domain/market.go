package domain

import (
	"time"

	"github.com/alanyoungcy/marketchart/internal/timerange"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is a prediction market contract as far as charting is concerned:
// its identity and the timestamps that bound its price history.
type Market struct {
	ID              string       `json:"id"`
	Question        string       `json:"question"`
	Slug            string       `json:"slug"`
	Outcomes        [2]string    `json:"outcomes"`  // e.g. ["Yes","No"]
	TokenIDs        [2]string    `json:"token_ids"` // CLOB token per outcome
	Status          MarketStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	CloseTime       *time.Time   `json:"close_time,omitempty"`
	ResolutionTime  *time.Time   `json:"resolution_time,omitempty"`
	HistoryArchived bool         `json:"history_archived"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Bounds returns the chart bounds of the market as seen at now.
func (m Market) Bounds(now time.Time) timerange.Bounds {
	return timerange.BoundsFor(m.CreatedAt, m.CloseTime, m.ResolutionTime, now)
}

// MarketBoundsEvent is published when a synced market's chart bounds change,
// typically because it closed or resolved.
type MarketBoundsEvent struct {
	MarketID string `json:"market_id"`
	Start    int64  `json:"start"`
	End      *int64 `json:"end,omitempty"`
}

// ChartBounds converts the event payload back into chart bounds.
func (e MarketBoundsEvent) ChartBounds() timerange.Bounds {
	return timerange.Bounds{Start: e.Start, End: e.End}
}

// ChannelMarketBounds is the pub/sub channel carrying MarketBoundsEvent JSON.
const ChannelMarketBounds = "market_bounds"
