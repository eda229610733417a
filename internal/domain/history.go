package domain

import "time"

// PricePoint is one sample of a market's price history.
type PricePoint struct {
	MarketID  string
	Timestamp time.Time
	Price     float64
}

// ArchivedPoint is the compact wire/storage form of a PricePoint used by the
// history API and the cold archive: milliseconds and price.
type ArchivedPoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

// Compact converts the point to its compact form.
func (p PricePoint) Compact() ArchivedPoint {
	return ArchivedPoint{T: p.Timestamp.UnixMilli(), P: p.Price}
}
