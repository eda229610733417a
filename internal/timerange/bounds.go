package timerange

import "time"

// Bounds is the full available history of a contract in Unix milliseconds.
// End is nil while the contract is still open; "now" is used in its place.
type Bounds struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// Open reports whether the contract has no fixed end yet.
func (b Bounds) Open() bool { return b.End == nil }

// EndAt returns the effective end of the bounds at the given instant.
func (b Bounds) EndAt(now time.Time) int64 {
	if b.End != nil {
		return *b.End
	}
	return now.UnixMilli()
}

// Equal reports whether two bounds describe the same lifetime.
func (b Bounds) Equal(o Bounds) bool {
	if b.Start != o.Start {
		return false
	}
	if b.End == nil || o.End == nil {
		return b.End == nil && o.End == nil
	}
	return *b.End == *o.End
}

// BoundsFor derives chart bounds from a contract's timestamps. A resolution
// time always ends the chart; otherwise the close time does once it has
// passed. A contract whose close time lies in the future is open.
func BoundsFor(createdAt time.Time, closeTime, resolutionTime *time.Time, now time.Time) Bounds {
	b := Bounds{Start: createdAt.UnixMilli()}
	switch {
	case resolutionTime != nil:
		end := resolutionTime.UnixMilli()
		b.End = &end
	case closeTime != nil && now.After(*closeTime):
		end := closeTime.UnixMilli()
		b.End = &end
	}
	return b
}

// ComputeDefaultStart returns the period-derived start of the chart window.
// For PeriodAllTime the second return value is false, meaning the chart is
// rendered from the contract's true start. The result is never later than
// the effective end of b.
func ComputeDefaultStart(b Bounds, p Period, now time.Time) (int64, bool) {
	d, ok := p.Duration()
	if !ok {
		return 0, false
	}
	return b.EndAt(now) - d, true
}

// ComputeMaxRange returns the widest span a zoom gesture may cover: the
// whole contract lifetime.
func ComputeMaxRange(b Bounds, now time.Time) int64 {
	return b.EndAt(now) - b.Start
}
