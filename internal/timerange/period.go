// Package timerange derives the visible time window of a market chart from
// the contract's lifetime, a coarse period selection and an optional
// interactive zoom.
package timerange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownPeriod is returned by ParsePeriod for unrecognised input.
var ErrUnknownPeriod = errors.New("unknown period")

// Period is a coarse, named chart window selector.
type Period string

// Periods offered by the chart picker.
const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "allTime"
)

const (
	dayMs = int64(24 * time.Hour / time.Millisecond)
)

// periodDurations maps each fixed-length period to its span in milliseconds.
// PeriodAllTime is intentionally absent.
var periodDurations = map[Period]int64{
	PeriodDaily:   dayMs,
	PeriodWeekly:  7 * dayMs,
	PeriodMonthly: 30 * dayMs,
}

// AllPeriods returns the periods in picker order.
func AllPeriods() []Period {
	return []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}
}

// Duration returns the span of the period in milliseconds. The second return
// value is false for PeriodAllTime, which has no fixed span.
func (p Period) Duration() (int64, bool) {
	d, ok := periodDurations[p]
	return d, ok
}

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	if p == PeriodAllTime {
		return true
	}
	_, ok := periodDurations[p]
	return ok
}

func (p Period) String() string { return string(p) }

// ParsePeriod accepts the canonical names plus the short picker labels
// ("1d", "1w", "1m", "all"). Matching is case-insensitive.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "1d", "day":
		return PeriodDaily, nil
	case "weekly", "1w", "week":
		return PeriodWeekly, nil
	case "monthly", "1m", "month":
		return PeriodMonthly, nil
	case "alltime", "all", "all_time":
		return PeriodAllTime, nil
	}
	return "", fmt.Errorf("timerange: %w: %q", ErrUnknownPeriod, s)
}

// UnmarshalText lets Period be decoded straight from JSON and TOML. Empty
// text leaves the zero Period, which is what MarshalText emits for it.
func (p *Period) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = ""
		return nil
	}
	parsed, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p), nil
}
