package timerange

import "time"

// ViewWindow is a user-applied horizontal zoom. A nil bound falls back to
// the period-derived default.
type ViewWindow struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// IsZero reports whether no zoom is applied.
func (w ViewWindow) IsZero() bool { return w.Start == nil && w.End == nil }

// ValueRange is a user-applied vertical (price axis) zoom.
type ValueRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// IsZero reports whether no vertical zoom is applied.
func (r ValueRange) IsZero() bool { return r.Min == nil && r.Max == nil }

// Range is the effective window a rendering surface should draw.
type Range struct {
	Period       Period   `json:"period"`
	Start        int64    `json:"start"`
	End          int64    `json:"end"`
	DefaultStart *int64   `json:"default_start"`
	MaxRange     int64    `json:"max_range"`
	Zoomed       bool     `json:"zoomed"`
	Open         bool     `json:"open"`
	ValueMin     *float64 `json:"value_min,omitempty"`
	ValueMax     *float64 `json:"value_max,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now as the source of "now" for open contracts.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPeriod sets the initial period. Invalid periods are ignored.
func WithPeriod(p Period) Option {
	return func(c *Controller) {
		if p.Valid() {
			c.period = p
		}
	}
}

// Controller holds the chart window state of a single rendering surface.
// It is not safe for concurrent use; the surface that owns it is expected
// to serialise calls.
type Controller struct {
	bounds Bounds
	period Period
	view   ViewWindow
	values ValueRange
	now    func() time.Time
}

// NewController returns a Controller for the given contract bounds, starting
// on PeriodAllTime with no zoom.
func NewController(b Bounds, opts ...Option) *Controller {
	c := &Controller{
		bounds: b,
		period: PeriodAllTime,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bounds returns the contract bounds currently in use.
func (c *Controller) Bounds() Bounds { return c.bounds }

// Period returns the active period.
func (c *Controller) Period() Period { return c.period }

// ViewWindow returns the active horizontal zoom.
func (c *Controller) ViewWindow() ViewWindow { return c.view }

// ValueRange returns the active vertical zoom.
func (c *Controller) ValueRange() ValueRange { return c.values }

// SetPeriod switches the active period. Any zoom, horizontal or vertical, is
// always cleared so the next render shows the full default range.
func (c *Controller) SetPeriod(p Period) {
	c.period = p
	c.view = ViewWindow{}
	c.values = ValueRange{}
}

// SetViewWindow records an interactive zoom until the next SetPeriod. A
// reversed pair is swapped and each bound is clamped into the contract's
// lifetime so a gesture can never zoom out past it.
func (c *Controller) SetViewWindow(w ViewWindow) {
	lo := c.bounds.Start
	hi := c.bounds.EndAt(c.now())
	if hi < lo {
		hi = lo
	}

	var out ViewWindow
	if w.Start != nil {
		v := clamp(*w.Start, lo, hi)
		out.Start = &v
	}
	if w.End != nil {
		v := clamp(*w.End, lo, hi)
		out.End = &v
	}
	if out.Start != nil && out.End != nil && *out.Start > *out.End {
		out.Start, out.End = out.End, out.Start
	}
	c.view = out
}

// SetValueRange records a vertical zoom until the next SetPeriod.
func (c *Controller) SetValueRange(r ValueRange) {
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	c.values = r
}

// ResetZoom clears both zoom axes without touching the period.
func (c *Controller) ResetZoom() {
	c.view = ViewWindow{}
	c.values = ValueRange{}
}

// SetBounds replaces the contract bounds, e.g. after the contract closed
// while being viewed. The zoom is kept as-is; only SetPeriod clears it.
func (c *Controller) SetBounds(b Bounds) {
	c.bounds = b
}

// Range computes the effective window at the controller's current "now".
func (c *Controller) Range() Range {
	now := c.now()
	end := c.bounds.EndAt(now)

	r := Range{
		Period:   c.period,
		End:      end,
		Start:    c.bounds.Start,
		MaxRange: ComputeMaxRange(c.bounds, now),
		Open:     c.bounds.Open(),
		ValueMin: c.values.Min,
		ValueMax: c.values.Max,
	}

	if ds, ok := ComputeDefaultStart(c.bounds, c.period, now); ok {
		r.DefaultStart = &ds
		if ds > r.Start {
			r.Start = ds
		}
	}
	if r.Start > r.End {
		r.Start = r.End
	}

	if c.view.Start != nil {
		r.Start = *c.view.Start
	}
	if c.view.End != nil {
		r.End = *c.view.End
	}
	if r.Start > r.End {
		r.Start = r.End
	}
	r.Zoomed = !c.view.IsZero() || !c.values.IsZero()
	return r
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
