package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField matches one field of a 5-field cron expression.
type cronField struct {
	wildcard bool
	values   map[int]struct{}
}

func (f cronField) matches(v int) bool {
	if f.wildcard {
		return true
	}
	_, ok := f.values[v]
	return ok
}

// parseCronField accepts "*", "*/n", "a", "a/n", "a-b", "a-b/n" and comma
// lists of those, with values in [lo, hi]. "a/n" runs from a to hi.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	f := cronField{values: make(map[int]struct{})}
	for _, part := range strings.Split(field, ",") {
		step, stepped := 1, false
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid step %q", part)
			}
			step, part, stepped = n, base, true
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
			if stepped {
				to = hi
			}
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("value %q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			f.values[v] = struct{}{}
		}
	}
	return f, nil
}

// cronSchedule is a parsed "minute hour day-of-month month day-of-week"
// expression evaluated in UTC.
type cronSchedule struct {
	fields [5]cronField
}

var cronBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

func parseCron(expr string) (cronSchedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression %q must have 5 fields, got %d", expr, len(parts))
	}
	var s cronSchedule
	for i, p := range parts {
		f, err := parseCronField(p, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("cron field %d: %w", i+1, err)
		}
		s.fields[i] = f
	}
	return s, nil
}

// ValidateCron reports whether expr is a schedule RunCron accepts.
func ValidateCron(expr string) error {
	_, err := parseCron(expr)
	return err
}

func (s cronSchedule) matches(t time.Time) bool {
	return s.fields[0].matches(t.Minute()) &&
		s.fields[1].matches(t.Hour()) &&
		s.fields[2].matches(t.Day()) &&
		s.fields[3].matches(int(t.Month())) &&
		s.fields[4].matches(int(t.Weekday()))
}

// next returns the first minute strictly after after that matches, looking
// at most one year ahead.
func (s cronSchedule) next(after time.Time) (time.Time, error) {
	candidate := after.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := candidate.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within a year")
}
