/*
window.go - Time Window Resolver

PURPOSE:
  Converts the three heterogeneous time inputs accepted by the API into a
  single absolute instant used as a query lower bound:

    1. Absolute timestamp   "2024-03-10T14:00:00" or bare date "2024-03-10"
    2. Day-of-week offset   integer 0..6, 0=Monday
    3. Duration spec        "1w4d5h" = 1 week + 4 days + 5 hours ago

  The aggregation engine is agnostic to which form produced the bound.

DURATION SPECS:
  A spec is a run of count+unit pairs over the closed unit set
  y/w/d/h/m/s. The tokenizer rejects unknown letters, counts without a
  unit, units without a count, and empty specs. The y unit is a fixed
  365-day duration, not a calendar year.
*/
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	timestampLayout = "2006-01-02T15:04:05"
	dateLayout      = "2006-01-02"
)

// Resolver turns time inputs into absolute instants relative to Now.
type Resolver struct {
	Now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{Now: time.Now}
}

// Timestamp parses an ISO-like timestamp. A bare date is accepted and
// treated as midnight. Times are interpreted as UTC.
// Fails with ErrMalformedTime.
func (r *Resolver) Timestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(timestampLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DDTHH:MM:SS or YYYY-MM-DD)", ErrMalformedTime, s)
}

// Weekday resolves a day-of-week number d (0=Monday .. 6=Sunday) to the
// most recent occurrence of that weekday strictly before today, at
// 00:00:01. The offset is the standard weekday arithmetic
// ((today.weekday - d - 1) mod 7) + 1 days back, so asking for today's
// weekday yields last week's occurrence.
// Fails with ErrValidation when d is out of range.
func (r *Resolver) Weekday(d int) (time.Time, error) {
	if d < 0 || d > 6 {
		return time.Time{}, fmt.Errorf("%w: weekday must be 0..6 (0=Monday), got %d", ErrValidation, d)
	}
	now := r.Now().UTC()
	today := (int(now.Weekday()) + 6) % 7 // Go weekdays count from Sunday
	back := ((today-d-1)%7+7)%7 + 1
	day := now.AddDate(0, 0, -back)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 1, 0, time.UTC), nil
}

// DurationSpec resolves a compact duration spec to the instant that long
// before Now. Fails with ErrMalformedSpec.
func (r *Resolver) DurationSpec(spec string) (time.Time, error) {
	d, err := ParseDurationSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return r.Now().UTC().Add(-d), nil
}

// unitDurations is the closed set of recognized unit letters.
// y is a fixed 365-day duration, not a calendar year.
var unitDurations = map[byte]time.Duration{
	'y': 365 * 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// ParseDurationSpec tokenizes a spec like "1w4d5h" into a per-unit count
// map and sums it into a single duration. The spec is lowercased and
// stripped of surrounding whitespace first; a repeated unit accumulates.
func ParseDurationSpec(spec string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if s == "" {
		return 0, fmt.Errorf("%w: empty spec", ErrMalformedSpec)
	}

	counts := make(map[byte]int64)
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("%w: %q: unit %q has no count", ErrMalformedSpec, spec, string(s[i]))
		}
		if i == len(s) {
			return 0, fmt.Errorf("%w: %q: trailing count %q has no unit", ErrMalformedSpec, spec, s[start:])
		}
		if _, ok := unitDurations[s[i]]; !ok {
			return 0, fmt.Errorf("%w: %q: unrecognized unit %q", ErrMalformedSpec, spec, string(s[i]))
		}
		n, err := strconv.ParseInt(s[start:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: bad count %q", ErrMalformedSpec, spec, s[start:i])
		}
		counts[s[i]] += n
		i++
	}

	var total time.Duration
	for unit, n := range counts {
		total += time.Duration(n) * unitDurations[unit]
	}
	return total, nil
}
