package source

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var cfLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-1-2 15:4:5",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2",
}

// ParseCFUnits parses a CF time unit such as "hours since 1950-01-01 00:00:00".
func ParseCFUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("time units %q are not of the form \"<unit> since <date>\"", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", parts[0])
	}
	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(strings.TrimSuffix(ref, " UTC"), "Z")
	// Drop fractional seconds such as "00:00:00.0".
	if dot := strings.LastIndex(ref, "."); dot > strings.LastIndex(ref, ":") && strings.Contains(ref, ":") {
		ref = ref[:dot]
	}
	for _, layout := range cfLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("cannot parse reference date %q", parts[1])
}

// maxOffsetDays bounds decoded offsets to about ±27000 years.
const maxOffsetDays = 1e7

// DecodeTimes converts numeric offsets to UTC times. Offsets are split into
// whole days and a sub-day remainder so that epochs centuries away from the
// data, such as "days since 0001-01-01", do not overflow time.Duration.
func DecodeTimes(values []float64, units string) ([]time.Time, error) {
	step, epoch, err := ParseCFUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("time value %d is not finite", k)
		}
		secs := v * step.Seconds()
		days := math.Floor(secs / 86400)
		if math.Abs(days) > maxOffsetDays {
			return nil, fmt.Errorf("time value %d (%g %s) is out of range", k, v, units)
		}
		rem := secs - days*86400
		out[k] = epoch.AddDate(0, 0, int(days)).Add(time.Duration(math.Round(rem * float64(time.Second))))
	}
	return out, nil
}

// Selection restricts canonicalization to some time steps. The zero value
// selects every step.
type Selection struct {
	Start, End time.Time // Inclusive bounds; zero means unbounded.
	Nearest    time.Time // When set, selects only the single nearest step.
}

func (s Selection) indices(times []time.Time) []int {
	if len(times) == 0 {
		return nil
	}
	if !s.Nearest.IsZero() {
		best := 0
		for k, t := range times {
			if absDuration(t.Sub(s.Nearest)) < absDuration(times[best].Sub(s.Nearest)) {
				best = k
			}
		}
		return []int{best}
	}
	var out []int
	for k, t := range times {
		if !s.Start.IsZero() && t.Before(s.Start) {
			continue
		}
		if !s.End.IsZero() && t.After(s.End) {
			continue
		}
		out = append(out, k)
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
