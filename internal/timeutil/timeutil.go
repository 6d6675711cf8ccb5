// Package timeutil converts between provider-local wall-clock values and
// absolute instants. All interval comparisons in the engine happen in
// absolute time; all generation and display happens in local time. This
// package is the only place that crosses between the two.
package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidLocalTime is returned when a local wall-clock time does not
// exist in the given timezone, e.g. inside a spring-forward DST gap.
var ErrInvalidLocalTime = errors.New("local time does not exist in timezone")

// Date is a calendar date with no time-of-day and no timezone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns the date n calendar days later. time.Date normalizes
// out-of-range days, so month and year roll over correctly.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// DateOf projects an absolute instant onto its calendar date in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	lt := t.In(loc)
	return Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
}

// TimeOfDay is a provider-local wall-clock time expressed as minutes
// since midnight, range [0, 1440).
type TimeOfDay int

// MinutesPerDay bounds every TimeOfDay value.
const MinutesPerDay = 24 * 60

// ParseHHMM parses a "HH:MM" string into a TimeOfDay.
func ParseHHMM(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Valid reports whether t lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

// ToAbsolute combines a calendar date and a local time-of-day in loc into
// an absolute instant.
//
// A wall-clock value skipped by a spring-forward transition fails with
// ErrInvalidLocalTime. A wall-clock value that occurs twice during a
// fall-back transition resolves to the earlier of the two instants, so
// repeated calls are deterministic.
func ToAbsolute(d Date, tod TimeOfDay, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return time.Time{}, errors.New("nil location")
	}
	if !tod.Valid() {
		return time.Time{}, fmt.Errorf("time of day %d out of range", int(tod))
	}

	t := time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)

	// time.Date normalizes nonexistent wall clocks forward across the gap,
	// so a changed clock reading means the requested local time was skipped.
	if t.Hour() != tod.Hour() || t.Minute() != tod.Minute() || t.Day() != d.Day {
		return time.Time{}, fmt.Errorf("%s %s in %s: %w", d, tod, loc, ErrInvalidLocalTime)
	}

	// During fall-back the same wall clock maps to two instants and
	// time.Date may hand back the later one. Probe the usual transition
	// sizes and prefer the earliest instant with the same reading.
	for _, back := range []time.Duration{time.Hour, 30 * time.Minute} {
		earlier := t.Add(-back)
		el := earlier.In(loc)
		if el.Hour() == tod.Hour() && el.Minute() == tod.Minute() && el.Day() == d.Day {
			t = earlier
			break
		}
	}

	return t, nil
}

// DayOfWeek resolves the provider-local weekday of a calendar date. Day
// boundaries are timezone-relative, never UTC-relative.
func DayOfWeek(d Date, loc *time.Location) time.Weekday {
	// Noon avoids any DST irregularity around midnight.
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, loc).Weekday()
}

// Interval is a half-open absolute time interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. An interval
// ending exactly when the other starts does not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// MinuteRange is a half-open provider-local interval within one day,
// [Start, End) in minutes since midnight.
type MinuteRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overlaps reports half-open intersection of two same-day minute ranges.
func (r MinuteRange) Overlaps(other MinuteRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Subtract removes cut from r, returning the zero, one, or two remaining
// pieces in ascending order.
func (r MinuteRange) Subtract(cut MinuteRange) []MinuteRange {
	if !r.Overlaps(cut) {
		return []MinuteRange{r}
	}
	var out []MinuteRange
	if cut.Start > r.Start {
		out = append(out, MinuteRange{Start: r.Start, End: cut.Start})
	}
	if cut.End < r.End {
		out = append(out, MinuteRange{Start: cut.End, End: r.End})
	}
	return out
}
