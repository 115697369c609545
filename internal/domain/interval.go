package domain

import (
	"fmt"
	"time"
)

// IntervalDuration is the planning grid resolution. All timetable blocks,
// forecast intervals and activity intervals align to this grid at clock
// minutes 00, 15, 30 and 45.
const IntervalDuration = 15 * time.Minute

// IntervalMinutes is IntervalDuration expressed in minutes.
const IntervalMinutes = 15

// IntervalsPerHour is the number of grid slots per hour.
const IntervalsPerHour = 4

// IntervalsPerDay is the number of grid slots per calendar day.
const IntervalsPerDay = 24 * IntervalsPerHour

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 24 * 60

// TimeOfDay is a clock time expressed as minutes since midnight [0, 1440).
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute pair.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// Hour returns the hour component (0-23).
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component (0-59).
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String renders the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ClockOf extracts the UTC clock time of a timestamp.
func ClockOf(t time.Time) TimeOfDay {
	t = t.UTC()
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewTimeOfDay(h, m), nil
}

// Day truncates a timestamp to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AlignInterval floors a timestamp to its 15-minute grid slot.
func AlignInterval(t time.Time) time.Time {
	return t.UTC().Truncate(IntervalDuration)
}

// IntervalIndex returns the slot number of t within its day (0-95).
func IntervalIndex(t time.Time) int {
	t = t.UTC()
	return (t.Hour()*60 + t.Minute()) / IntervalMinutes
}

// IntervalCount returns how many whole 15-minute slots fit in d. Durations
// that are not multiples of the grid round down.
func IntervalCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / IntervalDuration)
}

// IntervalsBetween enumerates the aligned slot starts in [start, end).
func IntervalsBetween(start, end time.Time) []time.Time {
	start = AlignInterval(start)
	if !end.After(start) {
		return nil
	}
	n := IntervalCount(end.Sub(start))
	out := make([]time.Time, 0, n)
	for t := start; t.Before(end); t = t.Add(IntervalDuration) {
		out = append(out, t)
	}
	return out
}

// DateRange is a half-open [Start, End) span of calendar days, both at
// midnight UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange normalizes both endpoints to midnight UTC. End is exclusive.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Validate rejects inverted or empty ranges.
func (r DateRange) Validate() error {
	if !r.End.After(r.Start) {
		return fmt.Errorf("%w: date range end %s not after start %s",
			ErrValidation, r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	return nil
}

// Days returns every calendar day in the range, in order.
func (r DateRange) Days() []time.Time {
	var out []time.Time
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// DayCount returns the number of calendar days in the range.
func (r DateRange) DayCount() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// String renders the range as "YYYY-MM-DD..YYYY-MM-DD".
func (r DateRange) String() string {
	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}

// WeekStart returns the Monday midnight that opens the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	d := Day(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}
