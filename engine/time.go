package engine

import (
	"time"
)

// =============================================================================
// TIME POINT - Concrete time abstraction (postings carry value timestamps)
// =============================================================================

type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func NewTimePointAt(year int, month time.Month, day, hour, min, sec int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, hour, min, sec, 0, time.UTC)}
}

func FromTime(t time.Time) TimePoint {
	return TimePoint{Time: t.UTC()}
}

func Now() TimePoint {
	return TimePoint{Time: time.Now().UTC()}
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, n, 0)} }
func (tp TimePoint) AddYears(n int) TimePoint  { return TimePoint{Time: tp.Time.AddDate(n, 0, 0)} }
func (tp TimePoint) Add(d time.Duration) TimePoint {
	return TimePoint{Time: tp.Time.Add(d)}
}

// Properties
func (tp TimePoint) Year() int          { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month  { return tp.Time.Month() }
func (tp TimePoint) Day() int           { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool       { return tp.Time.IsZero() }
func (tp TimePoint) StartOfDay() TimePoint {
	return NewTimePoint(tp.Year(), tp.Month(), tp.Day())
}
func (tp TimePoint) SameDay(other TimePoint) bool {
	return tp.Year() == other.Year() && tp.Month() == other.Month() && tp.Day() == other.Day()
}

func (tp TimePoint) String() string { return tp.Time.Format(time.RFC3339) }

// DateString formats as YYYY-MM-DD. Used for per-day idempotency keys.
func (tp TimePoint) DateString() string { return tp.Time.Format("2006-01-02") }

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

// IsLeapYear reports whether year has 366 days.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInYear returns the day-count denominator for the calendar year the
// time point falls in. Daily interest rates are derived per calendar year,
// so an accrual run crossing a Dec->Jan leap boundary switches denominator
// mid-run.
func (tp TimePoint) DaysInYear() int {
	if IsLeapYear(tp.Year()) {
		return 366
	}
	return 365
}

// DaysBetween returns whole days from one day boundary to another.
func DaysBetween(from, to TimePoint) int {
	return int(to.StartOfDay().Time.Sub(from.StartOfDay().Time).Hours() / 24)
}

// ClampedDate returns the given date with the day clamped to the month's
// last day: (2025, Feb, 31) -> 2025-02-28. Statement and due dates keep a
// consistent day-of-month by clamping, never by weekend adjustment.
func ClampedDate(year int, month time.Month, day int) TimePoint {
	last := daysInMonth(year, month)
	if day > last {
		day = last
	}
	return NewTimePoint(year, month, day)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}
