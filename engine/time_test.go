package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// LEAP YEARS
// =============================================================================

func TestIsLeapYear(t *testing.T) {
	assert.True(t, engine.IsLeapYear(2024))
	assert.True(t, engine.IsLeapYear(2000)) // divisible by 400
	assert.False(t, engine.IsLeapYear(2025))
	assert.False(t, engine.IsLeapYear(1900)) // century, not divisible by 400
}

func TestDaysInYearFollowsCalendarYear(t *testing.T) {
	// GIVEN time points on either side of a Dec->Jan leap boundary
	dec := engine.NewTimePoint(2023, time.December, 31)
	jan := engine.NewTimePoint(2024, time.January, 1)

	// THEN the denominator switches with the calendar year
	assert.Equal(t, 365, dec.DaysInYear())
	assert.Equal(t, 366, jan.DaysInYear())
}

// =============================================================================
// DAY ARITHMETIC
// =============================================================================

func TestDaysBetween(t *testing.T) {
	jan1 := engine.NewTimePoint(2025, time.January, 1)

	assert.Equal(t, 0, engine.DaysBetween(jan1, jan1))
	assert.Equal(t, 14, engine.DaysBetween(jan1, jan1.AddDays(14)))

	// Intraday times do not change the whole-day count.
	lateSameDay := engine.NewTimePointAt(2025, time.January, 15, 23, 59, 59)
	assert.Equal(t, 14, engine.DaysBetween(jan1, lateSameDay))
}

func TestClampedDate(t *testing.T) {
	// GIVEN day-of-month values past the target month's last day
	// THEN the date clamps to the last day, never rolls over
	assert.Equal(t, engine.NewTimePoint(2025, time.February, 28), engine.ClampedDate(2025, time.February, 31))
	assert.Equal(t, engine.NewTimePoint(2024, time.February, 29), engine.ClampedDate(2024, time.February, 31))
	assert.Equal(t, engine.NewTimePoint(2025, time.April, 30), engine.ClampedDate(2025, time.April, 31))

	// In-range days pass through untouched.
	assert.Equal(t, engine.NewTimePoint(2025, time.March, 15), engine.ClampedDate(2025, time.March, 15))
}

func TestStartOfDayAndSameDay(t *testing.T) {
	at := engine.NewTimePointAt(2025, time.June, 10, 14, 30, 45)

	assert.Equal(t, engine.NewTimePoint(2025, time.June, 10), at.StartOfDay())
	assert.True(t, at.SameDay(engine.NewTimePoint(2025, time.June, 10)))
	assert.False(t, at.SameDay(engine.NewTimePoint(2025, time.June, 11)))
}

func TestTimePointComparisons(t *testing.T) {
	a := engine.NewTimePoint(2025, time.March, 1)
	b := engine.NewTimePoint(2025, time.March, 2)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.BeforeOrEqual(a))
	assert.True(t, a.AfterOrEqual(a))
	assert.False(t, a.Equal(b))
}

func TestDateString(t *testing.T) {
	at := engine.NewTimePointAt(2025, time.January, 5, 9, 0, 0)
	assert.Equal(t, "2025-01-05", at.DateString())
}
