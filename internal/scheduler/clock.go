package scheduler

import "time"

// Clock supplies the current time in the engine's time zone.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a SystemClock for loc, or UTC when loc is nil.
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{loc: loc}
}

func (c SystemClock) Now() time.Time { return time.Now().In(c.loc) }

// FixedClock always returns T. It backs reference-time runs and tests.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// NextMidnight returns the first midnight strictly after t, in t's location.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// UntilNextMidnight returns the delay from the clock's now to the next
// local midnight.
func UntilNextMidnight(c Clock) time.Duration {
	now := c.Now()
	return NextMidnight(now).Sub(now)
}

// CalendarDate returns the civil date of t as seen in loc, encoded as
// midnight UTC so dates from different sources compare with Equal and
// Before.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dateOf returns the civil date stored in t, without converting zones.
// DATE columns arrive as midnight in their own location.
func dateOf(t time.Time) time.Time {
	return CalendarDate(t, t.Location())
}

// Location returns the clock's time zone.
func (c SystemClock) Location() *time.Location { return c.loc }
