package timeutil

import (
	"fmt"
	"time"
)

// MinuteOfDay is a wall-clock time of day expressed as minutes from midnight.
type MinuteOfDay int

// ParseClock parses "HH:MM" into a MinuteOfDay.
func ParseClock(s string) (MinuteOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return MinuteOfDay(h*60 + m), nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(s string) MinuteOfDay {
	m, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Clock converts timestamps to the organization's wall clock. The offset is
// fixed, not DST-aware: every date and time-of-day decision in the break
// rules goes through this one conversion.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a clock for a fixed UTC offset in hours.
func NewClock(utcOffsetHours int) *Clock {
	name := fmt.Sprintf("UTC%+d", utcOffsetHours)
	return &Clock{
		loc: time.FixedZone(name, utcOffsetHours*3600),
		now: time.Now,
	}
}

// NewClockAt returns a clock whose current time comes from the given
// function. Used by tests to pin the sweep instant.
func NewClockAt(utcOffsetHours int, now func() time.Time) *Clock {
	c := NewClock(utcOffsetHours)
	c.now = now
	return c
}

// Now returns the current instant in the organization's zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// ToLocal converts any timestamp to the organization's zone.
func (c *Clock) ToLocal(t time.Time) time.Time {
	return t.In(c.loc)
}

// DateOf returns the organization-local calendar date (YYYY-MM-DD) of t.
// Day-boundary counting must use this, never the raw timestamp's date.
func (c *Clock) DateOf(t time.Time) string {
	return t.In(c.loc).Format(time.DateOnly)
}

// Today returns the current organization-local date (YYYY-MM-DD).
func (c *Clock) Today() string {
	return c.DateOf(c.now())
}

// TimeOfDay returns t's organization-local wall-clock time of day.
func (c *Clock) TimeOfDay(t time.Time) MinuteOfDay {
	lt := t.In(c.loc)
	return MinuteOfDay(lt.Hour()*60 + lt.Minute())
}
