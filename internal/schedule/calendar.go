// Package schedule holds the working-calendar arithmetic every projected
// start and finish time passes through.
package schedule

import (
	"fmt"
	"time"
)

// Calendar advances an instant by an amount of printer work time.
// AddWorkMinutes(t, 0) must return t, and adding a then b must equal adding a+b.
type Calendar interface {
	AddWorkMinutes(start time.Time, minutes int) time.Time
}

// Continuous is a 24/7 calendar: work minutes are wall-clock minutes.
type Continuous struct{}

// AddWorkMinutes adds minutes of wall-clock time.
func (Continuous) AddWorkMinutes(start time.Time, minutes int) time.Time {
	if minutes <= 0 {
		return start
	}
	return start.Add(time.Duration(minutes) * time.Minute)
}

// ClockTime is a time of day in minutes after midnight.
type ClockTime int

// ParseClock parses "HH:MM". Trailing text is rejected.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// OfficeHours only counts time between Start and End on weekdays.
type OfficeHours struct {
	Start    ClockTime
	End      ClockTime
	Location *time.Location
}

// DefaultOfficeHours is Mon-Fri 09:30-19:00 in loc.
func DefaultOfficeHours(loc *time.Location) OfficeHours {
	return OfficeHours{Start: 9*60 + 30, End: 19 * 60, Location: loc}
}

// DayMinutes is the amount of work time in one office day.
func (o OfficeHours) DayMinutes() int {
	return int(o.End - o.Start)
}

func (o OfficeHours) loc() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func isWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func (o OfficeHours) at(day time.Time, c ClockTime) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, o.loc())
}

// IsOfficeHour reports whether t falls inside office hours.
func (o OfficeHours) IsOfficeHour(t time.Time) bool {
	t = t.In(o.loc())
	if isWeekend(t) {
		return false
	}
	m := minuteOfDay(t)
	return m >= int(o.Start) && m < int(o.End)
}

// NextOfficeStart returns t when it is inside office hours, otherwise the next opening.
func (o OfficeHours) NextOfficeStart(t time.Time) time.Time {
	t = t.In(o.loc())
	if o.IsOfficeHour(t) {
		return t
	}
	if !isWeekend(t) && minuteOfDay(t) < int(o.Start) {
		return o.at(t, o.Start)
	}
	return o.nextDayStart(t)
}

func (o OfficeHours) nextDayStart(t time.Time) time.Time {
	d := o.at(t.AddDate(0, 0, 1), o.Start)
	for isWeekend(d) {
		d = o.at(d.AddDate(0, 0, 1), o.Start)
	}
	return d
}

// AddWorkMinutes advances through office time only, skipping nights and weekends.
func (o OfficeHours) AddWorkMinutes(start time.Time, minutes int) time.Time {
	if minutes <= 0 || o.DayMinutes() <= 0 {
		return start
	}
	cursor := o.NextOfficeStart(start)
	remaining := time.Duration(minutes) * time.Minute
	for {
		available := o.at(cursor, o.End).Sub(cursor)
		if remaining <= available {
			return cursor.Add(remaining)
		}
		remaining -= available
		cursor = o.nextDayStart(cursor)
	}
}
