package recurrence

import (
	"time"

	"dayplan/internal/domain"
)

// Occurs reports whether master's rule produces an occurrence on date.
// Masters without a rule or anchor, and masters whose rule or anchor does
// not parse, never occur.
func Occurs(master domain.Task, date Date) bool {
	if master.RecurrenceRule == nil || master.ScheduledDate == nil || date.IsZero() {
		return false
	}
	anchor, err := ParseDate(*master.ScheduledDate)
	if err != nil {
		return false
	}
	rule, err := Parse(*master.RecurrenceRule)
	if err != nil {
		return false
	}
	return rule.Matches(anchor, date)
}

// Matches evaluates the unbounded series that starts at anchor. It is a
// closed-form check on weekday / day-of-month; nothing is enumerated.
// A monthly rule on a day the target month lacks (31 in April) does not
// occur that month.
func (r Rule) Matches(anchor, date Date) bool {
	if date.Before(anchor) {
		return false
	}
	switch r.Shape {
	case ShapeDaily:
		return true
	case ShapeWeekdays:
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	case ShapeWeekly:
		return date.Weekday() == r.Weekday
	case ShapeMonthly:
		return date.Day() == r.MonthDay
	}
	return false
}

// Next returns the first occurrence on or after from, searching at most
// limit days ahead.
func (r Rule) Next(anchor, from Date, limit int) (Date, bool) {
	if from.Before(anchor) {
		from = anchor
	}
	for i := 0; i <= limit; i++ {
		d := from.AddDays(i)
		if r.Matches(anchor, d) {
			return d, true
		}
	}
	return Date{}, false
}
