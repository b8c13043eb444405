// Package ics renders expanded agenda days as an iCalendar feed.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "dayplan/internal/log"
	"dayplan/internal/recurrence"
)

const (
	ProductID = "-//dayplan//agenda export//EN"
	uidDomain = "dayplan"
)

// Options for Export. A nil Location means UTC; a zero Now means time.Now.
type Options struct {
	Name     string
	Location *time.Location
	Now      time.Time
}

// UID identifies an exported item. Stored rows use their id; virtual
// occurrences use the master id plus the occurrence date so they stay
// stable across exports.
func UID(it recurrence.Item) string {
	if it.Virtual && it.ScheduledDate != nil {
		return fmt.Sprintf("%s-%s@%s", it.ID, *it.ScheduledDate, uidDomain)
	}
	return fmt.Sprintf("%s@%s", it.ID, uidDomain)
}

// Export builds a calendar from days. Timed items become DTSTART/DTEND
// events in the configured location; all-day and due-today items become
// all-day events. Cancelled rows and items without a date are skipped.
func Export(days []recurrence.Day, opts Options) *ical.Calendar {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	count := 0
	for _, day := range days {
		for _, it := range day.Items {
			if it.Cancelled || it.ScheduledDate == nil || *it.ScheduledDate != day.Date {
				continue
			}
			if err := addEvent(cal, it, loc, now); err != nil {
				appLog.Error("ics export skipped item", err, "id", it.ID, "date", day.Date)
				continue
			}
			count++
		}
	}
	appLog.Debug("ics export built", "days", len(days), "events", count)
	return cal
}

// Render serializes Export's calendar.
func Render(days []recurrence.Day, opts Options) string {
	return Export(days, opts).Serialize()
}

func addEvent(cal *ical.Calendar, it recurrence.Item, loc *time.Location, now time.Time) error {
	date, err := recurrence.ParseDate(*it.ScheduledDate)
	if err != nil {
		return err
	}
	ev := cal.AddEvent(UID(it))
	ev.SetDtStampTime(now.UTC())
	ev.SetSummary(it.Title)
	if strings.TrimSpace(it.Description) != "" {
		ev.SetDescription(it.Description)
	}
	ev.SetStatus(ical.ObjectStatusConfirmed)
	if it.Completed {
		ev.AddProperty(ical.ComponentPropertyCategories, "DONE")
	}

	if it.ScheduledStart != nil && it.ScheduledEnd != nil && !it.AllDay {
		start, err := recurrence.TimeToMinutes(*it.ScheduledStart)
		if err != nil {
			return err
		}
		end, err := recurrence.TimeToMinutes(*it.ScheduledEnd)
		if err != nil {
			return err
		}
		midnight := date.In(loc)
		ev.SetStartAt(midnight.Add(time.Duration(start) * time.Minute))
		ev.SetEndAt(midnight.Add(time.Duration(end) * time.Minute))
		return nil
	}
	ev.SetAllDayStartAt(date.In(loc))
	ev.SetAllDayEndAt(date.AddDays(1).In(loc))
	return nil
}
