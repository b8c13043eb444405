package recurrence

import (
	"sort"

	"dayplan/internal/domain"
)

// Item is one row of a materialised day. Virtual items are synthesised from
// a master and have no row of their own; they are never written back.
type Item struct {
	domain.Task
	Virtual bool `json:"is_virtual_recurrence,omitempty"`
}

type occurrenceKey struct {
	parentID string
	date     string
}

// exceptionIndex maps (recurring_parent_id, original_date) to the row that
// overrides or cancels that occurrence. With duplicate keys the first row
// in input order wins.
type exceptionIndex map[occurrenceKey]domain.Task

func partition(tasks []domain.Task) (regular, masters []domain.Task, exceptions exceptionIndex) {
	exceptions = make(exceptionIndex)
	for _, t := range tasks {
		switch {
		case t.RecurrenceRule != nil:
			masters = append(masters, t)
		case t.RecurringParentID != nil:
			if t.OriginalDate == nil {
				continue
			}
			key := occurrenceKey{parentID: *t.RecurringParentID, date: *t.OriginalDate}
			if _, dup := exceptions[key]; !dup {
				exceptions[key] = t
			}
		default:
			regular = append(regular, t)
		}
	}
	return regular, masters, exceptions
}

// Expand materialises the task list for one date: regular tasks pass
// through unchanged, each master that occurs on date contributes either its
// exception row, nothing (cancelled), or a virtual copy. Exception rows are
// only reachable through their master, so orphans never surface.
func Expand(tasks []domain.Task, date Date) []Item {
	regular, masters, exceptions := partition(tasks)
	return expand(regular, masters, exceptions, date)
}

func expand(regular, masters []domain.Task, exceptions exceptionIndex, date Date) []Item {
	out := make([]Item, 0, len(regular)+len(masters))
	for _, t := range regular {
		out = append(out, Item{Task: t})
	}
	day := date.String()
	for _, m := range masters {
		if !Occurs(m, date) {
			continue
		}
		if ex, ok := exceptions[occurrenceKey{parentID: m.ID, date: day}]; ok {
			if !ex.Cancelled {
				out = append(out, Item{Task: ex})
			}
			continue
		}
		out = append(out, Virtualize(m, date))
	}
	return out
}

// Virtualize builds the in-memory occurrence of master on date. A master's
// own completed flag does not carry over; only exceptions complete a day.
func Virtualize(master domain.Task, date Date) Item {
	v := master
	day := date.String()
	v.ScheduledDate = &day
	v.Completed = false
	return Item{Task: v, Virtual: true}
}

// Day is the expansion of one date within a range.
type Day struct {
	Date  string `json:"date" format:"date"`
	Items []Item `json:"items"`
}

// ExpandRange expands every date from..to inclusive. The task list is
// partitioned once for the whole range.
func ExpandRange(tasks []domain.Task, from, to Date) []Day {
	if to.Before(from) {
		return nil
	}
	regular, masters, exceptions := partition(tasks)
	days := make([]Day, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, Day{Date: d.String(), Items: expand(regular, masters, exceptions, d)})
	}
	return days
}

// Agenda splits an expanded day into the panes of the schedule view.
type Agenda struct {
	Date     string `json:"date" format:"date"`
	Timed    []Item `json:"timed"`
	AllDay   []Item `json:"all_day"`
	DueToday []Item `json:"due_today"`
	Done     []Item `json:"done"`
}

// Sections files the items placed on date into their panes. Timed blocks
// are ordered by start time; unplaced and other-day items are dropped.
func Sections(items []Item, date Date) Agenda {
	day := date.String()
	a := Agenda{Date: day, Timed: []Item{}, AllDay: []Item{}, DueToday: []Item{}, Done: []Item{}}
	for _, it := range items {
		if it.ScheduledDate == nil || *it.ScheduledDate != day || it.Cancelled {
			continue
		}
		switch {
		case it.Completed:
			a.Done = append(a.Done, it)
		case it.ScheduledStart != nil && it.ScheduledEnd != nil:
			a.Timed = append(a.Timed, it)
		case it.AllDay:
			a.AllDay = append(a.AllDay, it)
		default:
			a.DueToday = append(a.DueToday, it)
		}
	}
	sort.SliceStable(a.Timed, func(i, j int) bool {
		si, _ := TimeToMinutes(*a.Timed[i].ScheduledStart)
		sj, _ := TimeToMinutes(*a.Timed[j].ScheduledStart)
		return si < sj
	})
	return a
}
