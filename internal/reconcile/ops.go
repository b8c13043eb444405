package reconcile

import (
	"strings"

	"dayplan/internal/domain"
	"dayplan/internal/recurrence"
)

// Fields is a partial edit. Nil leaves a field alone (or, for exceptions,
// inherits it from the master). Empty GroupID or ScheduledDate clears it, as
// does zero for Points and EstimatedMinutes. ScheduledStart and ScheduledEnd
// move together; an empty start clears both.
type Fields struct {
	Title            *string
	Description      *string
	Points           *int
	EstimatedMinutes *int
	GroupID          *string
	Completed        *bool
	ScheduledDate    *string
	ScheduledStart   *string
	ScheduledEnd     *string
	AllDay           *bool
	RecurrenceRule   *string
}

// IsZero reports whether no field is set.
func (f Fields) IsZero() bool {
	return f == Fields{}
}

func (f Fields) applyTo(t *domain.Task) {
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Points != nil {
		t.Points = positive(*f.Points)
	}
	if f.EstimatedMinutes != nil {
		t.EstimatedMinutes = positive(*f.EstimatedMinutes)
	}
	if f.GroupID != nil {
		t.GroupID = nonEmpty(*f.GroupID)
	}
	if f.Completed != nil {
		t.Completed = *f.Completed
	}
	if f.ScheduledDate != nil {
		t.ScheduledDate = nonEmpty(*f.ScheduledDate)
		if t.ScheduledDate == nil {
			t.ScheduledStart, t.ScheduledEnd, t.AllDay = nil, nil, false
		}
	}
	if f.ScheduledStart != nil || f.ScheduledEnd != nil {
		start, end := "", ""
		if f.ScheduledStart != nil {
			start = *f.ScheduledStart
		}
		if f.ScheduledEnd != nil {
			end = *f.ScheduledEnd
		}
		t.ScheduledStart, t.ScheduledEnd = nonEmpty(start), nonEmpty(end)
		if start == "" {
			t.ScheduledStart, t.ScheduledEnd = nil, nil
		}
		if t.ScheduledStart != nil {
			t.AllDay = false
		}
	}
	if f.AllDay != nil {
		t.AllDay = *f.AllDay
		if t.AllDay {
			t.ScheduledStart, t.ScheduledEnd = nil, nil
		}
	}
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// check validates the row shape plus the date, clock and rule formats.
func check(op string, t domain.Task) error {
	if strings.TrimSpace(t.Title) == "" && !t.Cancelled {
		return invalid(op, "title is required")
	}
	if err := t.Validate(); err != nil {
		return invalid(op, "%v", err)
	}
	for _, d := range []*string{t.ScheduledDate, t.OriginalDate} {
		if d == nil {
			continue
		}
		if _, err := recurrence.ParseDate(*d); err != nil {
			return invalid(op, "%v", err)
		}
	}
	if t.ScheduledStart != nil {
		start, err := recurrence.TimeToMinutes(*t.ScheduledStart)
		if err != nil {
			return invalid(op, "%v", err)
		}
		end, err := recurrence.TimeToMinutes(*t.ScheduledEnd)
		if err != nil {
			return invalid(op, "%v", err)
		}
		if end <= start {
			return invalid(op, "scheduled_end %s must be after scheduled_start %s", *t.ScheduledEnd, *t.ScheduledStart)
		}
	}
	if t.RecurrenceRule != nil {
		if _, err := recurrence.Parse(*t.RecurrenceRule); err != nil {
			return invalid(op, "%v", err)
		}
	}
	return nil
}

// Create plans the insert of a brand-new task. A rule in f makes it a
// master anchored at its scheduled date.
func Create(id string, f Fields) (Plan, error) {
	const op = "create task"
	t := domain.Task{ID: id}
	rule := f.RecurrenceRule
	f.RecurrenceRule = nil
	f.applyTo(&t)
	if rule != nil && strings.TrimSpace(*rule) != "" {
		canon, err := canonical(op, *rule, t)
		if err != nil {
			return Plan{}, err
		}
		if t.Completed {
			return Plan{}, invalid(op, "a new recurring task cannot start completed")
		}
		t.RecurrenceRule = &canon
	}
	if err := check(op, t); err != nil {
		return Plan{}, err
	}
	var p Plan
	p.insert(t)
	return p, nil
}

func canonical(op, rule string, anchorOf domain.Task) (string, error) {
	r, err := recurrence.Parse(rule)
	if err != nil {
		return "", invalid(op, "%v", err)
	}
	if anchorOf.ScheduledDate == nil {
		return "", invalid(op, "recurring task needs a scheduled_date anchor")
	}
	return r.String(), nil
}

// Edit plans a partial update of a regular task or an exception row.
// Masters go through UpdateAll.
func Edit(t domain.Task, f Fields) (Plan, error) {
	const op = "update task"
	if t.IsMaster() {
		return UpdateAll(t, f)
	}
	if f.RecurrenceRule != nil {
		return Plan{}, invalid(op, "use set recurrence to make a task recurring")
	}
	if t.Cancelled && f.Completed != nil {
		return Plan{}, invalid(op, "cancelled occurrence cannot be completed")
	}
	next := t
	f.applyTo(&next)
	if err := check(op, next); err != nil {
		return Plan{}, err
	}
	var p Plan
	p.update(next)
	return p, nil
}

// SetRecurrence attaches rule to t. A task that is not completed becomes a
// master in place. A completed task cannot: its completed flag would read
// as every occurrence being done. Instead a new master takes newID and the
// old row becomes the completed exception for the anchor date.
func SetRecurrence(t domain.Task, rule, newID string) (Plan, error) {
	const op = "set recurrence"
	if t.RecurringParentID != nil {
		return Plan{}, invalid(op, "occurrence %s of %s cannot recur on its own", t.ID, *t.RecurringParentID)
	}
	canon, err := canonical(op, rule, t)
	if err != nil {
		return Plan{}, err
	}
	if t.IsMaster() || !t.Completed {
		next := t
		next.RecurrenceRule = &canon
		if err := check(op, next); err != nil {
			return Plan{}, err
		}
		var p Plan
		p.update(next)
		return p, nil
	}
	return PromoteCompleted(t, canon, newID)
}

// PromoteCompleted splits a completed task into a fresh master and an
// exception that keeps the completed history of the anchor date.
func PromoteCompleted(t domain.Task, rule, newID string) (Plan, error) {
	const op = "set recurrence"
	if newID == "" || newID == t.ID {
		return Plan{}, invalid(op, "new master needs a distinct id")
	}
	if t.ScheduledDate == nil {
		return Plan{}, invalid(op, "recurring task needs a scheduled_date anchor")
	}
	m := t
	m.ID = newID
	m.RecurrenceRule = &rule
	m.Completed = false
	m.CreatedAt, m.UpdatedAt = "", ""

	ex := t
	ex.RecurrenceRule = nil
	ex.RecurringParentID = &m.ID
	anchor := *t.ScheduledDate
	ex.OriginalDate = &anchor

	if err := check(op, m); err != nil {
		return Plan{}, err
	}
	if err := check(op, ex); err != nil {
		return Plan{}, err
	}
	var p Plan
	p.insert(m)
	p.update(ex)
	return p, nil
}

// RemoveRecurrence turns master back into a regular task and drops every
// exception of the series.
func RemoveRecurrence(master domain.Task) (Plan, error) {
	if !master.IsMaster() {
		return Plan{}, invalid("remove recurrence", "task %s is not recurring", master.ID)
	}
	next := master
	next.RecurrenceRule = nil
	var p Plan
	p.deleteExceptions(master.ID)
	p.update(next)
	return p, nil
}

func occurrenceOf(op string, master domain.Task, existing *domain.Task, date recurrence.Date) error {
	if !master.IsMaster() {
		return invalid(op, "task %s is not recurring", master.ID)
	}
	if !recurrence.Occurs(master, date) {
		return invalid(op, "%s has no occurrence on %s", master.ID, date)
	}
	if existing != nil {
		if existing.RecurringParentID == nil || *existing.RecurringParentID != master.ID ||
			existing.OriginalDate == nil || *existing.OriginalDate != date.String() {
			return invalid(op, "row %s is not the exception for %s on %s", existing.ID, master.ID, date)
		}
	}
	return nil
}

// UpsertException writes the override for master's occurrence on date.
// Unset fields come from the master's current values and the scheduled
// date defaults to the occurrence date. An existing row for the same
// occurrence keeps its id; otherwise the row is created with newID.
func UpsertException(master domain.Task, existing *domain.Task, date recurrence.Date, f Fields, newID string) (Plan, error) {
	const op = "edit occurrence"
	if err := occurrenceOf(op, master, existing, date); err != nil {
		return Plan{}, err
	}
	if f.RecurrenceRule != nil {
		return Plan{}, invalid(op, "an occurrence cannot carry its own rule")
	}
	day := date.String()
	ex := master
	ex.ID = newID
	ex.CreatedAt, ex.UpdatedAt = "", ""
	if existing != nil {
		ex.ID = existing.ID
		ex.CreatedAt = existing.CreatedAt
		ex.Position = existing.Position
	}
	ex.RecurrenceRule = nil
	ex.RecurringParentID = &master.ID
	ex.OriginalDate = &day
	ex.ScheduledDate = &day
	ex.Completed = false
	ex.Cancelled = false
	f.applyTo(&ex)
	if ex.ID == "" {
		return Plan{}, invalid(op, "exception needs an id")
	}
	if err := check(op, ex); err != nil {
		return Plan{}, err
	}
	var p Plan
	if existing != nil {
		p.update(ex)
	} else {
		p.insert(ex)
	}
	return p, nil
}

// CancelOccurrence suppresses master's occurrence on date.
func CancelOccurrence(master domain.Task, existing *domain.Task, date recurrence.Date, newID string) (Plan, error) {
	const op = "cancel occurrence"
	if err := occurrenceOf(op, master, existing, date); err != nil {
		return Plan{}, err
	}
	day := date.String()
	c := domain.Task{
		ID:                newID,
		Cancelled:         true,
		RecurringParentID: &master.ID,
		OriginalDate:      &day,
	}
	var p Plan
	if existing != nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		p.update(c)
		return p, nil
	}
	if c.ID == "" {
		return Plan{}, invalid(op, "exception needs an id")
	}
	p.insert(c)
	return p, nil
}

// ToggleOccurrence flips completion of master's occurrence on date. An
// existing exception is toggled in place; a virtual occurrence is always
// open, so toggling it writes a completed exception.
func ToggleOccurrence(master domain.Task, existing *domain.Task, date recurrence.Date, newID string) (Plan, error) {
	if existing != nil {
		if err := occurrenceOf("toggle occurrence", master, existing, date); err != nil {
			return Plan{}, err
		}
		done := !existing.Completed
		return Edit(*existing, Fields{Completed: &done})
	}
	done := true
	return UpsertException(master, nil, date, Fields{Completed: &done}, newID)
}

// UpdateAll edits the fields shared by every occurrence. Exceptions are
// left alone and keep whatever they already override.
func UpdateAll(master domain.Task, f Fields) (Plan, error) {
	const op = "update series"
	if !master.IsMaster() {
		return Plan{}, invalid(op, "task %s is not recurring", master.ID)
	}
	if f.Completed != nil {
		return Plan{}, invalid(op, "complete individual occurrences instead of the series")
	}
	next := master
	rule := f.RecurrenceRule
	f.RecurrenceRule = nil
	f.applyTo(&next)
	if rule != nil {
		if strings.TrimSpace(*rule) == "" {
			return Plan{}, invalid(op, "use remove recurrence to stop a series")
		}
		canon, err := canonical(op, *rule, next)
		if err != nil {
			return Plan{}, err
		}
		next.RecurrenceRule = &canon
	}
	if next.ScheduledDate == nil {
		return Plan{}, invalid(op, "recurring task needs a scheduled_date anchor")
	}
	if err := check(op, next); err != nil {
		return Plan{}, err
	}
	var p Plan
	p.update(next)
	return p, nil
}

// Placement is where a copy lands.
type Placement struct {
	Date   string
	Start  string
	End    string
	AllDay bool
}

// CopyAndSchedule duplicates source as a new regular task at placement.
// The source is not modified.
func CopyAndSchedule(source domain.Task, at Placement, newID string) (Plan, error) {
	const op = "copy task"
	c := domain.Task{
		ID:               newID,
		Title:            source.Title,
		Description:      source.Description,
		Points:           source.Points,
		EstimatedMinutes: source.EstimatedMinutes,
		GroupID:          source.GroupID,
		Position:         source.Position,
	}
	f := Fields{ScheduledDate: &at.Date, AllDay: &at.AllDay}
	if at.Start != "" {
		f.ScheduledStart, f.ScheduledEnd = &at.Start, &at.End
	}
	f.applyTo(&c)
	if c.ScheduledDate == nil {
		return Plan{}, invalid(op, "copy needs a date")
	}
	if err := check(op, c); err != nil {
		return Plan{}, err
	}
	var p Plan
	p.insert(c)
	return p, nil
}

// Delete removes t. Deleting a master takes its exceptions with it.
func Delete(t domain.Task) Plan {
	var p Plan
	if t.IsMaster() {
		p.deleteExceptions(t.ID)
	}
	p.delete(t.ID)
	return p
}
