package engine

import (
	"context"
	"fmt"

	"dayplan/internal/domain"
	"dayplan/internal/events"
	"dayplan/internal/ics"
	"dayplan/internal/reconcile"
	"dayplan/internal/recurrence"
	"dayplan/internal/repo"
)

// maxRangeDays bounds range expansion requests.
const maxRangeDays = 366

func (e Engine) allTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Day expands every task for one date.
func (e Engine) Day(ctx context.Context, date string) ([]recurrence.Item, error) {
	d, err := parseDate("day", date)
	if err != nil {
		return nil, err
	}
	tasks, err := e.allTasks(ctx)
	if err != nil {
		return nil, err
	}
	return recurrence.Expand(tasks, d), nil
}

// Agenda is the schedule view of one date.
func (e Engine) Agenda(ctx context.Context, date string) (recurrence.Agenda, error) {
	d, err := parseDate("agenda", date)
	if err != nil {
		return recurrence.Agenda{}, err
	}
	tasks, err := e.allTasks(ctx)
	if err != nil {
		return recurrence.Agenda{}, err
	}
	return recurrence.Sections(recurrence.Expand(tasks, d), d), nil
}

type Week struct {
	Start string              `json:"start" format:"date"`
	Days  []recurrence.Agenda `json:"days"`
}

// Week returns the seven agendas of the week containing date, starting on
// the configured first weekday.
func (e Engine) Week(ctx context.Context, date string) (Week, error) {
	d, err := parseDate("week", date)
	if err != nil {
		return Week{}, err
	}
	tasks, err := e.allTasks(ctx)
	if err != nil {
		return Week{}, err
	}
	start := recurrence.WeekStart(d, e.config().WeekStart())
	w := Week{Start: start.String()}
	for _, day := range recurrence.ExpandRange(tasks, start, start.AddDays(6)) {
		dd, _ := recurrence.ParseDate(day.Date)
		w.Days = append(w.Days, recurrence.Sections(day.Items, dd))
	}
	return w, nil
}

// Range expands from..to inclusive.
func (e Engine) Range(ctx context.Context, from, to string) ([]recurrence.Day, error) {
	f, err := parseDate("range", from)
	if err != nil {
		return nil, err
	}
	t, err := parseDate("range", to)
	if err != nil {
		return nil, err
	}
	if t.Before(f) || f.DaysUntil(t) > maxRangeDays {
		return nil, &reconcile.InvalidError{Op: "range", Reason: fmt.Sprintf("%s..%s must be ordered and at most %d days", from, to, maxRangeDays)}
	}
	tasks, err := e.allTasks(ctx)
	if err != nil {
		return nil, err
	}
	return recurrence.ExpandRange(tasks, f, t), nil
}

// ExportICS renders from..to as an iCalendar feed in the configured
// timezone.
func (e Engine) ExportICS(ctx context.Context, from, to string) (string, error) {
	days, err := e.Range(ctx, from, to)
	if err != nil {
		return "", err
	}
	loc, err := e.config().Location()
	if err != nil {
		return "", err
	}
	return ics.Render(days, ics.Options{Name: "dayplan", Location: loc, Now: e.now()}), nil
}

// Backlog lists open tasks that have no time slot: regular tasks without a
// start time and masters without one. Exception rows only appear through
// their series.
func (e Engine) Backlog(ctx context.Context) ([]domain.Task, error) {
	open := false
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Unplaced: true, Completed: &open})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsException() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Digest builds the agenda for date and records it as an agenda.digest
// event so webhook subscribers receive it.
func (e Engine) Digest(ctx context.Context, date, actorID string) (recurrence.Agenda, error) {
	a, err := e.Agenda(ctx, date)
	if err != nil {
		return a, err
	}
	titles := func(items []recurrence.Item) []string {
		out := make([]string, 0, len(items))
		for _, it := range items {
			label := it.Title
			if it.ScheduledStart != nil {
				label = *it.ScheduledStart + " " + label
			}
			out = append(out, label)
		}
		return out
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	payload := events.EventPayload{
		"date":      a.Date,
		"timed":     titles(a.Timed),
		"all_day":   titles(a.AllDay),
		"due_today": titles(a.DueToday),
		"done":      len(a.Done),
	}
	if err := e.writer().Append(ctx, tx, events.AgendaDigest, "agenda", a.Date, actor(actorID), payload); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
