package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dayplan/internal/domain"
	"dayplan/internal/events"
	"dayplan/internal/reconcile"
	"dayplan/internal/recurrence"
	"dayplan/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID      string
	Fields  reconcile.Fields
	ActorID string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	id := opts.ID
	if id == "" {
		id = e.newID()
	}
	f := opts.Fields
	if err := e.fillEnd(&f, nil); err != nil {
		return domain.Task{}, err
	}
	rows, err := e.run(ctx, events.TaskCreated, opts.ActorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		if err := e.ensureGroup(ctx, tx, f.GroupID); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		plan, err := reconcile.Create(id, f)
		if err != nil {
			return plan, "", nil, err
		}
		pos, err := e.Repo.NextPosition(ctx, tx)
		if err != nil {
			return plan, "", nil, err
		}
		plan.Mutations[0].Task.Position = pos
		t := plan.Mutations[0].Task
		return plan, id, events.EventPayload{"title": t.Title, "kind": t.Kind()}, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, id)
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.getTask(ctx, nil, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// TaskUpdateOptions is a partial edit of one row. Editing a master edits
// the whole series.
type TaskUpdateOptions struct {
	ID      string
	Fields  reconcile.Fields
	ActorID string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	evt := events.TaskUpdated
	rows, err := e.run(ctx, evt, opts.ActorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		t, err := e.getTask(ctx, tx, opts.ID)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		if err := e.ensureGroup(ctx, tx, opts.Fields.GroupID); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		f := opts.Fields
		if err := e.fillEnd(&f, &t); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		plan, err := reconcile.Edit(t, f)
		return plan, t.ID, events.EventPayload{"kind": t.Kind()}, err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, opts.ID)
}

// ToggleTask flips completion. For a master, date picks the occurrence and
// the flip lands on that occurrence's exception row.
func (e Engine) ToggleTask(ctx context.Context, id, date, actorID string) (domain.Task, error) {
	rows, err := e.run(ctx, events.TaskUpdated, actorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		t, err := e.getTask(ctx, tx, id)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		if !t.IsMaster() {
			done := !t.Completed
			plan, err := reconcile.Edit(t, reconcile.Fields{Completed: &done})
			return plan, t.ID, events.EventPayload{"completed": done}, err
		}
		if date == "" {
			return reconcile.Plan{}, "", nil, &reconcile.InvalidError{Op: "toggle task", Reason: "recurring task needs the occurrence date"}
		}
		d, err := parseDate("toggle task", date)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		existing, err := e.Repo.FindException(ctx, tx, t.ID, d.String())
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		plan, err := reconcile.ToggleOccurrence(t, existing, d, e.newID())
		return plan, t.ID, events.EventPayload{"occurrence": d.String()}, err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, id)
}

// ScheduleOptions places a task. With Start it becomes a timed block (End
// defaults to the estimate or the configured duration); with AllDay it goes
// to the all-day strip; otherwise it is due on Date. OccurrenceDate moves a
// single occurrence of a master instead of the series.
type ScheduleOptions struct {
	ID             string
	Date           string
	Start          string
	End            string
	AllDay         bool
	OccurrenceDate string
	ActorID        string
}

func (e Engine) ScheduleTask(ctx context.Context, opts ScheduleOptions) (domain.Task, error) {
	if _, err := parseDate("schedule task", opts.Date); err != nil {
		return domain.Task{}, err
	}
	if opts.AllDay && opts.Start != "" {
		return domain.Task{}, &reconcile.InvalidError{Op: "schedule task", Reason: "all-day tasks have no start time"}
	}
	empty := ""
	f := reconcile.Fields{ScheduledDate: &opts.Date, AllDay: &opts.AllDay, ScheduledStart: &empty, ScheduledEnd: &empty}
	if opts.Start != "" {
		f.ScheduledStart, f.ScheduledEnd = &opts.Start, &opts.End
	}
	rows, err := e.run(ctx, events.TaskUpdated, opts.ActorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		t, err := e.getTask(ctx, tx, opts.ID)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		if err := e.fillEnd(&f, &t); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		payload := events.EventPayload{"date": opts.Date, "start": opts.Start, "all_day": opts.AllDay}
		if t.IsMaster() && opts.OccurrenceDate != "" {
			d, err := parseDate("schedule occurrence", opts.OccurrenceDate)
			if err != nil {
				return reconcile.Plan{}, "", nil, err
			}
			if target, _ := recurrence.ParseDate(opts.Date); target.String() != d.String() {
				return reconcile.Plan{}, "", nil, &reconcile.InvalidError{Op: "schedule occurrence", Reason: fmt.Sprintf("an occurrence can only be re-timed on its own day %s, not moved to %s", d, opts.Date)}
			}
			existing, err := e.Repo.FindException(ctx, tx, t.ID, d.String())
			if err != nil {
				return reconcile.Plan{}, "", nil, err
			}
			id := e.newID()
			if existing != nil {
				id = existing.ID
			}
			inherited := inheritExisting(existing, f)
			plan, err := reconcile.UpsertException(t, existing, d, inherited, id)
			payload["occurrence"] = d.String()
			return plan, t.ID, payload, err
		}
		plan, err := reconcile.Edit(t, f)
		return plan, t.ID, payload, err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, opts.ID)
}

// inheritExisting carries an existing override's own fields into a move so
// that rescheduling an edited occurrence does not reset its edits.
func inheritExisting(existing *domain.Task, f reconcile.Fields) reconcile.Fields {
	if existing == nil {
		return f
	}
	ex := *existing
	f.Title, f.Description = &ex.Title, &ex.Description
	f.Completed = &ex.Completed
	if ex.Points != nil {
		f.Points = ex.Points
	}
	if ex.EstimatedMinutes != nil {
		f.EstimatedMinutes = ex.EstimatedMinutes
	}
	if ex.GroupID != nil {
		f.GroupID = ex.GroupID
	}
	return f
}

// Deschedule moves a task back to the backlog.
func (e Engine) Deschedule(ctx context.Context, id, actorID string) (domain.Task, error) {
	empty := ""
	return e.UpdateTask(ctx, TaskUpdateOptions{ID: id, Fields: reconcile.Fields{ScheduledDate: &empty}, ActorID: actorID})
}

// DeleteTask removes a task. Deleting a master removes its exceptions.
func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	_, err := e.run(ctx, events.TaskDeleted, actorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		t, err := e.getTask(ctx, tx, id)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		return reconcile.Delete(t), t.ID, events.EventPayload{"title": t.Title, "kind": t.Kind()}, nil
	})
	return err
}

// CopyOptions duplicate a task onto a new slot.
type CopyOptions struct {
	SourceID string
	Date     string
	Start    string
	End      string
	AllDay   bool
	ActorID  string
}

func (e Engine) CopyTask(ctx context.Context, opts CopyOptions) (domain.Task, error) {
	id := e.newID()
	rows, err := e.run(ctx, events.TaskCreated, opts.ActorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		src, err := e.getTask(ctx, tx, opts.SourceID)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		at := reconcile.Placement{Date: opts.Date, Start: opts.Start, End: opts.End, AllDay: opts.AllDay}
		if at.Start != "" && at.End == "" {
			end, err := recurrence.EndFor(at.Start, e.durationFor(src))
			if err != nil {
				return reconcile.Plan{}, "", nil, &reconcile.InvalidError{Op: "copy task", Reason: err.Error()}
			}
			at.End = end
		}
		plan, err := reconcile.CopyAndSchedule(src, at, id)
		if err != nil {
			return plan, "", nil, err
		}
		pos, err := e.Repo.NextPosition(ctx, tx)
		if err != nil {
			return plan, "", nil, err
		}
		plan.Mutations[0].Task.Position = pos
		return plan, id, events.EventPayload{"source_id": src.ID, "date": opts.Date}, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, id)
}

func (e Engine) durationFor(t domain.Task) int {
	if t.EstimatedMinutes != nil && *t.EstimatedMinutes > 0 {
		return *t.EstimatedMinutes
	}
	return e.config().Calendar.DefaultDurationMinutes
}

// fillEnd supplies a missing end time from the estimate or the default
// duration when only a start is given.
func (e Engine) fillEnd(f *reconcile.Fields, current *domain.Task) error {
	if f.ScheduledStart == nil || strings.TrimSpace(*f.ScheduledStart) == "" {
		return nil
	}
	if f.ScheduledEnd != nil && strings.TrimSpace(*f.ScheduledEnd) != "" {
		return nil
	}
	var base domain.Task
	if current != nil {
		base = *current
	}
	if f.EstimatedMinutes != nil {
		base.EstimatedMinutes = f.EstimatedMinutes
	}
	end, err := recurrence.EndFor(*f.ScheduledStart, e.durationFor(base))
	if err != nil {
		return &reconcile.InvalidError{Op: "schedule task", Reason: err.Error()}
	}
	f.ScheduledEnd = &end
	return nil
}

func (e Engine) ensureGroup(ctx context.Context, tx *sql.Tx, groupID *string) error {
	if groupID == nil || strings.TrimSpace(*groupID) == "" {
		return nil
	}
	if _, err := e.Repo.GetGroup(ctx, tx, *groupID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("group %s: %w", *groupID, err)
		}
		return err
	}
	return nil
}
