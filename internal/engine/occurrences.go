package engine

import (
	"context"
	"database/sql"
	"strings"

	"dayplan/internal/domain"
	"dayplan/internal/events"
	"dayplan/internal/reconcile"
	"dayplan/internal/recurrence"
)

// RecurrenceOptions attach a rule to a task. Shape is encoded against the
// task's scheduled date; Rule is taken as given. Shape "none" removes the
// recurrence.
type RecurrenceOptions struct {
	ID      string
	Shape   string
	Rule    string
	ActorID string
}

// SetRecurrence makes a task recurring and returns the master. For a
// completed task the master is a new row and the original becomes the
// completed exception of the anchor date.
func (e Engine) SetRecurrence(ctx context.Context, opts RecurrenceOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Rule) == "" {
		shape, err := recurrence.ParseShape(opts.Shape)
		if err != nil {
			return domain.Task{}, &reconcile.InvalidError{Op: "set recurrence", Reason: err.Error()}
		}
		if shape == recurrence.ShapeNone {
			return e.RemoveRecurrence(ctx, opts.ID, opts.ActorID)
		}
	}
	newID := e.newID()
	rows, err := e.run(ctx, events.RecurrenceSet, opts.ActorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		t, err := e.getTask(ctx, tx, opts.ID)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		rule := opts.Rule
		if strings.TrimSpace(rule) == "" {
			rule, err = encodeFor(t, opts.Shape)
			if err != nil {
				return reconcile.Plan{}, "", nil, err
			}
		}
		plan, err := reconcile.SetRecurrence(t, rule, newID)
		if err != nil {
			return plan, "", nil, err
		}
		payload := events.EventPayload{"rule": rule, "label": recurrence.Describe(rule)}
		if len(plan.Mutations) == 2 {
			payload["promoted_from"] = t.ID
		}
		return plan, t.ID, payload, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	for _, t := range rows {
		if t.IsMaster() {
			return t, nil
		}
	}
	return first(rows, opts.ID)
}

func encodeFor(t domain.Task, shape string) (string, error) {
	const op = "set recurrence"
	s, err := recurrence.ParseShape(shape)
	if err != nil {
		return "", &reconcile.InvalidError{Op: op, Reason: err.Error()}
	}
	if t.ScheduledDate == nil {
		return "", &reconcile.InvalidError{Op: op, Reason: "recurring task needs a scheduled_date anchor"}
	}
	anchor, err := parseDate(op, *t.ScheduledDate)
	if err != nil {
		return "", err
	}
	rule, err := recurrence.Encode(s, anchor)
	if err != nil {
		return "", &reconcile.InvalidError{Op: op, Reason: err.Error()}
	}
	return rule, nil
}

// RemoveRecurrence clears the rule and drops every exception of the series.
func (e Engine) RemoveRecurrence(ctx context.Context, id, actorID string) (domain.Task, error) {
	rows, err := e.run(ctx, events.RecurrenceRemoved, actorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		t, err := e.getTask(ctx, tx, id)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		plan, err := reconcile.RemoveRecurrence(t)
		return plan, t.ID, nil, err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, id)
}

// UpdateSeries edits the master. Existing exceptions keep their overrides.
func (e Engine) UpdateSeries(ctx context.Context, masterID string, f reconcile.Fields, actorID string) (domain.Task, error) {
	rows, err := e.run(ctx, events.SeriesUpdated, actorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		m, err := e.getTask(ctx, tx, masterID)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		if err := e.ensureGroup(ctx, tx, f.GroupID); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		if err := e.fillEnd(&f, &m); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		plan, err := reconcile.UpdateAll(m, f)
		return plan, m.ID, nil, err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, masterID)
}

// EditOccurrence writes the exception for one occurrence of a master.
// Fields left unset follow the master's current values.
func (e Engine) EditOccurrence(ctx context.Context, masterID, date string, f reconcile.Fields, actorID string) (domain.Task, error) {
	d, err := parseDate("edit occurrence", date)
	if err != nil {
		return domain.Task{}, err
	}
	rows, err := e.run(ctx, events.OccurrenceUpserted, actorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		m, existing, err := e.occurrence(ctx, tx, masterID, d)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		if err := e.ensureGroup(ctx, tx, f.GroupID); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		if err := e.fillEnd(&f, &m); err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		plan, err := reconcile.UpsertException(m, existing, d, f, e.newID())
		return plan, m.ID, events.EventPayload{"occurrence": d.String(), "replaced": existing != nil}, err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, "")
}

// CancelOccurrence suppresses one occurrence of a master.
func (e Engine) CancelOccurrence(ctx context.Context, masterID, date, actorID string) (domain.Task, error) {
	d, err := parseDate("cancel occurrence", date)
	if err != nil {
		return domain.Task{}, err
	}
	rows, err := e.run(ctx, events.OccurrenceCancelled, actorID, func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error) {
		m, existing, err := e.occurrence(ctx, tx, masterID, d)
		if err != nil {
			return reconcile.Plan{}, "", nil, err
		}
		plan, err := reconcile.CancelOccurrence(m, existing, d, e.newID())
		return plan, m.ID, events.EventPayload{"occurrence": d.String(), "title": m.Title}, err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return first(rows, "")
}

func (e Engine) occurrence(ctx context.Context, tx *sql.Tx, masterID string, d recurrence.Date) (domain.Task, *domain.Task, error) {
	m, err := e.getTask(ctx, tx, masterID)
	if err != nil {
		return m, nil, err
	}
	existing, err := e.Repo.FindException(ctx, tx, m.ID, d.String())
	return m, existing, err
}
