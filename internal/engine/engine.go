package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dayplan/internal/config"
	"dayplan/internal/domain"
	"dayplan/internal/events"
	"dayplan/internal/reconcile"
	"dayplan/internal/recurrence"
	"dayplan/internal/repo"
)

// DefaultActor is recorded on events when the caller does not name one.
const DefaultActor = "local-user"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	NewID  func() string
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) writer() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) config() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// Today is the current calendar date in the configured timezone.
func (e Engine) Today() recurrence.Date {
	loc, err := e.config().Location()
	if err != nil {
		loc = time.Local
	}
	return recurrence.DateOf(e.now().In(loc))
}

func actor(id string) string {
	if id == "" {
		return DefaultActor
	}
	return id
}

func parseDate(op, s string) (recurrence.Date, error) {
	d, err := recurrence.ParseDate(s)
	if err != nil {
		return d, &reconcile.InvalidError{Op: op, Reason: err.Error()}
	}
	return d, nil
}

func (e Engine) getTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return t, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

// apply writes plan inside tx. Inserts and updates are stamped; exception
// inserts go through the occurrence upsert so concurrent writers for one
// occurrence end with a single row. It returns the rows as stored.
func (e Engine) apply(ctx context.Context, tx *sql.Tx, plan reconcile.Plan) ([]domain.Task, error) {
	now := e.stamp()
	var written []domain.Task
	for _, m := range plan.Mutations {
		switch m.Op {
		case reconcile.OpInsert:
			t := m.Task
			if t.CreatedAt == "" {
				t.CreatedAt = now
			}
			t.UpdatedAt = now
			if t.RecurringParentID != nil {
				stored, err := e.Repo.UpsertException(ctx, tx, t)
				if err != nil {
					return nil, fmt.Errorf("upsert exception: %w", err)
				}
				written = append(written, stored)
				continue
			}
			if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
				return nil, fmt.Errorf("insert task: %w", err)
			}
			written = append(written, t)
		case reconcile.OpUpdate:
			t := m.Task
			t.UpdatedAt = now
			if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
				return nil, fmt.Errorf("update task %s: %w", t.ID, err)
			}
			written = append(written, t)
		case reconcile.OpDeleteExceptions:
			if _, err := e.Repo.DeleteExceptions(ctx, tx, m.ID); err != nil {
				return nil, fmt.Errorf("delete exceptions of %s: %w", m.ID, err)
			}
		case reconcile.OpDelete:
			if err := e.Repo.DeleteTask(ctx, tx, m.ID); err != nil {
				return nil, fmt.Errorf("delete task %s: %w", m.ID, err)
			}
		default:
			return nil, fmt.Errorf("unknown mutation %q", m.Op)
		}
	}
	return written, nil
}

// run executes build inside one transaction: the rows it reads, the plan it
// returns and the event are committed together or not at all.
func (e Engine) run(ctx context.Context, evtType, actorID string, build func(tx *sql.Tx) (reconcile.Plan, string, events.EventPayload, error)) ([]domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	plan, entityID, payload, err := build(tx)
	if err != nil {
		return nil, err
	}
	written, err := e.apply(ctx, tx, plan)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["mutations"] = len(plan.Mutations)
	if err := e.writer().Append(ctx, tx, evtType, "task", entityID, actor(actorID), payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return written, nil
}

// first returns the first written row, or the row with id when present.
func first(rows []domain.Task, id string) (domain.Task, error) {
	for _, t := range rows {
		if t.ID == id {
			return t, nil
		}
	}
	if len(rows) > 0 {
		return rows[0], nil
	}
	return domain.Task{}, errors.New("no rows written")
}
