package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a task row by which recurrence fields it carries.
type Kind string

const (
	KindRegular      Kind = "regular"
	KindMaster       Kind = "master"
	KindException    Kind = "exception"
	KindCancellation Kind = "cancellation"
)

// Task is the persisted task row. Masters carry RecurrenceRule, exception
// rows carry RecurringParentID and OriginalDate, regular tasks carry neither.
type Task struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Points            *int    `json:"points,omitempty"`
	EstimatedMinutes  *int    `json:"estimated_minutes,omitempty"`
	GroupID           *string `json:"group_id,omitempty"`
	Completed         bool    `json:"completed"`
	Cancelled         bool    `json:"cancelled,omitempty"`
	ScheduledDate     *string `json:"scheduled_date,omitempty" format:"date"`
	ScheduledStart    *string `json:"scheduled_start,omitempty" example:"09:00"`
	ScheduledEnd      *string `json:"scheduled_end,omitempty" example:"10:30"`
	AllDay            bool    `json:"all_day,omitempty"`
	RecurrenceRule    *string `json:"recurrence_rule,omitempty" example:"FREQ=WEEKLY;BYDAY=MO"`
	RecurringParentID *string `json:"recurring_parent_id,omitempty"`
	OriginalDate      *string `json:"original_date,omitempty" format:"date"`
	Position          int     `json:"position"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

// Kind reports the role of the row. Rows that fail Validate still get a
// best-effort kind: a recurring parent wins over a rule.
func (t Task) Kind() Kind {
	switch {
	case t.RecurringParentID != nil && t.Cancelled:
		return KindCancellation
	case t.RecurringParentID != nil:
		return KindException
	case t.RecurrenceRule != nil:
		return KindMaster
	default:
		return KindRegular
	}
}

func (t Task) IsMaster() bool    { return t.Kind() == KindMaster }
func (t Task) IsException() bool { k := t.Kind(); return k == KindException || k == KindCancellation }

// ErrInvalidTask is wrapped by Validate failures.
var ErrInvalidTask = errors.New("invalid task")

// Validate enforces the field combinations that make kinds mutually exclusive.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidTask)
	}
	if t.RecurrenceRule != nil && *t.RecurrenceRule == "" {
		return fmt.Errorf("%w: empty recurrence rule", ErrInvalidTask)
	}
	if t.RecurrenceRule != nil && t.RecurringParentID != nil {
		return fmt.Errorf("%w: exception rows cannot recur", ErrInvalidTask)
	}
	if (t.RecurringParentID == nil) != (t.OriginalDate == nil) {
		return fmt.Errorf("%w: recurring_parent_id and original_date must be set together", ErrInvalidTask)
	}
	if t.RecurringParentID != nil && *t.RecurringParentID == t.ID {
		return fmt.Errorf("%w: task cannot be its own recurring parent", ErrInvalidTask)
	}
	if t.Cancelled && t.RecurringParentID == nil {
		return fmt.Errorf("%w: only exception rows can be cancelled", ErrInvalidTask)
	}
	if (t.ScheduledStart == nil) != (t.ScheduledEnd == nil) {
		return fmt.Errorf("%w: scheduled_start and scheduled_end must be set together", ErrInvalidTask)
	}
	if t.ScheduledStart != nil && t.ScheduledDate == nil {
		return fmt.Errorf("%w: timed task needs scheduled_date", ErrInvalidTask)
	}
	return nil
}

// Group is a coloured bucket tasks can be filed under.
type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color" example:"#3b82f6"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
