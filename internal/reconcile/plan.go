// Package reconcile turns edits of recurring tasks into row-level mutations.
// Planning is pure; the engine applies a Plan inside one transaction and
// Apply replays it against an in-memory list.
package reconcile

import (
	"fmt"

	"dayplan/internal/domain"
)

type Op string

const (
	OpInsert           Op = "insert"
	OpUpdate           Op = "update"
	OpDeleteExceptions Op = "delete_exceptions"
	OpDelete           Op = "delete"
)

// Mutation is one write. Task is set for insert/update, ID for the deletes
// (the parent id for OpDeleteExceptions).
type Mutation struct {
	Op   Op          `json:"op"`
	Task domain.Task `json:"task,omitempty"`
	ID   string      `json:"id,omitempty"`
}

// Plan is an ordered list of mutations. Order matters: a new master is
// inserted before rows that point at it.
type Plan struct {
	Mutations []Mutation `json:"mutations"`
}

func (p *Plan) insert(t domain.Task) {
	p.Mutations = append(p.Mutations, Mutation{Op: OpInsert, Task: t})
}

func (p *Plan) update(t domain.Task) {
	p.Mutations = append(p.Mutations, Mutation{Op: OpUpdate, Task: t})
}

func (p *Plan) deleteExceptions(parentID string) {
	p.Mutations = append(p.Mutations, Mutation{Op: OpDeleteExceptions, ID: parentID})
}

func (p *Plan) delete(id string) {
	p.Mutations = append(p.Mutations, Mutation{Op: OpDelete, ID: id})
}

// Touched returns the task rows written by the plan, inserts and updates
// in order.
func (p Plan) Touched() []domain.Task {
	var out []domain.Task
	for _, m := range p.Mutations {
		if m.Op == OpInsert || m.Op == OpUpdate {
			out = append(out, m.Task)
		}
	}
	return out
}

// InvalidError reports an edit that would leave rows in an illegal state.
type InvalidError struct {
	Op     string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func invalid(op, format string, args ...any) error {
	return &InvalidError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Apply replays plan over tasks and returns the resulting list. Inserts
// behave as upserts on id and on (recurring_parent_id, original_date), the
// same way the store resolves them.
func Apply(tasks []domain.Task, plan Plan) []domain.Task {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	for _, m := range plan.Mutations {
		switch m.Op {
		case OpInsert:
			if i := indexOf(out, m.Task); i >= 0 {
				out[i] = m.Task
			} else {
				out = append(out, m.Task)
			}
		case OpUpdate:
			for i := range out {
				if out[i].ID == m.Task.ID {
					out[i] = m.Task
				}
			}
		case OpDeleteExceptions:
			out = filter(out, func(t domain.Task) bool {
				return t.RecurringParentID == nil || *t.RecurringParentID != m.ID
			})
		case OpDelete:
			out = filter(out, func(t domain.Task) bool { return t.ID != m.ID })
		}
	}
	return out
}

func indexOf(tasks []domain.Task, t domain.Task) int {
	for i := range tasks {
		if tasks[i].ID == t.ID {
			return i
		}
		if sameOccurrence(tasks[i], t) {
			return i
		}
	}
	return -1
}

func sameOccurrence(a, b domain.Task) bool {
	return a.RecurringParentID != nil && b.RecurringParentID != nil &&
		a.OriginalDate != nil && b.OriginalDate != nil &&
		*a.RecurringParentID == *b.RecurringParentID && *a.OriginalDate == *b.OriginalDate
}

func filter(tasks []domain.Task, keep func(domain.Task) bool) []domain.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
