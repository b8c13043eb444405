package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dayplan/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const taskColumns = `id,title,description,points,estimated_minutes,group_id,completed,cancelled,scheduled_date,scheduled_start,scheduled_end,all_day,recurrence_rule,recurring_parent_id,original_date,position,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (domain.Task, error) {
	var t domain.Task
	var description, groupID, date, start, end, rule, parentID, originalDate sql.NullString
	var points, estimate sql.NullInt64
	var completed, cancelled, allDay int
	err := s.Scan(&t.ID, &t.Title, &description, &points, &estimate, &groupID, &completed, &cancelled,
		&date, &start, &end, &allDay, &rule, &parentID, &originalDate, &t.Position, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = description.String
	t.Completed = completed != 0
	t.Cancelled = cancelled != 0
	t.AllDay = allDay != 0
	t.Points = intPtr(points)
	t.EstimatedMinutes = intPtr(estimate)
	t.GroupID = strPtr(groupID)
	t.ScheduledDate = strPtr(date)
	t.ScheduledStart = strPtr(start)
	t.ScheduledEnd = strPtr(end)
	t.RecurrenceRule = strPtr(rule)
	t.RecurringParentID = strPtr(parentID)
	t.OriginalDate = strPtr(originalDate)
	return t, nil
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func taskArgs(t domain.Task) []any {
	return []any{
		t.Title, nullable(t.Description), nullableIntPtr(t.Points), nullableIntPtr(t.EstimatedMinutes), nullableStringPtr(t.GroupID),
		boolInt(t.Completed), boolInt(t.Cancelled), nullableStringPtr(t.ScheduledDate), nullableStringPtr(t.ScheduledStart),
		nullableStringPtr(t.ScheduledEnd), boolInt(t.AllDay), nullableStringPtr(t.RecurrenceRule), nullableStringPtr(t.RecurringParentID),
		nullableStringPtr(t.OriginalDate), t.Position,
	}
}

// InsertTask writes a new row. Exception rows go through UpsertException so
// a second write for the same occurrence replaces the first.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	args := append([]any{t.ID}, taskArgs(t)...)
	args = append(args, t.CreatedAt, t.UpdatedAt)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

// UpsertException inserts an exception row, or overwrites the row already
// keyed to the same (recurring_parent_id, original_date). The stored id and
// created_at of an existing row are kept.
func (r Repo) UpsertException(ctx context.Context, tx *sql.Tx, t domain.Task) (domain.Task, error) {
	if t.RecurringParentID == nil || t.OriginalDate == nil {
		return t, fmt.Errorf("upsert exception %s: missing recurring_parent_id or original_date", t.ID)
	}
	args := append([]any{t.ID}, taskArgs(t)...)
	args = append(args, t.CreatedAt, t.UpdatedAt)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(recurring_parent_id, original_date) WHERE recurring_parent_id IS NOT NULL DO UPDATE SET
  title=excluded.title, description=excluded.description, points=excluded.points, estimated_minutes=excluded.estimated_minutes,
  group_id=excluded.group_id, completed=excluded.completed, cancelled=excluded.cancelled, scheduled_date=excluded.scheduled_date,
  scheduled_start=excluded.scheduled_start, scheduled_end=excluded.scheduled_end, all_day=excluded.all_day,
  position=excluded.position, updated_at=excluded.updated_at`, args...)
	if err != nil {
		return t, err
	}
	return r.GetException(ctx, tx, *t.RecurringParentID, *t.OriginalDate)
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	args := append(taskArgs(t), t.UpdatedAt, t.ID)
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET title=?, description=?, points=?, estimated_minutes=?, group_id=?, completed=?, cancelled=?,
scheduled_date=?, scheduled_start=?, scheduled_end=?, all_day=?, recurrence_rule=?, recurring_parent_id=?, original_date=?, position=?, updated_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// GetException returns the row keyed to one occurrence of parentID.
func (r Repo) GetException(ctx context.Context, tx *sql.Tx, parentID, originalDate string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE recurring_parent_id=? AND original_date=?`, parentID, originalDate))
}

// FindException is GetException with a nil result instead of ErrNotFound.
func (r Repo) FindException(ctx context.Context, tx *sql.Tx, parentID, originalDate string) (*domain.Task, error) {
	t, err := r.GetException(ctx, tx, parentID, originalDate)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type TaskFilters struct {
	GroupID   string
	Kind      domain.Kind
	ParentID  string
	Date      string
	Unplaced  bool
	Completed *bool
	Limit     int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return r.ListTasksTx(ctx, nil, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.GroupID != "" {
		clauses = append(clauses, "group_id=?")
		args = append(args, f.GroupID)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "recurring_parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.Date != "" {
		clauses = append(clauses, "scheduled_date=?")
		args = append(args, f.Date)
	}
	if f.Unplaced {
		clauses = append(clauses, "scheduled_start IS NULL")
	}
	if f.Completed != nil {
		clauses = append(clauses, "completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	switch f.Kind {
	case domain.KindRegular:
		clauses = append(clauses, "recurrence_rule IS NULL AND recurring_parent_id IS NULL")
	case domain.KindMaster:
		clauses = append(clauses, "recurrence_rule IS NOT NULL")
	case domain.KindException:
		clauses = append(clauses, "recurring_parent_id IS NOT NULL AND cancelled=0")
	case domain.KindCancellation:
		clauses = append(clauses, "recurring_parent_id IS NOT NULL AND cancelled=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY position ASC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExceptions removes every exception and cancellation row of a
// series and returns how many went.
func (r Repo) DeleteExceptions(ctx context.Context, tx *sql.Tx, parentID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE recurring_parent_id=?`, parentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NextPosition returns one past the highest task position.
func (r Repo) NextPosition(ctx context.Context, tx *sql.Tx) (int, error) {
	var pos int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(position),-1)+1 FROM tasks`).Scan(&pos)
	return pos, err
}
