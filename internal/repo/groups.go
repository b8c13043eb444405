package repo

import (
	"context"
	"database/sql"
	"errors"

	"dayplan/internal/domain"
)

func scanGroup(s scanner) (domain.Group, error) {
	var g domain.Group
	err := s.Scan(&g.ID, &g.Name, &g.Color, &g.Position, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) InsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO groups(id,name,color,position,created_at) VALUES (?,?,?,?,?)`,
		g.ID, g.Name, g.Color, g.Position, g.CreatedAt)
	return err
}

func (r Repo) UpdateGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE groups SET name=?, color=?, position=? WHERE id=?`, g.Name, g.Color, g.Position, g.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetGroup(ctx context.Context, tx *sql.Tx, id string) (domain.Group, error) {
	return scanGroup(r.q(tx).QueryRowContext(ctx, `SELECT id,name,color,position,created_at FROM groups WHERE id=?`, id))
}

func (r Repo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,color,position,created_at FROM groups ORDER BY position ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// DeleteGroup removes the group. With deleteTasks its tasks (and their
// exceptions, through the cascade) go too; otherwise they are ungrouped.
func (r Repo) DeleteGroup(ctx context.Context, tx *sql.Tx, id string, deleteTasks bool) (int64, error) {
	var affected int64
	if deleteTasks {
		res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE group_id=?`, id)
		if err != nil {
			return 0, err
		}
		affected, _ = res.RowsAffected()
	} else {
		if _, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET group_id=NULL WHERE group_id=?`, id); err != nil {
			return 0, err
		}
	}
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM groups WHERE id=?`, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	return affected, nil
}

func (r Repo) NextGroupPosition(ctx context.Context, tx *sql.Tx) (int, error) {
	var pos int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(position),-1)+1 FROM groups`).Scan(&pos)
	return pos, err
}
