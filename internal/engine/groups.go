package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"dayplan/internal/domain"
	"dayplan/internal/events"
	"dayplan/internal/reconcile"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// DefaultGroupColor is used when a group is created without one.
const DefaultGroupColor = "#3b82f6"

func validateGroup(op string, g domain.Group) error {
	if strings.TrimSpace(g.Name) == "" {
		return &reconcile.InvalidError{Op: op, Reason: "name is required"}
	}
	if !hexColor.MatchString(g.Color) {
		return &reconcile.InvalidError{Op: op, Reason: fmt.Sprintf("color %q must be #rrggbb", g.Color)}
	}
	return nil
}

func (e Engine) CreateGroup(ctx context.Context, name, color, actorID string) (domain.Group, error) {
	if color == "" {
		color = DefaultGroupColor
	}
	g := domain.Group{ID: e.newID(), Name: strings.TrimSpace(name), Color: color, CreatedAt: e.stamp()}
	if err := validateGroup("create group", g); err != nil {
		return g, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return g, err
	}
	defer tx.Rollback()

	if g.Position, err = e.Repo.NextGroupPosition(ctx, tx); err != nil {
		return g, err
	}
	if err := e.Repo.InsertGroup(ctx, tx, g); err != nil {
		return g, fmt.Errorf("insert group: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.GroupCreated, "group", g.ID, actor(actorID), events.EventPayload{"name": g.Name, "color": g.Color}); err != nil {
		return g, err
	}
	return g, tx.Commit()
}

// GroupUpdate is a partial group edit.
type GroupUpdate struct {
	Name     *string
	Color    *string
	Position *int
}

func (e Engine) UpdateGroup(ctx context.Context, id string, u GroupUpdate, actorID string) (domain.Group, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGroup(ctx, tx, id)
	if err != nil {
		return g, fmt.Errorf("group %s: %w", id, err)
	}
	if u.Name != nil {
		g.Name = strings.TrimSpace(*u.Name)
	}
	if u.Color != nil {
		g.Color = *u.Color
	}
	if u.Position != nil {
		g.Position = *u.Position
	}
	if err := validateGroup("update group", g); err != nil {
		return g, err
	}
	if err := e.Repo.UpdateGroup(ctx, tx, g); err != nil {
		return g, err
	}
	if err := e.writer().Append(ctx, tx, events.GroupUpdated, "group", g.ID, actor(actorID), events.EventPayload{"name": g.Name, "color": g.Color}); err != nil {
		return g, err
	}
	return g, tx.Commit()
}

// DeleteGroup removes a group. Its tasks are deleted with it when
// deleteTasks is set, otherwise they lose their group.
func (e Engine) DeleteGroup(ctx context.Context, id string, deleteTasks bool, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	removed, err := e.Repo.DeleteGroup(ctx, tx, id, deleteTasks)
	if err != nil {
		return fmt.Errorf("group %s: %w", id, err)
	}
	if err := e.writer().Append(ctx, tx, events.GroupDeleted, "group", id, actor(actorID), events.EventPayload{"delete_tasks": deleteTasks, "tasks_removed": removed}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListGroups(ctx context.Context) ([]domain.Group, error) {
	return e.Repo.ListGroups(ctx)
}
