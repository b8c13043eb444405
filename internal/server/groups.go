package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"dayplan/internal/domain"
	"dayplan/internal/engine"
)

type groupBody struct {
	Body domain.Group `json:"body"`
}

func registerGroups(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-groups",
		Method:      http.MethodGet,
		Path:        "/groups",
		Summary:     "List groups",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Group `json:"body"`
	}, error) {
		items, err := e.ListGroups(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Group `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-group",
		Method:        http.MethodPost,
		Path:          "/groups",
		Summary:       "Create group",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateGroupRequest `json:"body"`
	}) (*groupBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.CreateGroup(ctx, input.Body.Name, input.Body.Color, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &groupBody{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-group",
		Method:      http.MethodPatch,
		Path:        "/groups/{id}",
		Summary:     "Update group",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateGroupRequest `json:"body"`
	}) (*groupBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.UpdateGroup(ctx, input.ID, engine.GroupUpdate{
			Name:     input.Body.Name,
			Color:    input.Body.Color,
			Position: input.Body.Position,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &groupBody{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-group",
		Method:      http.MethodDelete,
		Path:        "/groups/{id}",
		Summary:     "Delete group",
		Description: "With delete_tasks the group's tasks are deleted too; otherwise they are ungrouped.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID          string `path:"id"`
		DeleteTasks bool   `query:"delete_tasks"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteGroup(ctx, input.ID, input.DeleteTasks, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
