package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/repo"
)

type taskBody struct {
	Body domain.Task `json:"body"`
}

type taskPath struct {
	ID string `path:"id"`
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List task rows",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		GroupID  string `query:"group_id"`
		Kind     string `query:"kind" enum:"regular,master,exception,cancellation"`
		ParentID string `query:"parent_id"`
		Date     string `query:"date" doc:"Rows stored on this date; recurring tasks are not expanded"`
		Status   string `query:"status" enum:"all,open,done" default:"all"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		f := repo.TaskFilters{
			GroupID:  input.GroupID,
			Kind:     domain.Kind(input.Kind),
			ParentID: input.ParentID,
			Date:     input.Date,
			Limit:    input.Limit,
		}
		switch input.Status {
		case "open":
			done := false
			f.Completed = &done
		case "done":
			done := true
			f.Completed = &done
		}
		items, err := e.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{Fields: input.Body.fields(), ActorID: actorID}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Description: "Updating a recurring master updates the whole series; existing exceptions keep their overrides.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TaskFieldsRequest `json:"body"`
	}) (*taskBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: input.ID, Fields: input.Body.fields(), ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Description: "Deleting a recurring master deletes its exceptions.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/toggle",
		Summary:     "Toggle completion",
		Description: "For a recurring task pass the occurrence date; the occurrence is completed through an exception row.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Date string `query:"date" example:"2024-01-15"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ToggleTask(ctx, input.ID, input.Date, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/schedule",
		Summary:     "Place a task on the calendar",
		Description: "A start time makes a timed block, all_day an all-day item, and a bare date a due-today item.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body ScheduleRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ScheduleTask(ctx, engine.ScheduleOptions{
			ID:             input.ID,
			Date:           input.Body.Date,
			Start:          input.Body.Start,
			End:            input.Body.End,
			AllDay:         input.Body.AllDay,
			OccurrenceDate: input.Body.OccurrenceDate,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deschedule-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/schedule",
		Summary:     "Move a task back to the backlog",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Deschedule(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "copy-task",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/copy",
		Summary:       "Copy a task onto the calendar",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body CopyRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CopyTask(ctx, engine.CopyOptions{
			SourceID: input.ID,
			Date:     input.Body.Date,
			Start:    input.Body.Start,
			End:      input.Body.End,
			AllDay:   input.Body.AllDay,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})
}

func registerRecurrence(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-recurrence",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/recurrence",
		Summary:     "Make a task recurring",
		Description: "Either a shape, encoded against the task's scheduled date, or a raw rule. A completed task is split into a new master and a completed exception for its date.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body RecurrenceRequest `json:"body"`
	}) (*taskBody, error) {
		if input.Body.Shape == "" && input.Body.Rule == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "shape or rule is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetRecurrence(ctx, engine.RecurrenceOptions{ID: input.ID, Shape: input.Body.Shape, Rule: input.Body.Rule, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-recurrence",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/recurrence",
		Summary:     "Stop a task recurring",
		Description: "All exceptions of the series are deleted.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RemoveRecurrence(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})
}

func registerOccurrences(api huma.API, e engine.Engine) {
	type occurrencePath struct {
		ID   string `path:"id"`
		Date string `path:"date" example:"2024-01-15"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "update-series",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/occurrences",
		Summary:     "Edit every occurrence",
		Description: "Edits the master. Occurrences that already have an exception keep their overrides.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TaskFieldsRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateSeries(ctx, input.ID, input.Body.fields(), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-occurrence",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/occurrences/{date}",
		Summary:     "Edit one occurrence",
		Description: "Creates or replaces the exception for the occurrence. Omitted fields follow the master.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Date string            `path:"date" example:"2024-01-15"`
		Body TaskFieldsRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.EditOccurrence(ctx, input.ID, input.Date, input.Body.fields(), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-occurrence",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/occurrences/{date}",
		Summary:     "Cancel one occurrence",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *occurrencePath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CancelOccurrence(ctx, input.ID, input.Date, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})
}
