package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/recurrence"
	"dayplan/internal/repo"
)

func registerViews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-day",
		Method:      http.MethodGet,
		Path:        "/days/{date}",
		Summary:     "Agenda of one day",
		Description: "Recurring tasks are expanded; virtual occurrences carry is_virtual_recurrence.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string `path:"date" example:"2024-01-15"`
	}) (*struct {
		Body AgendaResponse `json:"body"`
	}, error) {
		a, err := e.Agenda(ctx, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgendaResponse `json:"body"`
		}{Body: agendaResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-week",
		Method:      http.MethodGet,
		Path:        "/weeks/{date}",
		Summary:     "Agendas of the week containing a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string `path:"date" example:"2024-01-15"`
	}) (*struct {
		Body WeekResponse `json:"body"`
	}, error) {
		w, err := e.Week(ctx, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WeekResponse `json:"body"`
		}{Body: weekResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-backlog",
		Method:      http.MethodGet,
		Path:        "/backlog",
		Summary:     "Open tasks without a time slot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		items, err := e.Backlog(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recurrence-options",
		Method:      http.MethodGet,
		Path:        "/recurrence/options",
		Summary:     "Recurrence picker entries for an anchor date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Anchor string `query:"anchor" required:"true" example:"2024-01-15"`
	}) (*struct {
		Body RecurrenceOptionsResponse `json:"body"`
	}, error) {
		anchor, err := recurrence.ParseDate(input.Anchor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"anchor": input.Anchor})
		}
		return &struct {
			Body RecurrenceOptionsResponse `json:"body"`
		}{Body: RecurrenceOptionsResponse{Anchor: anchor.String(), Options: recurrence.Options(anchor)}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"task,group,agenda"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerCalendar(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-calendar",
		Method:      http.MethodGet,
		Path:        "/calendar.ics",
		Summary:     "Export a date range as iCalendar",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" required:"true" example:"2024-01-01"`
		To   string `query:"to" required:"true" example:"2024-01-31"`
	}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		out, err := e.ExportICS(ctx, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: "text/calendar; charset=utf-8", Body: []byte(out)}, nil
	})
}
