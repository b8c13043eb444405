package server

import (
	"encoding/json"

	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/reconcile"
	"dayplan/internal/recurrence"
)

// Request payloads

// TaskFieldsRequest is a partial task edit. Omitted fields are left alone;
// an empty group_id or scheduled_date clears it, as does 0 for points and
// estimated_minutes.
type TaskFieldsRequest struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	Points           *int    `json:"points,omitempty" minimum:"0"`
	EstimatedMinutes *int    `json:"estimated_minutes,omitempty" minimum:"0"`
	GroupID          *string `json:"group_id,omitempty"`
	Completed        *bool   `json:"completed,omitempty"`
	ScheduledDate    *string `json:"scheduled_date,omitempty" example:"2024-01-15"`
	ScheduledStart   *string `json:"scheduled_start,omitempty" example:"09:00"`
	ScheduledEnd     *string `json:"scheduled_end,omitempty" example:"09:30"`
	AllDay           *bool   `json:"all_day,omitempty"`
	RecurrenceRule   *string `json:"recurrence_rule,omitempty" example:"FREQ=WEEKLY;BYDAY=MO"`
}

type CreateTaskRequest struct {
	ID *string `json:"id,omitempty"`
	TaskFieldsRequest
}

type ScheduleRequest struct {
	Date           string `json:"date" example:"2024-01-15"`
	Start          string `json:"start,omitempty" example:"09:00"`
	End            string `json:"end,omitempty" example:"09:30"`
	AllDay         bool   `json:"all_day,omitempty"`
	OccurrenceDate string `json:"occurrence_date,omitempty" doc:"Re-time one occurrence of a recurring task on its own day instead of the series"`
}

type CopyRequest struct {
	Date   string `json:"date" example:"2024-01-15"`
	Start  string `json:"start,omitempty" example:"09:00"`
	End    string `json:"end,omitempty" example:"09:30"`
	AllDay bool   `json:"all_day,omitempty"`
}

type RecurrenceRequest struct {
	Shape string `json:"shape,omitempty" enum:"none,daily,weekdays,weekly,monthly"`
	Rule  string `json:"rule,omitempty" example:"FREQ=MONTHLY;BYMONTHDAY=15"`
}

type CreateGroupRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty" example:"#3b82f6"`
}

type UpdateGroupRequest struct {
	Name     *string `json:"name,omitempty"`
	Color    *string `json:"color,omitempty"`
	Position *int    `json:"position,omitempty"`
}

// Response payloads

type AgendaResponse struct {
	Date     string            `json:"date" format:"date"`
	Timed    []recurrence.Item `json:"timed"`
	AllDay   []recurrence.Item `json:"all_day"`
	DueToday []recurrence.Item `json:"due_today"`
	Done     []recurrence.Item `json:"done"`
}

type WeekResponse struct {
	Start string           `json:"start" format:"date"`
	Days  []AgendaResponse `json:"days"`
}

type RecurrenceOptionsResponse struct {
	Anchor  string              `json:"anchor" format:"date"`
	Options []recurrence.Option `json:"options"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func (r TaskFieldsRequest) fields() reconcile.Fields {
	return reconcile.Fields{
		Title:            r.Title,
		Description:      r.Description,
		Points:           r.Points,
		EstimatedMinutes: r.EstimatedMinutes,
		GroupID:          r.GroupID,
		Completed:        r.Completed,
		ScheduledDate:    r.ScheduledDate,
		ScheduledStart:   r.ScheduledStart,
		ScheduledEnd:     r.ScheduledEnd,
		AllDay:           r.AllDay,
		RecurrenceRule:   r.RecurrenceRule,
	}
}

func agendaResponse(a recurrence.Agenda) AgendaResponse {
	return AgendaResponse{
		Date:     a.Date,
		Timed:    nonNilSlice(a.Timed),
		AllDay:   nonNilSlice(a.AllDay),
		DueToday: nonNilSlice(a.DueToday),
		Done:     nonNilSlice(a.Done),
	}
}

func weekResponse(w engine.Week) WeekResponse {
	out := WeekResponse{Start: w.Start, Days: make([]AgendaResponse, 0, len(w.Days))}
	for _, d := range w.Days {
		out.Days = append(out.Days, agendaResponse(d))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
