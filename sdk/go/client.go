package dayplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal dayplan HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Task mirrors the API task model.
type Task struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Points            *int    `json:"points,omitempty"`
	EstimatedMinutes  *int    `json:"estimated_minutes,omitempty"`
	GroupID           *string `json:"group_id,omitempty"`
	Completed         bool    `json:"completed"`
	Cancelled         bool    `json:"cancelled,omitempty"`
	ScheduledDate     *string `json:"scheduled_date,omitempty"`
	ScheduledStart    *string `json:"scheduled_start,omitempty"`
	ScheduledEnd      *string `json:"scheduled_end,omitempty"`
	AllDay            bool    `json:"all_day,omitempty"`
	RecurrenceRule    *string `json:"recurrence_rule,omitempty"`
	RecurringParentID *string `json:"recurring_parent_id,omitempty"`
	OriginalDate      *string `json:"original_date,omitempty"`
	Position          int     `json:"position"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
	// Set on occurrences computed from a series.
	Virtual bool `json:"is_virtual_recurrence,omitempty"`
}

// TaskFields is a partial task; nil fields are left alone.
type TaskFields struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	Points           *int    `json:"points,omitempty"`
	EstimatedMinutes *int    `json:"estimated_minutes,omitempty"`
	GroupID          *string `json:"group_id,omitempty"`
	Completed        *bool   `json:"completed,omitempty"`
	ScheduledDate    *string `json:"scheduled_date,omitempty"`
	ScheduledStart   *string `json:"scheduled_start,omitempty"`
	ScheduledEnd     *string `json:"scheduled_end,omitempty"`
	AllDay           *bool   `json:"all_day,omitempty"`
	RecurrenceRule   *string `json:"recurrence_rule,omitempty"`
}

// Schedule places a task; see the schedule-task operation.
type Schedule struct {
	Date           string `json:"date"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	AllDay         bool   `json:"all_day,omitempty"`
	OccurrenceDate string `json:"occurrence_date,omitempty"`
}

// Agenda is one day split into panes.
type Agenda struct {
	Date     string `json:"date"`
	Timed    []Task `json:"timed"`
	AllDay   []Task `json:"all_day"`
	DueToday []Task `json:"due_today"`
	Done     []Task `json:"done"`
}

type Week struct {
	Start string   `json:"start"`
	Days  []Agenda `json:"days"`
}

type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, f TaskFields) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", f, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateTask patches a task. On a series master it edits the series.
func (c *Client) UpdateTask(ctx context.Context, id string, f TaskFields) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), f, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// ToggleTask flips completion. date selects the occurrence of a series.
func (c *Client) ToggleTask(ctx context.Context, id, date string) (Task, error) {
	endpoint := fmt.Sprintf("tasks/%s/toggle", url.PathEscape(id))
	if date != "" {
		endpoint += "?date=" + url.QueryEscape(date)
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) ScheduleTask(ctx context.Context, id string, s Schedule) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/schedule", url.PathEscape(id)), s, &resp)
	return resp, err
}

// SetRecurrence takes a shape (daily, weekdays, weekly, monthly) or a raw rule.
func (c *Client) SetRecurrence(ctx context.Context, id, shape, rule string) (Task, error) {
	body := map[string]string{}
	if shape != "" {
		body["shape"] = shape
	}
	if rule != "" {
		body["rule"] = rule
	}
	var resp Task
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("tasks/%s/recurrence", url.PathEscape(id)), body, &resp)
	return resp, err
}

// EditOccurrence stores an exception for one date of a series.
func (c *Client) EditOccurrence(ctx context.Context, masterID, date string, f TaskFields) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/occurrences/%s", url.PathEscape(masterID), url.PathEscape(date))
	err := c.do(ctx, http.MethodPut, endpoint, f, &resp)
	return resp, err
}

func (c *Client) CancelOccurrence(ctx context.Context, masterID, date string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/occurrences/%s", url.PathEscape(masterID), url.PathEscape(date))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Day(ctx context.Context, date string) (Agenda, error) {
	var resp Agenda
	err := c.do(ctx, http.MethodGet, "days/"+url.PathEscape(date), nil, &resp)
	return resp, err
}

func (c *Client) Week(ctx context.Context, date string) (Week, error) {
	var resp Week
	err := c.do(ctx, http.MethodGet, "weeks/"+url.PathEscape(date), nil, &resp)
	return resp, err
}

func (c *Client) Backlog(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "backlog", nil, &resp)
	return resp, err
}

func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var resp []Group
	err := c.do(ctx, http.MethodGet, "groups", nil, &resp)
	return resp, err
}

func (c *Client) CreateGroup(ctx context.Context, name, color string) (Group, error) {
	var resp Group
	err := c.do(ctx, http.MethodPost, "groups", map[string]string{"name": name, "color": color}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Calendar returns the iCalendar export of [from, to].
func (c *Client) Calendar(ctx context.Context, from, to string) (string, error) {
	q := url.Values{"from": {from}, "to": {to}}
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, "calendar.ics?"+q.Encode(), nil, &buf)
	return buf.String(), err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case io.Writer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
