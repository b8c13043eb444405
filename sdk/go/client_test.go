package dayplansdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dayplan/internal/config"
	"dayplan/internal/db"
	"dayplan/internal/engine"
	"dayplan/internal/migrate"
	"dayplan/internal/server"
)

func newTestAPI(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func ptr[T any](v T) *T { return &v }

func TestClientSeriesRoundTrip(t *testing.T) {
	srv, e := newTestAPI(t)
	ctx := context.Background()
	_, key, err := e.CreateAPIKey(ctx, "sdk", "sdk-user")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	c := New(srv.URL)
	c.APIKey = key

	master, err := c.CreateTask(ctx, TaskFields{
		Title:          ptr("Standup"),
		ScheduledDate:  ptr("2024-01-15"),
		ScheduledStart: ptr("09:00"),
		ScheduledEnd:   ptr("09:15"),
		RecurrenceRule: ptr("FREQ=WEEKLY;BYDAY=MO"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	day, err := c.Day(ctx, "2024-01-22")
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if len(day.Timed) != 1 || !day.Timed[0].Virtual || day.Timed[0].Title != "Standup" {
		t.Fatalf("expected one virtual standup, got %+v", day.Timed)
	}

	if _, err := c.EditOccurrence(ctx, master.ID, "2024-01-22", TaskFields{Title: ptr("Standup (remote)")}); err != nil {
		t.Fatalf("edit occurrence: %v", err)
	}
	if _, err := c.CancelOccurrence(ctx, master.ID, "2024-01-29"); err != nil {
		t.Fatalf("cancel occurrence: %v", err)
	}

	week, err := c.Week(ctx, "2024-01-22")
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if len(week.Days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(week.Days))
	}
	day, err = c.Day(ctx, "2024-01-22")
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if len(day.Timed) != 1 || day.Timed[0].Virtual || day.Timed[0].Title != "Standup (remote)" {
		t.Fatalf("expected stored exception, got %+v", day.Timed)
	}
	day, err = c.Day(ctx, "2024-01-29")
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if len(day.Timed) != 0 {
		t.Fatalf("expected cancelled occurrence to be hidden, got %+v", day.Timed)
	}

	page, err := c.EventsPage(ctx, 2, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", page)
	}
	if page.Items[0].ActorID != "sdk-user" {
		t.Fatalf("expected events attributed to the key owner, got %q", page.Items[0].ActorID)
	}

	cal, err := c.Calendar(ctx, "2024-01-15", "2024-01-31")
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if !strings.Contains(cal, "BEGIN:VCALENDAR") || !strings.Contains(cal, "Standup (remote)") {
		t.Fatalf("unexpected calendar:\n%s", cal)
	}
}

func TestClientErrors(t *testing.T) {
	srv, e := newTestAPI(t)
	ctx := context.Background()

	anon := New(srv.URL)
	_, err := anon.Backlog(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	_, key, err := e.CreateAPIKey(ctx, "sdk", "sdk-user")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	c := New(srv.URL)
	c.APIKey = key
	_, err = c.GetTask(ctx, "missing")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	g, err := c.CreateGroup(ctx, "Work", "")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	task, err := c.CreateTask(ctx, TaskFields{Title: ptr("Write report"), GroupID: ptr(g.ID)})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	backlog, err := c.Backlog(ctx)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != task.ID {
		t.Fatalf("expected task in backlog, got %+v", backlog)
	}
	if err := c.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	backlog, err = c.Backlog(ctx)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %+v", backlog)
	}
}
