package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/db"
	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/migrate"
	"dayplan/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, "tester", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	env := decode[struct {
		Error apiErrorBody `json:"error"`
	}](t, data)
	return env.Error.Code
}

func createStandup(t *testing.T, srv *testServer, h map[string]string) domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":           "Standup",
		"scheduled_date":  "2024-01-01",
		"scheduled_start": "09:00",
		"recurrence_rule": "FREQ=DAILY",
	}, h)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	return decode[domain.Task](t, data)
}

func TestAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected unauthorized, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("jwt list status %d: %s", res.StatusCode, string(data))
	}

	_, secret, err := srv.Engine.CreateAPIKey(context.Background(), "phone", "tester")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/groups", map[string]any{"name": "Work"}, map[string]string{"X-Api-Key": secret})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("api key create group status %d: %s", res.StatusCode, string(data))
	}
	evts, err := srv.Engine.ListEvents(context.Background(), repo.EventFilters{Type: "group.created"})
	if err != nil || len(evts) != 1 || evts[0].ActorID != "tester" {
		t.Fatalf("group event not attributed to key owner: %+v %v", evts, err)
	}
}

func TestOccurrenceRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	h := bearer(t)
	master := createStandup(t, srv, h)
	if master.ScheduledEnd == nil || *master.ScheduledEnd != "09:30" {
		t.Fatalf("expected default end, got %+v", master)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/2024-01-03", nil, h)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("day status %d: %s", res.StatusCode, string(data))
	}
	day := decode[AgendaResponse](t, data)
	if len(day.Timed) != 1 || !day.Timed[0].Virtual || *day.Timed[0].ScheduledDate != "2024-01-03" {
		t.Fatalf("expected one virtual occurrence, got %s", string(data))
	}

	for _, title := range []string{"Remote standup", "Remote standup (again)"} {
		res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tasks/"+master.ID+"/occurrences/2024-01-03", map[string]any{"title": title}, h)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("upsert status %d: %s", res.StatusCode, string(data))
		}
		ex := decode[domain.Task](t, data)
		if ex.RecurringParentID == nil || *ex.RecurringParentID != master.ID || *ex.OriginalDate != "2024-01-03" {
			t.Fatalf("unexpected exception %+v", ex)
		}
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?kind=exception", nil, h)
	if rows := decode[[]domain.Task](t, data); res.StatusCode != http.StatusOK || len(rows) != 1 {
		t.Fatalf("expected a single exception row, got %s", string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/2024-01-03", nil, h)
	day = decode[AgendaResponse](t, data)
	if len(day.Timed) != 1 || day.Timed[0].Virtual || day.Timed[0].Title != "Remote standup (again)" {
		t.Fatalf("exception should replace the occurrence, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+master.ID+"/occurrences/2024-01-04", nil, h)
	if res.StatusCode != http.StatusOK || !decode[domain.Task](t, data).Cancelled {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/2024-01-04", nil, h)
	if day = decode[AgendaResponse](t, data); len(day.Timed) != 0 {
		t.Fatalf("cancelled occurrence still shown: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+master.ID+"/toggle?date=2024-01-05", nil, h)
	if res.StatusCode != http.StatusOK || !decode[domain.Task](t, data).Completed {
		t.Fatalf("toggle status %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/2024-01-05", nil, h)
	if day = decode[AgendaResponse](t, data); len(day.Done) != 1 || len(day.Timed) != 0 {
		t.Fatalf("toggled occurrence should be done: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+master.ID, nil, h)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, h)
	if rows := decode[[]domain.Task](t, data); len(rows) != 0 {
		t.Fatalf("exceptions should cascade, got %s", string(data))
	}
}

func TestRecurrenceEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	h := bearer(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":          "Pay rent",
		"scheduled_date": "2024-01-15",
	}, h)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	task := decode[domain.Task](t, data)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tasks/"+task.ID+"/recurrence", map[string]any{"shape": "monthly"}, h)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set recurrence status %d: %s", res.StatusCode, string(data))
	}
	master := decode[domain.Task](t, data)
	if master.RecurrenceRule == nil || *master.RecurrenceRule != "FREQ=MONTHLY;BYMONTHDAY=15" {
		t.Fatalf("unexpected master %+v", master)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/2024-02-15", nil, h)
	if day := decode[AgendaResponse](t, data); len(day.DueToday) != 1 {
		t.Fatalf("expected monthly occurrence: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+task.ID+"/occurrences", map[string]any{"title": "Pay rent (flat)"}, h)
	if res.StatusCode != http.StatusOK || decode[domain.Task](t, data).Title != "Pay rent (flat)" {
		t.Fatalf("update series status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+task.ID+"/recurrence", nil, h)
	if res.StatusCode != http.StatusOK || decode[domain.Task](t, data).RecurrenceRule != nil {
		t.Fatalf("remove recurrence status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/recurrence/options?anchor=2024-01-15", nil, h)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("options status %d: %s", res.StatusCode, string(data))
	}
	opts := decode[RecurrenceOptionsResponse](t, data)
	if len(opts.Options) != 5 || opts.Options[4].Rule != "FREQ=MONTHLY;BYMONTHDAY=15" {
		t.Fatalf("unexpected options %s", string(data))
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	h := bearer(t)
	master := createStandup(t, srv, h)

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/tasks/ghost/occurrences/2024-01-03", map[string]any{}, h)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected not_found, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tasks/"+master.ID+"/occurrences/2023-12-31", map[string]any{}, h)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "bad_request" {
		t.Fatalf("expected bad_request before anchor, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/tomorrow", nil, h)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad date to fail, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/groups", map[string]any{"name": "Bad", "color": "red"}, h)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected invalid color to fail, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/groups/nope", nil, h)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected missing group, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCalendarExport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	h := bearer(t)
	master := createStandup(t, srv, h)
	doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+master.ID+"/occurrences/2024-01-02", nil, h)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/calendar.ics?from=2024-01-01&to=2024-01-03", nil, h)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ics status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if n := strings.Count(string(data), "BEGIN:VEVENT"); n != 2 {
		t.Fatalf("expected 2 events, got %d:\n%s", n, string(data))
	}
	if !strings.Contains(string(data), "UID:"+master.ID+"-2024-01-03@dayplan") {
		t.Fatalf("missing virtual uid:\n%s", string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/calendar.ics?from=2024-01-03&to=2024-01-01", nil, h)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("reversed range should fail, got %d: %s", res.StatusCode, string(data))
	}
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var got []http.Header
	var bodies [][]byte
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, r.Header.Clone())
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t)
	defer cleanup()
	e := srv.Engine
	e.Config.Webhooks = []config.WebhookConfig{{URL: hook.URL, Secret: "s3cret", Events: []string{"task.created"}}}
	d := NewWebhookDispatcher(e)
	ctx := context.Background()
	d.DispatchAll(ctx)

	if _, err := e.CreateGroup(ctx, "Home", "", "tester"); err != nil {
		t.Fatal(err)
	}
	createStandup(t, srv, bearer(t))
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected one filtered delivery, got %d", len(got))
	}
	if got[0].Get("X-Dayplan-Event") != "task.created" {
		t.Fatalf("unexpected event header %q", got[0].Get("X-Dayplan-Event"))
	}
	if sig := got[0].Get(SignatureHeader); sig != Sign("s3cret", bodies[0]) {
		t.Fatalf("bad signature %q", sig)
	}
	evt := decode[webhookEvent](t, bodies[0])
	if evt.EntityKind != "task" || evt.ActorID != "tester" {
		t.Fatalf("unexpected payload %s", string(bodies[0]))
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(data))
	}
	var doc struct {
		Paths      map[string]any `json:"paths"`
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	for _, p := range []string{"/v0/days/{date}", "/v0/tasks/{id}/occurrences/{date}", "/v0/calendar.ics"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
	if _, ok := doc.Components.SecuritySchemes["bearerAuth"]; !ok {
		t.Fatalf("missing bearer scheme")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/v0/openapi.json") {
		t.Fatalf("docs page: %d %s", res.StatusCode, string(data))
	}
}
