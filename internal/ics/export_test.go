package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"dayplan/internal/domain"
	"dayplan/internal/recurrence"
)

func ptr[T any](v T) *T { return &v }

func fixture() []domain.Task {
	return []domain.Task{
		{ID: "m1", Title: "Standup", ScheduledDate: ptr("2024-01-01"), ScheduledStart: ptr("09:00"), ScheduledEnd: ptr("09:30"), RecurrenceRule: ptr("FREQ=DAILY")},
		{ID: "dentist", Title: "Dentist", ScheduledDate: ptr("2024-01-02"), AllDay: true, Description: "bring forms"},
		{ID: "taxes", Title: "Taxes"},
		{ID: "c1", Cancelled: true, RecurringParentID: ptr("m1"), OriginalDate: ptr("2024-01-03")},
	}
}

func TestExportParsesBack(t *testing.T) {
	from := recurrence.NewDate(2024, time.January, 1)
	days := recurrence.ExpandRange(fixture(), from, from.AddDays(2))
	out := Render(days, Options{Name: "dayplan", Location: time.UTC, Now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, out)
	}
	got := map[string]*ical.VEvent{}
	for _, ev := range cal.Events() {
		got[ev.GetProperty(ical.ComponentPropertyUniqueId).Value] = ev
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d:\n%s", len(got), out)
	}
	for _, uid := range []string{"m1-2024-01-01@dayplan", "m1-2024-01-02@dayplan", "dentist@dayplan"} {
		if got[uid] == nil {
			t.Fatalf("missing %s in\n%s", uid, out)
		}
	}

	start, err := got["m1-2024-01-02@dayplan"].GetStartAt()
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	end, err := got["m1-2024-01-02@dayplan"].GetEndAt()
	if err != nil {
		t.Fatal(err)
	}
	if end.Sub(start) != 30*time.Minute {
		t.Fatalf("unexpected duration %v", end.Sub(start))
	}

	dtstart := got["dentist@dayplan"].GetProperty(ical.ComponentPropertyDtStart)
	if dtstart.Value != "20240102" {
		t.Fatalf("all-day start should be a date, got %q", dtstart.Value)
	}
	if d := got["dentist@dayplan"].GetProperty(ical.ComponentPropertyDescription); d == nil || d.Value != "bring forms" {
		t.Fatalf("description lost: %+v", d)
	}
}

func TestExportUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	from := recurrence.NewDate(2024, time.January, 1)
	days := recurrence.ExpandRange(fixture()[:1], from, from)
	cal := Export(days, Options{Location: loc})
	evs := cal.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if v := evs[0].GetProperty(ical.ComponentPropertyDtStart).Value; v != "20240101T070000Z" {
		t.Fatalf("09:00 at UTC+2 should be 07:00Z, got %s", v)
	}
}

func TestUID(t *testing.T) {
	row := recurrence.Item{Task: domain.Task{ID: "x", ScheduledDate: ptr("2024-05-01")}}
	if UID(row) != "x@dayplan" {
		t.Fatalf("row uid %s", UID(row))
	}
	row.Virtual = true
	if UID(row) != "x-2024-05-01@dayplan" {
		t.Fatalf("virtual uid %s", UID(row))
	}
}

func TestExportLateBlockStaysOnItsDay(t *testing.T) {
	day := recurrence.NewDate(2024, time.January, 2)
	late := []domain.Task{{ID: "late", Title: "Wind down", ScheduledDate: ptr("2024-01-02"), ScheduledStart: ptr("23:45"), ScheduledEnd: ptr("23:59")}}
	cal := Export(recurrence.ExpandRange(late, day, day), Options{Location: time.UTC})
	evs := cal.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	end, err := evs[0].GetEndAt()
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}
}
