package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"dayplan/internal/recurrence"
)

type fakeDigester struct {
	dates  []string
	actors []string
	err    error
}

func (f *fakeDigester) Digest(_ context.Context, date, actorID string) (recurrence.Agenda, error) {
	f.dates = append(f.dates, date)
	f.actors = append(f.actors, actorID)
	return recurrence.Agenda{Date: date}, f.err
}

func TestDailySpec(t *testing.T) {
	cases := map[string]string{
		"07:00": "0 0 7 * * *",
		"23:59": "0 59 23 * * *",
		"00:05": "0 5 0 * * *",
	}
	for in, want := range cases {
		got, err := DailySpec(in)
		if err != nil || got != want {
			t.Fatalf("DailySpec(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "7", "24:00", "07:60", "7:5"} {
		if _, err := DailySpec(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRunOnceUsesLocalDate(t *testing.T) {
	d := &fakeDigester{}
	loc := time.FixedZone("UTC-5", -5*60*60)
	s := New(d, loc)
	// 03:00 UTC on the 2nd is still the 1st at UTC-5.
	s.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC) }
	a, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a.Date != "2024-01-01" || d.dates[0] != "2024-01-01" || d.actors[0] != ActorID {
		t.Fatalf("unexpected digest call %+v %v %v", a, d.dates, d.actors)
	}
}

func TestRunOnceWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := New(&fakeDigester{err: boom}, time.UTC)
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestScheduleDaily(t *testing.T) {
	s := New(&fakeDigester{}, time.UTC)
	id, err := s.ScheduleDaily("07:30")
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()
	next := s.Next(id)
	if next.IsZero() || next.Hour() != 7 || next.Minute() != 30 {
		t.Fatalf("unexpected next run %v", next)
	}
	if _, err := s.ScheduleDaily("7pm"); err == nil {
		t.Fatal("expected invalid time error")
	}
}
