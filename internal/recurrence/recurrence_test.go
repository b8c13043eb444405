package recurrence_test

import (
	"errors"
	"testing"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/recurrence"
)

func ptr[T any](v T) *T { return &v }

func mustDate(t *testing.T, s string) recurrence.Date {
	t.Helper()
	d, err := recurrence.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func master(id, anchor, rule string) domain.Task {
	return domain.Task{ID: id, Title: "Standup", ScheduledDate: ptr(anchor), RecurrenceRule: ptr(rule)}
}

func TestEncodeDescribe(t *testing.T) {
	anchor := recurrence.NewDate(2024, time.January, 1) // Monday
	cases := []struct {
		shape recurrence.Shape
		rule  string
		label string
	}{
		{recurrence.ShapeDaily, "FREQ=DAILY", "Daily"},
		{recurrence.ShapeWeekdays, "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", "Weekdays"},
		{recurrence.ShapeWeekly, "FREQ=WEEKLY;BYDAY=MO", "Weekly on Monday"},
		{recurrence.ShapeMonthly, "FREQ=MONTHLY;BYMONTHDAY=1", "Monthly on the 1st"},
	}
	for _, tc := range cases {
		rule, err := recurrence.Encode(tc.shape, anchor)
		if err != nil {
			t.Fatalf("encode %s: %v", tc.shape, err)
		}
		if rule != tc.rule {
			t.Fatalf("encode %s: got %q want %q", tc.shape, rule, tc.rule)
		}
		if got := recurrence.Describe(rule); got != tc.label {
			t.Fatalf("describe %q: got %q want %q", rule, got, tc.label)
		}
		parsed, err := recurrence.Parse(rule)
		if err != nil {
			t.Fatalf("parse %q: %v", rule, err)
		}
		if parsed.String() != rule {
			t.Fatalf("re-encode %q: got %q", rule, parsed.String())
		}
	}
	if rule, err := recurrence.Encode(recurrence.ShapeNone, anchor); err != nil || rule != "" {
		t.Fatalf("none should encode to empty, got %q %v", rule, err)
	}
	if _, err := recurrence.Encode(recurrence.ShapeWeekly, recurrence.Date{}); err == nil {
		t.Fatalf("weekly without anchor should fail")
	}
}

func TestEncodeAcrossAnchors(t *testing.T) {
	cases := map[string]string{
		"2024-01-03": "Weekly on Wednesday",
		"2024-03-17": "Weekly on Sunday",
		"2024-06-22": "Weekly on Saturday",
	}
	for anchor, want := range cases {
		rule, err := recurrence.Encode(recurrence.ShapeWeekly, mustDate(t, anchor))
		if err != nil {
			t.Fatal(err)
		}
		if got := recurrence.Describe(rule); got != want {
			t.Fatalf("%s: got %q want %q", anchor, got, want)
		}
	}
}

func TestDescribeCustomAndCase(t *testing.T) {
	custom := []string{"", "FREQ=YEARLY", "FREQ=DAILY;INTERVAL=2", "FREQ=WEEKLY;BYDAY=MO;COUNT=3", "garbage", "FREQ=MONTHLY;BYDAY=2MO", "FREQ=WEEKLY;BYDAY=MO,WE"}
	for _, rule := range custom {
		if got := recurrence.Describe(rule); got != recurrence.CustomLabel {
			t.Fatalf("%q: got %q want Custom", rule, got)
		}
	}
	if got := recurrence.Describe("freq=weekly;byday=fr"); got != "Weekly on Friday" {
		t.Fatalf("lowercase rule: got %q", got)
	}
	if got := recurrence.Describe("RRULE:FREQ=DAILY"); got != "Daily" {
		t.Fatalf("prefixed rule: got %q", got)
	}
	if _, err := recurrence.Parse("FREQ=YEARLY"); !errors.Is(err, recurrence.ErrUnsupportedRule) {
		t.Fatalf("expected ErrUnsupportedRule, got %v", err)
	}
}

func TestOrdinal(t *testing.T) {
	cases := map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th", 21: "21st", 22: "22nd", 23: "23rd", 31: "31st"}
	for n, want := range cases {
		if got := recurrence.Ordinal(n); got != want {
			t.Fatalf("ordinal %d: got %q want %q", n, got, want)
		}
	}
}

func TestOccursNeverBeforeAnchor(t *testing.T) {
	rules := []string{"FREQ=DAILY", "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", "FREQ=WEEKLY;BYDAY=MO", "FREQ=MONTHLY;BYMONTHDAY=1"}
	anchor := mustDate(t, "2024-01-01")
	for _, rule := range rules {
		m := master("m1", anchor.String(), rule)
		for i := 1; i <= 400; i++ {
			if recurrence.Occurs(m, anchor.AddDays(-i)) {
				t.Fatalf("%s occurred %d days before anchor", rule, i)
			}
		}
		if !recurrence.Occurs(m, anchor) {
			t.Fatalf("%s should occur on its anchor", rule)
		}
	}
}

func TestOccursPeriodicity(t *testing.T) {
	d := mustDate(t, "2024-01-01")
	daily := master("m1", d.String(), "FREQ=DAILY")
	for _, off := range []int{0, 1, 7} {
		if !recurrence.Occurs(daily, d.AddDays(off)) {
			t.Fatalf("daily should occur at D+%d", off)
		}
	}
	if recurrence.Occurs(daily, d.AddDays(-1)) {
		t.Fatalf("daily should not occur at D-1")
	}

	weekly := master("m2", d.String(), "FREQ=WEEKLY;BYDAY=MO")
	for i := -1; i < 28; i++ {
		day := d.AddDays(i)
		want := i >= 0 && day.Weekday() == time.Monday
		if got := recurrence.Occurs(weekly, day); got != want {
			t.Fatalf("weekly on %s (%s): got %v want %v", day, day.Weekday(), got, want)
		}
	}

	weekdays := master("m3", d.String(), "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR")
	if !recurrence.Occurs(weekdays, mustDate(t, "2024-01-05")) || recurrence.Occurs(weekdays, mustDate(t, "2024-01-06")) {
		t.Fatalf("weekdays should include Friday and skip Saturday")
	}
}

func TestOccursMonthlySkipsShortMonths(t *testing.T) {
	m := master("m1", "2024-01-31", "FREQ=MONTHLY;BYMONTHDAY=31")
	if recurrence.Occurs(m, mustDate(t, "2024-02-29")) {
		t.Fatalf("no clamping to the end of February")
	}
	if recurrence.Occurs(m, mustDate(t, "2024-04-30")) {
		t.Fatalf("no clamping to the end of April")
	}
	if !recurrence.Occurs(m, mustDate(t, "2024-03-31")) {
		t.Fatalf("expected occurrence on March 31")
	}
}

func TestOccursDegradesOnBadInput(t *testing.T) {
	day := mustDate(t, "2024-01-05")
	cases := []domain.Task{
		{ID: "no-rule", ScheduledDate: ptr("2024-01-01")},
		{ID: "no-anchor", RecurrenceRule: ptr("FREQ=DAILY")},
		master("bad-rule", "2024-01-01", "FREQ=SOMETIMES"),
		master("bad-anchor", "01/01/2024", "FREQ=DAILY"),
	}
	for _, m := range cases {
		if recurrence.Occurs(m, day) {
			t.Fatalf("%s should never occur", m.ID)
		}
	}
}

func TestExpandRegularPassthrough(t *testing.T) {
	regular := []domain.Task{
		{ID: "a", Title: "backlog"},
		{ID: "b", Title: "other day", ScheduledDate: ptr("2023-12-01"), Completed: true},
	}
	for _, day := range []string{"2024-01-01", "1999-12-31"} {
		out := recurrence.Expand(regular, mustDate(t, day))
		if len(out) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(out))
		}
		for i, it := range out {
			if it.Virtual || it.ID != regular[i].ID || it.Completed != regular[i].Completed {
				t.Fatalf("regular row changed: %+v", it)
			}
		}
	}
}

func TestExpandScenarios(t *testing.T) {
	m1 := master("m1", "2024-01-01", "FREQ=DAILY")
	m1.Completed = true
	day := mustDate(t, "2024-01-05")

	// A: virtual occurrence
	out := recurrence.Expand([]domain.Task{m1}, day)
	if len(out) != 1 {
		t.Fatalf("A: expected 1 row, got %d", len(out))
	}
	v := out[0]
	if !v.Virtual || *v.ScheduledDate != "2024-01-05" || v.Title != "Standup" || v.Completed || v.ID != "m1" {
		t.Fatalf("A: unexpected virtual %+v", v)
	}
	if *m1.ScheduledDate != "2024-01-01" {
		t.Fatalf("A: master anchor mutated")
	}

	// B: exception wins
	e1 := domain.Task{ID: "e1", RecurringParentID: ptr("m1"), OriginalDate: ptr("2024-01-05"), ScheduledDate: ptr("2024-01-05"), Title: "Standup (holiday skip)"}
	out = recurrence.Expand([]domain.Task{m1, e1}, day)
	if len(out) != 1 || out[0].ID != "e1" || out[0].Virtual {
		t.Fatalf("B: expected exactly e1, got %+v", out)
	}

	// C: cancellation suppresses
	c1 := domain.Task{ID: "c1", RecurringParentID: ptr("m1"), OriginalDate: ptr("2024-01-05"), Cancelled: true}
	if out = recurrence.Expand([]domain.Task{m1, c1}, day); len(out) != 0 {
		t.Fatalf("C: expected nothing, got %+v", out)
	}

	// D: weekly Monday
	w := master("m1", "2024-01-01", "FREQ=WEEKLY;BYDAY=MO")
	if out = recurrence.Expand([]domain.Task{w}, mustDate(t, "2024-01-02")); len(out) != 0 {
		t.Fatalf("D: Tuesday should be empty, got %+v", out)
	}
	if out = recurrence.Expand([]domain.Task{w}, mustDate(t, "2024-01-08")); len(out) != 1 || !out[0].Virtual {
		t.Fatalf("D: Monday should have one virtual, got %+v", out)
	}
}

func TestExpandOrphansAndNonOccurringDates(t *testing.T) {
	orphan := domain.Task{ID: "o1", RecurringParentID: ptr("gone"), OriginalDate: ptr("2024-01-05"), ScheduledDate: ptr("2024-01-05")}
	if out := recurrence.Expand([]domain.Task{orphan}, mustDate(t, "2024-01-05")); len(out) != 0 {
		t.Fatalf("orphan exception surfaced: %+v", out)
	}

	// exception keyed to a Tuesday of a Monday series is unreachable
	w := master("m1", "2024-01-01", "FREQ=WEEKLY;BYDAY=MO")
	stray := domain.Task{ID: "e1", RecurringParentID: ptr("m1"), OriginalDate: ptr("2024-01-02"), ScheduledDate: ptr("2024-01-02")}
	if out := recurrence.Expand([]domain.Task{w, stray}, mustDate(t, "2024-01-02")); len(out) != 0 {
		t.Fatalf("expected nothing for non-occurring date, got %+v", out)
	}
}

func TestExpandMovedException(t *testing.T) {
	// an override moved to another day still surfaces under its original date
	m := master("m1", "2024-01-01", "FREQ=DAILY")
	moved := domain.Task{ID: "e1", RecurringParentID: ptr("m1"), OriginalDate: ptr("2024-01-05"), ScheduledDate: ptr("2024-01-06")}
	out := recurrence.Expand([]domain.Task{m, moved}, mustDate(t, "2024-01-05"))
	if len(out) != 1 || out[0].ID != "e1" {
		t.Fatalf("expected e1, got %+v", out)
	}
	agenda := recurrence.Sections(out, mustDate(t, "2024-01-05"))
	if n := len(agenda.DueToday) + len(agenda.Timed) + len(agenda.AllDay) + len(agenda.Done); n != 0 {
		t.Fatalf("moved exception should not be placed on its original day")
	}
}

func TestExpandRange(t *testing.T) {
	tasks := []domain.Task{
		master("m1", "2024-01-01", "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR"),
		{ID: "c1", RecurringParentID: ptr("m1"), OriginalDate: ptr("2024-01-03"), Cancelled: true},
	}
	days := recurrence.ExpandRange(tasks, mustDate(t, "2024-01-01"), mustDate(t, "2024-01-07"))
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	want := map[string]int{"2024-01-01": 1, "2024-01-02": 1, "2024-01-03": 0, "2024-01-04": 1, "2024-01-05": 1, "2024-01-06": 0, "2024-01-07": 0}
	for _, d := range days {
		if len(d.Items) != want[d.Date] {
			t.Fatalf("%s: got %d items want %d", d.Date, len(d.Items), want[d.Date])
		}
	}
	if recurrence.ExpandRange(tasks, mustDate(t, "2024-01-07"), mustDate(t, "2024-01-01")) != nil {
		t.Fatalf("reversed range should be empty")
	}
}

func TestSections(t *testing.T) {
	day := "2024-01-05"
	items := []recurrence.Item{
		{Task: domain.Task{ID: "late", ScheduledDate: ptr(day), ScheduledStart: ptr("14:00"), ScheduledEnd: ptr("15:00")}},
		{Task: domain.Task{ID: "early", ScheduledDate: ptr(day), ScheduledStart: ptr("09:00"), ScheduledEnd: ptr("09:30")}},
		{Task: domain.Task{ID: "strip", ScheduledDate: ptr(day), AllDay: true}},
		{Task: domain.Task{ID: "due", ScheduledDate: ptr(day)}},
		{Task: domain.Task{ID: "done", ScheduledDate: ptr(day), Completed: true}},
		{Task: domain.Task{ID: "backlog"}},
		{Task: domain.Task{ID: "tomorrow", ScheduledDate: ptr("2024-01-06")}},
	}
	a := recurrence.Sections(items, mustDate(t, day))
	if len(a.Timed) != 2 || a.Timed[0].ID != "early" || a.Timed[1].ID != "late" {
		t.Fatalf("timed order wrong: %+v", a.Timed)
	}
	if len(a.AllDay) != 1 || a.AllDay[0].ID != "strip" {
		t.Fatalf("all-day wrong: %+v", a.AllDay)
	}
	if len(a.DueToday) != 1 || a.DueToday[0].ID != "due" {
		t.Fatalf("due today wrong: %+v", a.DueToday)
	}
	if len(a.Done) != 1 || a.Done[0].ID != "done" {
		t.Fatalf("done wrong: %+v", a.Done)
	}
}

func TestWeekStart(t *testing.T) {
	d := mustDate(t, "2024-01-03") // Wednesday
	if got := recurrence.WeekStart(d, time.Monday).String(); got != "2024-01-01" {
		t.Fatalf("monday start: %s", got)
	}
	if got := recurrence.WeekStart(d, time.Sunday).String(); got != "2023-12-31" {
		t.Fatalf("sunday start: %s", got)
	}
	sun := mustDate(t, "2024-01-07")
	if got := recurrence.WeekStart(sun, time.Monday).String(); got != "2024-01-01" {
		t.Fatalf("sunday in monday week: %s", got)
	}
}

func TestClockHelpers(t *testing.T) {
	if m, err := recurrence.TimeToMinutes("09:30"); err != nil || m != 570 {
		t.Fatalf("09:30: %d %v", m, err)
	}
	for _, bad := range []string{"9", "24:00", "12:60", "ab:cd", "12:5"} {
		if _, err := recurrence.TimeToMinutes(bad); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
	if got := recurrence.MinutesToTime(1440 + 75); got != "01:15" {
		t.Fatalf("wrap: %s", got)
	}
	if got := recurrence.MinutesToTime(-30); got != "23:30" {
		t.Fatalf("negative wrap: %s", got)
	}
	for in, want := range map[int]string{45: "45m", 180: "3h", 90: "1h30m", 0: ""} {
		if got := recurrence.FormatEstimate(in); got != want {
			t.Fatalf("estimate %d: got %q want %q", in, got, want)
		}
	}
	if end, err := recurrence.EndFor("09:00", 45); err != nil || end != "09:45" {
		t.Fatalf("end for: %s %v", end, err)
	}
	if end, err := recurrence.EndFor("23:45", 30); err != nil || end != "23:59" {
		t.Fatalf("end for late start should clamp: %s %v", end, err)
	}
	if _, err := recurrence.EndFor("23:59", 30); err == nil {
		t.Fatalf("expected error for a start at the last minute")
	}
}

func TestOptions(t *testing.T) {
	opts := recurrence.Options(mustDate(t, "2024-01-22"))
	if len(opts) != 5 {
		t.Fatalf("expected 5 options, got %d", len(opts))
	}
	if opts[3].Label != "Weekly on Monday" || opts[4].Label != "Monthly on the 22nd" {
		t.Fatalf("unexpected labels: %+v", opts)
	}
	if opts[0].Rule != "" || opts[0].Label != "None" {
		t.Fatalf("none option wrong: %+v", opts[0])
	}
}
