// Package digest runs the daily agenda digest on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "dayplan/internal/log"
	"dayplan/internal/recurrence"
)

// ActorID attributes digest events.
const ActorID = "digest"

// Digester builds and records the agenda of one date.
type Digester interface {
	Digest(ctx context.Context, date, actorID string) (recurrence.Agenda, error)
}

// Scheduler wraps the cron runner for the digest job.
type Scheduler struct {
	cron     *cron.Cron
	loc      *time.Location
	digester Digester
	Now      func() time.Time
}

func New(d Digester, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		loc:      loc,
		digester: d,
		Now:      time.Now,
	}
}

// ScheduleDaily registers the digest at the given HH:MM.
func (s *Scheduler) ScheduleDaily(at string) (cron.EntryID, error) {
	spec, err := DailySpec(at)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			appLog.Error("digest failed", err)
		}
	})
}

// RunOnce digests today's agenda in the scheduler's location.
func (s *Scheduler) RunOnce(ctx context.Context) (recurrence.Agenda, error) {
	today := recurrence.DateOf(s.Now().In(s.loc)).String()
	a, err := s.digester.Digest(ctx, today, ActorID)
	if err != nil {
		return a, fmt.Errorf("digest %s: %w", today, err)
	}
	appLog.Info("digest recorded", "date", today, "timed", len(a.Timed), "all_day", len(a.AllDay), "due_today", len(a.DueToday), "done", len(a.Done))
	return a, nil
}

// Next reports when the registered job fires next.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// DailySpec turns HH:MM into a seconds-field cron spec.
func DailySpec(at string) (string, error) {
	minutes, err := recurrence.TimeToMinutes(at)
	if err != nil {
		return "", fmt.Errorf("invalid digest time %q, expected HH:MM", at)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minutes%60, minutes/60), nil
}
