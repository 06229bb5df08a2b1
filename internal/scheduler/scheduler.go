// Package scheduler triggers pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule matches a once-a-day run at midnight UTC.
const DefaultSchedule = "@daily"

// Scheduler calls enqueue on every tick of its schedule. Ticks are never
// caught up: a tick missed while the process was down is skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	expr     string
	enqueue  func(ctx context.Context) error
	ctx      context.Context
}

// New parses expr (standard five-field cron or a descriptor like @daily) in
// UTC. ctx is passed to every enqueue call.
func New(ctx context.Context, expr string, enqueue func(ctx context.Context) error) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}

	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedule: schedule,
		expr:     expr,
		enqueue:  enqueue,
		ctx:      ctx,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.tick))
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "schedule", s.expr, "next", s.Next(time.Now()))
}

// Stop halts the schedule and waits for a running tick to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.UTC())
}

// RunNow triggers a run outside the schedule.
func (s *Scheduler) RunNow() {
	s.tick()
}

func (s *Scheduler) tick() {
	slog.Info("scheduled run triggered", "schedule", s.expr)
	if err := s.enqueue(s.ctx); err != nil {
		slog.Error("enqueue scheduled run", "error", err)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
