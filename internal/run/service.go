package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/apperror"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

const defaultListLimit = 50

type Service struct {
	repo   Repository
	now    func() time.Time
	notify func() // optional: wake the worker
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetNotify sets a callback invoked when a new pending run is created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

// Enqueue creates a pending run for the request's run date. If a run for
// that date is already pending or running, it is returned instead.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Run, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	runDate := req.RunDate
	if runDate.IsZero() {
		runDate = s.now()
	}
	runDate = bar.Day(runDate)

	active, err := s.repo.FindActive(ctx, runDate)
	if err != nil {
		return nil, false, fmt.Errorf("find active run: %w", err)
	}
	if active != nil {
		return active, false, nil
	}

	r := &Run{Trigger: req.Trigger, RunDate: runDate, Status: StatusPending}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, false, fmt.Errorf("create run: %w", err)
	}
	slog.Info("queued run", "run", r.ID, "trigger", r.Trigger, "runDate", runDate.Format(bar.DateFormat))

	if s.notify != nil {
		s.notify()
	}
	return r, true, nil
}

// Start creates a run for the request's date and claims it for the caller,
// bypassing the worker queue. An existing run for that date is taken over
// when it is still pending or its owner stopped heartbeating; a run with a
// live owner is a conflict.
func (s *Service) Start(ctx context.Context, req EnqueueRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runDate := req.RunDate
	if runDate.IsZero() {
		runDate = s.now()
	}
	runDate = bar.Day(runDate)

	active, err := s.repo.FindActive(ctx, runDate)
	if err != nil {
		return nil, fmt.Errorf("find active run: %w", err)
	}

	if active == nil {
		r := &Run{Trigger: req.Trigger, RunDate: runDate, Status: StatusRunning}
		if err := s.repo.Create(ctx, r); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		slog.Info("started run", "run", r.ID, "trigger", r.Trigger, "runDate", runDate.Format(bar.DateFormat))
		return r, nil
	}

	ok, err := s.repo.TakeOver(ctx, active.ID, s.now().Add(-StaleAfter))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.Conflict,
			fmt.Sprintf("run %d for %s is already %s", active.ID, runDate.Format(bar.DateFormat), active.Status))
	}
	slog.Warn("took over run", "run", active.ID, "previousStatus", active.Status,
		"runDate", runDate.Format(bar.DateFormat))
	return s.repo.Get(ctx, active.ID)
}

// RecoverStaleRuns re-queues running runs whose owner stopped heartbeating.
func (s *Service) RecoverStaleRuns(ctx context.Context) error {
	n, err := s.repo.RecoverStale(ctx, s.now().Add(-StaleAfter))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("re-queued interrupted runs", "count", n)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, req GetRunRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, req ListRunsRequest) ([]Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}
	return s.repo.List(ctx, req.Status, req.Limit)
}
