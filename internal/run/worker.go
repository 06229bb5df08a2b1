package run

import (
	"context"
	"log/slog"
	"time"
)

// Processor executes a claimed run.
type Processor interface {
	Process(ctx context.Context, r *Run) error
}

// Worker claims and processes pending runs one at a time, so two runs never
// overlap within a process.
type Worker struct {
	repo         Repository
	processor    Processor
	notify       chan struct{}
	pollInterval time.Duration
	now          func() time.Time
}

func NewWorker(repo Repository, processor Processor) *Worker {
	return &Worker{
		repo:         repo,
		processor:    processor,
		notify:       make(chan struct{}, 1),
		pollInterval: 5 * time.Second,
		now:          time.Now,
	}
}

// Notify wakes the worker to check for pending runs. Non-blocking.
func (w *Worker) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. A run in progress at cancellation is
// left to observe ctx itself.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.recoverStale(ctx)
		w.Drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-w.notify:
		case <-ticker.C:
		}
	}
}

// recoverStale re-queues runs abandoned by a process that died without
// releasing them.
func (w *Worker) recoverStale(ctx context.Context) {
	n, err := w.repo.RecoverStale(ctx, w.now().Add(-StaleAfter))
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("worker: recover stale runs", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("worker: re-queued stale runs", "count", n)
	}
}

// Drain processes pending runs until none are left or ctx is done.
func (w *Worker) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		r, err := w.repo.ClaimPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("worker: claim pending", "error", err)
			return
		}
		if r == nil {
			return
		}

		slog.Info("worker: processing run", "run", r.ID, "trigger", r.Trigger)
		if err := w.processor.Process(ctx, r); err != nil {
			slog.Error("worker: process run", "run", r.ID, "error", err)
		}
	}
}
