package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
)

// Builder constructs a Runner with fresh clients for one run. release frees
// them once the run is over.
type Builder func(ctx context.Context) (r *Runner, release func(), err error)

// Processor implements run.Processor on top of a Builder.
type Processor struct {
	runs      run.Repository
	build     Builder
	heartbeat time.Duration
}

type ProcessorOption func(*Processor)

// WithHeartbeat sets how often the ledger row of a run in progress is
// refreshed.
func WithHeartbeat(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.heartbeat = d
		}
	}
}

func NewProcessor(runs run.Repository, build Builder, opts ...ProcessorOption) *Processor {
	p := &Processor{runs: runs, build: build, heartbeat: run.HeartbeatInterval}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process executes a claimed run and records its per-symbol results. A run
// interrupted by ctx goes back to pending so the next trigger picks it up.
func (p *Processor) Process(ctx context.Context, r *run.Run) error {
	runner, release, err := p.build(ctx)
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("build runner: %w", err))
	}
	defer release()

	stop := p.beat(ctx, r.ID)
	report, err := runner.Run(ctx, r.RunDate)
	stop()
	if err != nil {
		p.requeue(ctx, r)
		return err
	}

	if err := p.runs.SaveResults(ctx, r.ID, report.Results); err != nil {
		return p.fail(ctx, r, fmt.Errorf("save results: %w", err))
	}

	r.Status = run.StatusCompleted
	r.Symbols = len(report.Results)
	r.Loaded, r.Skipped = report.Loaded(), report.Skipped()
	r.Results = report.Results
	if err := p.runs.Update(ctx, r); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	slog.Info("run completed", "run", r.ID, "loaded", r.Loaded, "skipped", r.Skipped,
		"took", report.Finished.Sub(report.Started).Round(time.Millisecond))
	return nil
}

// beat refreshes the run's heartbeat until the returned stop is called.
func (p *Processor) beat(ctx context.Context, id int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.runs.Touch(ctx, id); err != nil && ctx.Err() == nil {
					slog.Warn("run heartbeat failed", "run", id, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Processor) requeue(ctx context.Context, r *run.Run) {
	r.Status = run.StatusPending
	if err := p.runs.Update(context.WithoutCancel(ctx), r); err != nil {
		slog.Error("requeue interrupted run", "run", r.ID, "error", err)
		return
	}
	slog.Warn("run interrupted, re-queued", "run", r.ID)
}

func (p *Processor) fail(ctx context.Context, r *run.Run, err error) error {
	r.Status = run.StatusFailed
	r.Error = err.Error()
	if uerr := p.runs.Update(ctx, r); uerr != nil {
		slog.Error("mark run failed", "run", r.ID, "error", uerr)
	}
	return err
}
