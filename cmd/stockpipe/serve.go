package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/app"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/pipeline"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/scheduler"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		port       string
		schedule   string
		noSchedule bool
		runOnStart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and run the pipeline on a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				cfg.Server.Port = port
			}
			if schedule != "" {
				cfg.Pipeline.Schedule = schedule
			}
			if noSchedule {
				cfg.Pipeline.Schedule = ""
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, runOnStart)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "HTTP port (overrides PORT)")
	cmd.Flags().StringVar(&schedule, "schedule", "", `Cron schedule for pipeline runs, e.g. "@daily" (overrides SCHEDULE)`)
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Disable scheduled runs")
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Queue a run for today as soon as the server starts")
	return cmd
}

func serve(ctx context.Context, runOnStart bool) error {
	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ledger, err := app.OpenLedger(cfg.Store.LedgerPath)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	barSvc := bar.NewService(store, cfg.Pipeline.Symbols, cfg.Server.CacheTTL)
	runSvc := run.NewService(ledger)

	// Runs in this process refresh the dashboard cache as each symbol lands.
	proc := pipeline.NewProcessor(ledger, app.RunnerBuilder(cfg, barSvc.Invalidate))
	worker := run.NewWorker(ledger, proc)
	runSvc.SetNotify(worker.Notify)

	if err := runSvc.RecoverStaleRuns(ctx); err != nil {
		slog.Error("failed to recover stale runs", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	enqueue := func(ctx context.Context) error {
		_, _, err := runSvc.Enqueue(ctx, run.EnqueueRequest{Trigger: run.TriggerSchedule})
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Pipeline.Schedule != "" {
		sched, err = scheduler.New(gctx, cfg.Pipeline.Schedule, enqueue)
		if err != nil {
			return err
		}
	}

	srv := server.New(gctx, cfg.Server.Port, barSvc, runSvc)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if sched != nil {
		sched.Start()
		g.Go(func() error {
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	switch {
	case runOnStart && sched != nil:
		sched.RunNow()
	case runOnStart:
		if err := enqueue(gctx); err != nil {
			slog.Error("enqueue startup run", "error", err)
		}
	}

	worker.Notify()
	slog.Info("server started", "port", cfg.Server.Port, "store", store.Backend,
		"archive", cfg.Archive.Backend, "symbols", cfg.Pipeline.Symbols)

	err = g.Wait()
	slog.Info("server stopped")
	return err
}
