package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/app"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/config"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/pipeline"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
)

func newRunCmd() *cobra.Command {
	var (
		date    string
		symbols []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once over the configured symbols",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var runDate time.Time
			if date != "" {
				d, err := time.Parse(bar.DateFormat, date)
				if err != nil {
					return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
				}
				runDate = d
			}
			if len(symbols) > 0 {
				cfg.Pipeline.Symbols = config.NormalizeSymbols(symbols)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, cmd.OutOrStdout(), runDate)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Run date (YYYY-MM-DD), defaults to today in UTC")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Override the configured symbols")
	return cmd
}

func runOnce(ctx context.Context, out io.Writer, runDate time.Time) error {
	ledger, err := app.OpenLedger(cfg.Store.LedgerPath)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	r, err := run.NewService(ledger).Start(ctx, run.EnqueueRequest{Trigger: run.TriggerCLI, RunDate: runDate})
	if err != nil {
		return err
	}

	proc := pipeline.NewProcessor(ledger, app.RunnerBuilder(cfg, nil))
	if err := proc.Process(ctx, r); err != nil {
		return fmt.Errorf("run %d: %w", r.ID, err)
	}

	printRun(out, r)
	return nil
}

func printRun(out io.Writer, r *run.Run) {
	_, _ = fmt.Fprintf(out, "run %d (%s): %d loaded, %d skipped\n\n",
		r.ID, r.RunDate.Format(bar.DateFormat), r.Loaded, r.Skipped)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SYMBOL\tSTATUS\tINSERTED\tMODIFIED\tDROPPED\tARCHIVE\tREASON")
	for _, res := range r.Results {
		archived := "-"
		if res.Archived {
			archived = res.ArchiveKey
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			res.Symbol, res.Status,
			humanize.Comma(res.Upsert.Inserted), humanize.Comma(res.Upsert.Modified),
			res.Dropped, archived, res.Reason)
	}
	_ = tw.Flush()
}
