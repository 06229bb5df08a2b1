package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/app"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/config"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		out     string
		symbols []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored bars to Parquet files, one per symbol and year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := app.OpenStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			files, err := export.Export(ctx, store, out, config.NormalizeSymbols(symbols))
			if err != nil {
				return err
			}

			var total int
			for _, f := range files {
				total += f.Records
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s records\n", f.Path, humanize.Comma(int64(f.Records)))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %s records to %d files\n", humanize.Comma(int64(total)), len(files))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "export", "Output directory")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to export (default: every stored symbol)")
	return cmd
}
