package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/config"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/platform/logger"
)

var (
	configFile string
	logLevel   string
	cfg        *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stockpipe",
		Short:         "Daily equity bar pipeline and dashboard API",
		Long:          `stockpipe fetches daily bars from Polygon.io, archives the raw responses and upserts them into the bar store. It also serves a JSON API over the stored records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if logLevel != "" {
				loaded.Log.Level = logLevel
			}
			cfg = loaded
			slog.SetDefault(logger.New(cfg.Log.Level, cfg.Log.Format))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(), newServeCmd(), newExportCmd(), newConfigCmd())
	return root
}
