package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/skincare-rag/internal/bootstrap"
	"github.com/kirillkom/skincare-rag/internal/config"
	"github.com/kirillkom/skincare-rag/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var datasetPath string
	cmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Embed the skincare dataset and upsert it into Qdrant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if datasetPath != "" {
				cfg.DatasetPath = datasetPath
			}
			logger := logging.NewJSONLoggerTo(os.Stderr, "ingest", cfg.LogLevel)
			slog.SetDefault(logger)

			app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Logger: logger})
			if err != nil {
				logger.Error("bootstrap_failed", "error", err)
				return err
			}
			defer app.Close()

			count, err := app.Ingest.IngestDataset(cmd.Context(), cfg.DatasetPath)
			if err != nil {
				logger.Error("ingest_failed", "dataset", cfg.DatasetPath, "error", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents into %s\n", count, cfg.QdrantCollection)
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset JSON path (default: DATASET_PATH)")
	return cmd
}
