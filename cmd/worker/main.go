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

	"github.com/kirillkom/skincare-rag/internal/bootstrap"
	"github.com/kirillkom/skincare-rag/internal/config"
	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/observability/logging"
	"github.com/kirillkom/skincare-rag/internal/observability/metrics"
)

const runTimeout = 30 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:             logger,
		WithQueue:          true,
		WithDatabase:       true,
		EvaluationObserver: workerMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSEvalSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeEvaluationRequested(ctx, func(handlerCtx context.Context, req domain.EvaluationRequest) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, runTimeout)
		defer cancel()

		workerMetrics.StartRun()
		if !req.RequestedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(req.RequestedAt))
		}
		reports, err := app.Harness.RunRequest(runCtx, req)
		workerMetrics.FinishRun(err)
		logger.Info("evaluation_run_finished",
			"run_id", req.RunID,
			"modes_completed", len(reports),
			"modes_requested", len(req.Modes),
			"failed", err != nil,
		)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
