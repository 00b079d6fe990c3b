package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhduong/docsorter/internal/bootstrap"
	"github.com/mhduong/docsorter/internal/config"
	"github.com/mhduong/docsorter/internal/core/ports"
	"github.com/mhduong/docsorter/internal/observability/logging"
	"github.com/mhduong/docsorter/internal/observability/metrics"
)

// meteredExecutor records run-level and per-document metrics around the
// run manager's execution.
type meteredExecutor struct {
	inner   ports.RunExecutor
	runs    ports.RunStore
	metrics *metrics.WorkerMetrics
}

func (e *meteredExecutor) ExecuteRun(ctx context.Context, runID string) error {
	e.metrics.StartRun()
	start := time.Now()
	err := e.inner.ExecuteRun(ctx, runID)
	e.metrics.FinishRun("worker", time.Since(start), err)

	if rec, readErr := e.runs.ReadStatus(context.WithoutCancel(ctx), runID); readErr == nil && rec.Summary != nil {
		e.metrics.RecordDocuments("worker", "moved", rec.Summary.Moved)
		e.metrics.RecordDocuments("worker", "duplicate", rec.Summary.Duplicates)
		e.metrics.RecordDocuments("worker", "error", rec.Summary.Errors)
	}
	return err
}

var _ ports.RunExecutor = (*meteredExecutor)(nil)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{UseQueueLauncher: true, Logger: logger})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	executor := &meteredExecutor{inner: app.Runs, runs: app.Blob, metrics: workerMetrics}

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	if err := app.Queue.SubscribeRuns(ctx, executor); err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
