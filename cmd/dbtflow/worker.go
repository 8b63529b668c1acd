package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/dbtflow/internal/http"
	"github.com/fyrsmithlabs/dbtflow/internal/pipeline"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker executing dbt pipelines",
	Long: `Run a Temporal worker that registers the refresh workflow, one activity per
dbt operation and the two alert activities on the configured task queue.

When metrics.enabled is set, /health, /metrics and POST /api/v1/runs are served
on metrics.addr.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	def, err := a.definition()
	if err != nil {
		return err
	}
	wf, err := pipeline.NewWorkflow(def)
	if err != nil {
		return err
	}
	activities, err := a.activities(ctx)
	if err != nil {
		return err
	}
	alerts, err := a.alerts(ctx)
	if err != nil {
		return err
	}
	c, err := a.dial(ctx)
	if err != nil {
		return err
	}

	taskQueue := a.cfg.Temporal.TaskQueue
	w := worker.New(c, taskQueue, worker.Options{EnableSessionWorker: def.UseSession})
	wf.Register(w)
	activities.Register(w)
	alerts.Register(w)

	a.logger.Info(ctx, "worker configured",
		zap.String("task_queue", taskQueue),
		zap.Strings("steps", def.Steps),
		zap.String("finalizer", def.Finalizer),
		zap.Int("max_attempts", def.Retry.MaxAttempts),
		zap.Bool("prevent_writes", a.cfg.Pipeline.PreventWrites),
	)

	errs := make(chan error, 2)
	var srv *httpserver.Server
	if a.cfg.Metrics.Enabled {
		starter := pipeline.NewStarter(c, taskQueue, a.metrics, a.logger)
		srv = httpserver.NewServer(a.cfg.Metrics, starter, httpserver.NewHTTPMetrics(a.telemetry.Meter(instrumentationName)), a.logger)
		go func() { errs <- srv.Start(ctx) }()
	}

	if err := w.Start(); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}
	defer w.Stop()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info(ctx, "shutdown signal received")
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(ctx, "http server shutdown error", zap.Error(err))
		}
	}
	a.logger.Info(ctx, "worker stopped gracefully")
	return nil
}
