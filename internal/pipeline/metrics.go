package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/dbtflow/internal/pipeline"

// Metrics holds the pipeline instruments.
type Metrics struct {
	runs         metric.Int64Counter
	runDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram
	stepErrors   metric.Int64Counter
	alerts       metric.Int64Counter
}

// NewMetrics creates the pipeline instruments on meter. A nil meter uses the
// global provider.
func NewMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	m := &Metrics{}
	var err error

	// Run counters
	m.runs, err = meter.Int64Counter(
		"dbtflow.pipeline.runs",
		metric.WithDescription("Total number of pipeline runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create run counter: %v", err))
	}

	m.runDuration, err = meter.Float64Histogram(
		"dbtflow.pipeline.run.duration",
		metric.WithDescription("Duration of pipeline runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create run duration: %v", err))
	}

	// Step instruments, recorded by activities
	m.stepDuration, err = meter.Float64Histogram(
		"dbtflow.pipeline.step.duration",
		metric.WithDescription("Duration of pipeline step executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create step duration: %v", err))
	}

	m.stepErrors, err = meter.Int64Counter(
		"dbtflow.pipeline.step.errors",
		metric.WithDescription("Number of failed step executions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create step error counter: %v", err))
	}

	m.alerts, err = meter.Int64Counter(
		"dbtflow.pipeline.alerts",
		metric.WithDescription("Number of alert dispatches by kind and outcome"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create alert counter: %v", err))
	}

	return m
}

// RecordRun records a finished run and its outcome.
func (m *Metrics) RecordRun(ctx context.Context, err error, elapsed time.Duration) {
	status := "succeeded"
	failedStep, _ := FailedStep(err)
	if err != nil {
		status = "failed"
	}
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("failed_step", failedStep),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) recordStep(ctx context.Context, step string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("step", step))
	m.stepDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.stepErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) recordAlert(ctx context.Context, kind string, delivered bool) {
	m.alerts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("delivered", delivered),
	))
}
