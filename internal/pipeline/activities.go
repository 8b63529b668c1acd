package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
	"github.com/fyrsmithlabs/dbtflow/internal/operation"
)

// StepRunner executes one named operation. *operation.Runner implements it.
type StepRunner interface {
	Execute(ctx context.Context, name string, target dbt.Target) (bool, error)
}

// Activities exposes each operation as a Temporal activity.
type Activities struct {
	runner  StepRunner
	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// ActivityOption configures Activities.
type ActivityOption func(*Activities)

// WithActivityLogger sets the logger.
func WithActivityLogger(l *logging.Logger) ActivityOption {
	return func(a *Activities) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the instruments steps are recorded on.
func WithMetrics(m *Metrics) ActivityOption {
	return func(a *Activities) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithTracer sets the tracer step spans are started on.
func WithTracer(t trace.Tracer) ActivityOption {
	return func(a *Activities) {
		if t != nil {
			a.tracer = t
		}
	}
}

// NewActivities returns activities backed by runner.
func NewActivities(runner StepRunner, opts ...ActivityOption) *Activities {
	a := &Activities{runner: runner, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(nil)
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(instrumentationName)
	}
	a.logger = a.logger.Named("activity")
	return a
}

// Run runs "dbt run --fail-fast".
func (a *Activities) Run(ctx context.Context, target dbt.Target) (bool, error) {
	return a.Execute(ctx, operation.Run, target)
}

// DocsGenerate runs "dbt docs generate".
func (a *Activities) DocsGenerate(ctx context.Context, target dbt.Target) (bool, error) {
	return a.Execute(ctx, operation.DocsGenerate, target)
}

// Debug runs "dbt debug".
func (a *Activities) Debug(ctx context.Context, target dbt.Target) (bool, error) {
	return a.Execute(ctx, operation.Debug, target)
}

// Clean runs "dbt clean".
func (a *Activities) Clean(ctx context.Context, target dbt.Target) (bool, error) {
	return a.Execute(ctx, operation.Clean, target)
}

// Deps runs "dbt deps".
func (a *Activities) Deps(ctx context.Context, target dbt.Target) (bool, error) {
	return a.Execute(ctx, operation.Deps, target)
}

// Test runs "dbt test".
func (a *Activities) Test(ctx context.Context, target dbt.Target) (bool, error) {
	return a.Execute(ctx, operation.Test, target)
}

// TestSources runs "dbt test --select source:*".
func (a *Activities) TestSources(ctx context.Context, target dbt.Target) (bool, error) {
	return a.Execute(ctx, operation.TestSources, target)
}

func (a *Activities) byName() map[string]func(context.Context, dbt.Target) (bool, error) {
	return map[string]func(context.Context, dbt.Target) (bool, error){
		operation.Run:          a.Run,
		operation.DocsGenerate: a.DocsGenerate,
		operation.Debug:        a.Debug,
		operation.Clean:        a.Clean,
		operation.Deps:         a.Deps,
		operation.Test:         a.Test,
		operation.TestSources:  a.TestSources,
	}
}

// Execute runs step and converts failures into application errors: invalid
// steps and targets are non-retryable, failed invocations are retryable.
func (a *Activities) Execute(ctx context.Context, step string, target dbt.Target) (bool, error) {
	if activity.IsActivity(ctx) {
		info := activity.GetInfo(ctx)
		ctx = logging.WithRun(ctx, logging.RunFields{
			WorkflowID:  info.WorkflowExecution.ID,
			RunID:       info.WorkflowExecution.RunID,
			Environment: target.Environment,
			Project:     target.ProjectStem(),
		})
	}
	ctx = logging.WithStep(ctx, step)
	ctx, span := a.tracer.Start(ctx, "pipeline.step",
		trace.WithAttributes(
			attribute.String("step", step),
			attribute.String("env", target.Environment),
			attribute.String("project", target.ProjectStem()),
		),
	)
	defer span.End()

	start := time.Now()
	stored, err := a.runner.Execute(ctx, step, target)
	a.metrics.recordStep(ctx, step, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn(ctx, "step attempt failed", zap.Error(err))
		return false, stepActivityError(step, err)
	}
	a.logger.Info(ctx, "step completed", zap.Bool("stored", stored))
	return stored, nil
}

func stepActivityError(step string, err error) error {
	var failed *operation.FailedError
	switch {
	case errors.As(err, &failed):
		return temporal.NewApplicationErrorWithCause(
			fmt.Sprintf("%s exited with code %d", step, failed.ExitCode),
			ErrTypeOperationFailed,
			err,
			failed.ExitCode,
		)
	case errors.Is(err, operation.ErrUnknownOperation):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidStep, err)
	case errors.Is(err, dbt.ErrEmptyField), errors.Is(err, dbt.ErrPathTraversal):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidTarget, err)
	default:
		return err
	}
}

// ActivityRegistrar is satisfied by worker.Worker and the testsuite environments.
type ActivityRegistrar interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register registers every operation under its activity name.
func (a *Activities) Register(r ActivityRegistrar) {
	fns := a.byName()
	for _, spec := range operation.All() {
		r.RegisterActivityWithOptions(fns[spec.Name], activity.RegisterOptions{Name: spec.Activity})
	}
}
