// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RunFields identifies one pipeline run in log output.
type RunFields struct {
	WorkflowID  string
	RunID       string
	Environment string
	Project     string
}

type runCtxKey struct{}
type stepCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if run, ok := ctx.Value(runCtxKey{}).(RunFields); ok {
		if run.WorkflowID != "" {
			fields = append(fields, zap.String("run.workflow_id", run.WorkflowID))
		}
		if run.RunID != "" {
			fields = append(fields, zap.String("run.id", run.RunID))
		}
		if run.Environment != "" {
			fields = append(fields, zap.String("run.env", run.Environment))
		}
		if run.Project != "" {
			fields = append(fields, zap.String("run.project", run.Project))
		}
	}

	if step := StepFromContext(ctx); step != "" {
		fields = append(fields, zap.String("run.step", step))
	}

	return fields
}

// WithRun attaches run correlation fields to ctx.
func WithRun(ctx context.Context, run RunFields) context.Context {
	return context.WithValue(ctx, runCtxKey{}, run)
}

// RunFromContext returns the run fields stored in ctx, if any.
func RunFromContext(ctx context.Context) (RunFields, bool) {
	run, ok := ctx.Value(runCtxKey{}).(RunFields)
	return run, ok
}

// WithStep attaches the current pipeline step to ctx.
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepCtxKey{}, step)
}

// StepFromContext returns the current pipeline step, or "".
func StepFromContext(ctx context.Context) string {
	s, _ := ctx.Value(stepCtxKey{}).(string)
	return s
}
