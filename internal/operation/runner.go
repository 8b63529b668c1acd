package operation

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// Invoker runs one dbt command. *dbt.Wrapper implements it.
type Invoker interface {
	Invoke(ctx context.Context, target dbt.Target, command []string, preventWrites bool) dbt.Result
}

// Runner executes named operations. It never retries.
type Runner struct {
	invoker       Invoker
	sink          Sink
	preventWrites bool
	logger        *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets where captured artifacts go.
func WithSink(s Sink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithPreventWrites keeps artifacts of run and docs-generate off disk.
func WithPreventWrites(enabled bool) Option {
	return func(r *Runner) { r.preventWrites = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner returns a Runner backed by invoker.
func NewRunner(invoker Invoker, opts ...Option) *Runner {
	r := &Runner{invoker: invoker, sink: NopSink{}, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("operation")
	return r
}

// Execute runs the named operation against target.
//
// A non-zero exit returns *FailedError. On success, an operation that honors
// prevent-writes hands its artifacts to the sink when prevent-writes is on and
// returns the sink's verdict; every other success returns true.
func (r *Runner) Execute(ctx context.Context, name string, target dbt.Target) (bool, error) {
	spec, err := Lookup(name)
	if err != nil {
		return false, err
	}
	if err := target.Validate(); err != nil {
		return false, err
	}

	id := Identifier(target.Environment, spec.Name, target.ProjectLocation)
	capture := spec.HonorsPreventWrites && r.preventWrites

	r.logger.Info(ctx, "running operation", zap.String("operation", spec.Name), zap.String("identifier", id))
	result := r.invoker.Invoke(ctx, target, spec.Command, capture)

	if !result.Succeeded() {
		r.logger.Error(ctx, "operation failed",
			zap.String("identifier", id),
			zap.Int("exit_code", result.ExitCode),
			zap.String("log", result.Log),
		)
		return false, &FailedError{
			Operation:  spec.Name,
			Identifier: id,
			ExitCode:   result.ExitCode,
			Log:        result.Log,
		}
	}

	if !capture {
		return true, nil
	}
	stored := r.store(ctx, id, result.Artifacts)
	if !stored {
		r.logger.Warn(ctx, "artifact sink rejected artifacts",
			zap.String("identifier", id),
			zap.Int("artifacts", len(result.Artifacts)),
		)
	}
	return stored, nil
}

// store hands artifacts to the sink. A panicking sink counts as a rejection.
func (r *Runner) store(ctx context.Context, id string, artifacts map[string]dbt.Artifact) (stored bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(ctx, "artifact sink panicked",
				zap.String("identifier", id),
				zap.Any("panic", p),
			)
			stored = false
		}
	}()
	return r.sink.Store(ctx, id, artifacts)
}
