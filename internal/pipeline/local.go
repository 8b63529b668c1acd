package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// LocalHost runs steps in-process, retrying with exponential backoff.
type LocalHost struct {
	ctx        context.Context
	runID      string
	activities *Activities
	alerts     *AlertActivities
	newBackOff func() backoff.BackOff
	logger     *logging.Logger
}

func (h *LocalHost) RunID() string { return h.runID }

func (h *LocalHost) Canceled() bool { return h.ctx.Err() != nil }

// context returns the run context, detached from cancellation once the run
// has been canceled so the alert and finalizer still get to run.
func (h *LocalHost) context() context.Context {
	if h.Canceled() {
		return context.WithoutCancel(h.ctx)
	}
	return h.ctx
}

func (h *LocalHost) ExecuteStep(step string, target dbt.Target, policy RetryPolicy, timeout time.Duration) (bool, error) {
	return retry(h, step, policy, timeout, func(ctx context.Context) (bool, error) {
		return h.activities.Execute(ctx, step, target)
	})
}

func (h *LocalHost) Notify(hook AlertHook, identifier string, policy RetryPolicy, timeout time.Duration) error {
	var notify func(context.Context, string) error
	switch hook.Activity() {
	case AlertSuccessActivity:
		notify = h.alerts.NotifySuccess
	case AlertFailureActivity:
		notify = h.alerts.NotifyFailure
	default:
		return fmt.Errorf("%w: unknown alert activity %q", ErrInvalidDefinition, hook.Activity())
	}
	_, err := retry(h, hook.Activity(), policy, timeout, func(ctx context.Context) (bool, error) {
		return true, notify(ctx, identifier)
	})
	return err
}

// retry runs fn at most policy.MaxAttempts times, each attempt bounded by timeout.
func retry(h *LocalHost, name string, policy RetryPolicy, timeout time.Duration, fn func(context.Context) (bool, error)) (bool, error) {
	ctx := h.context()
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(h.newBackOff(), uint64(attempts-1)), ctx)

	attempt := 0
	op := func() (bool, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err := fn(attemptCtx)
		if err != nil && isNonRetryable(err) {
			return false, backoff.Permanent(err)
		}
		return ok, err
	}
	notify := func(err error, wait time.Duration) {
		h.logger.Warn(ctx, "attempt failed, retrying",
			zap.String("name", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotifyWithData(op, b, notify)
}

func isNonRetryable(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.NonRetryable()
}

// LocalRunner runs a Definition without a Temporal server.
type LocalRunner struct {
	def        Definition
	activities *Activities
	alerts     *AlertActivities
	metrics    *Metrics
	logger     *logging.Logger
	newBackOff func() backoff.BackOff
}

// LocalOption configures a LocalRunner.
type LocalOption func(*LocalRunner)

// WithBackOff sets the retry schedule. Each step gets a fresh BackOff.
func WithBackOff(f func() backoff.BackOff) LocalOption {
	return func(r *LocalRunner) { r.newBackOff = f }
}

// WithLocalLogger sets the logger.
func WithLocalLogger(l *logging.Logger) LocalOption {
	return func(r *LocalRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLocalMetrics sets where run metrics are recorded.
func WithLocalMetrics(m *Metrics) LocalOption {
	return func(r *LocalRunner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewLocalRunner validates def and returns a runner.
func NewLocalRunner(def Definition, activities *Activities, alerts *AlertActivities, opts ...LocalOption) (*LocalRunner, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	r := &LocalRunner{
		def:        def,
		activities: activities,
		alerts:     alerts,
		logger:     logging.NewNop(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.Multiplier = 2
			b.MaxInterval = 100 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r, nil
}

// Run executes one run for target. Canceling ctx stops the main sequence at
// the next step boundary; the alert and finalizer still run.
func (r *LocalRunner) Run(ctx context.Context, target dbt.Target) (*RunResult, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRun(ctx, logging.RunFields{
		RunID:       runID,
		Environment: target.Environment,
		Project:     target.ProjectStem(),
	})
	logger := r.logger.Named("local")

	host := &LocalHost{
		ctx:        ctx,
		runID:      runID,
		activities: r.activities,
		alerts:     r.alerts,
		newBackOff: r.newBackOff,
		logger:     logger,
	}

	start := time.Now()
	result, err := NewMachine(r.def, host, logging.NewTemporalAdapter(logger)).Run(target)
	r.metrics.RecordRun(context.WithoutCancel(ctx), err, time.Since(start))
	return result, err
}
