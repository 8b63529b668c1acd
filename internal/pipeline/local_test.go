package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
	"github.com/fyrsmithlabs/dbtflow/internal/operation"
	"github.com/fyrsmithlabs/dbtflow/internal/telemetry"
)

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

type countingNotifier struct {
	ok    bool
	calls atomic.Int32
	last  atomic.Value
}

func (n *countingNotifier) Notify(_ context.Context, id string) bool {
	n.calls.Add(1)
	n.last.Store(id)
	return n.ok
}

func newLocal(t *testing.T, fake *fakeDbt, success, failure Notifier, opts ...LocalOption) (*LocalRunner, dbt.Target) {
	t.Helper()
	activities := NewActivities(operation.NewRunner(dbt.NewWrapper(fake, nil)))
	alerts := NewAlertActivities(success, failure, nil, nil)
	r, err := NewLocalRunner(DefaultDefinition(), activities, alerts, append([]LocalOption{WithBackOff(zeroBackOff)}, opts...)...)
	require.NoError(t, err)
	return r, dbt.Target{Environment: "dev", ProjectLocation: filepath.Join(t.TempDir(), "test")}
}

func TestLocalRunner_Success(t *testing.T) {
	success := &countingNotifier{ok: true}
	r, target := newLocal(t, newFakeDbt(), success, nil)

	result, err := r.Run(context.Background(), target)

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, result.Outcome)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, int32(1), success.calls.Load())
	assert.Equal(t, result.RunID+"--test--dev--complete", success.last.Load())
}

func TestLocalRunner_RetriesFailingStep(t *testing.T) {
	fake := newFakeDbt("debug")
	failure := &countingNotifier{ok: true}
	r, target := newLocal(t, fake, nil, failure)

	result, err := r.Run(context.Background(), target)

	step, ok := FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, "debug", step)
	assert.Equal(t, DefaultMaxAttempts, fake.count("debug"))
	assert.Equal(t, 1, fake.count("clean"))
	assert.Equal(t, int32(1), failure.calls.Load())
	assert.Equal(t, StateFailed, result.Outcome)

	var failed *operation.FailedError
	assert.ErrorAs(t, err, &failed)
}

func TestLocalRunner_AlertRetries(t *testing.T) {
	t.Run("success alert", func(t *testing.T) {
		success := &countingNotifier{ok: false}
		fake := newFakeDbt()
		r, target := newLocal(t, fake, success, nil)

		_, err := r.Run(context.Background(), target)

		step, _ := FailedStep(err)
		assert.Equal(t, StepComplete, step)
		assert.Equal(t, int32(SuccessAlertPolicy.MaxAttempts), success.calls.Load())
		assert.Equal(t, 1, fake.count("clean"))

		var notifyErr *NotificationFailedError
		assert.ErrorAs(t, err, &notifyErr)
	})

	t.Run("failure alert", func(t *testing.T) {
		failure := &countingNotifier{ok: false}
		fake := newFakeDbt("deps")
		r, target := newLocal(t, fake, nil, failure)

		result, err := r.Run(context.Background(), target)

		step, _ := FailedStep(err)
		assert.Equal(t, "deps", step)
		assert.Equal(t, int32(FailureAlertPolicy.MaxAttempts), failure.calls.Load())
		assert.NotEmpty(t, result.AlertError)
		assert.Equal(t, 1, fake.count("clean"))
	})
}

func TestLocalRunner_Canceled(t *testing.T) {
	fake := newFakeDbt()
	failure := &countingNotifier{ok: true}
	r, target := newLocal(t, fake, nil, failure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := r.Run(ctx, target)

	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Equal(t, "deps", result.FailedStep)
	assert.Equal(t, 0, fake.count("deps"))
	assert.Equal(t, 1, fake.count("clean"), "cleanup runs after cancellation")
	assert.Equal(t, int32(1), failure.calls.Load())
}

func TestLocalRunner_InvalidTarget(t *testing.T) {
	fake := newFakeDbt()
	r, _ := newLocal(t, fake, nil, nil)

	_, err := r.Run(context.Background(), dbt.Target{ProjectLocation: "p"})

	assert.ErrorIs(t, err, dbt.ErrEmptyField)
	assert.Equal(t, 0, fake.count("clean"))
}

func TestLocalRunner_RecordsRunMetrics(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	r, target := newLocal(t, newFakeDbt("test"), nil, nil, WithLocalMetrics(NewMetrics(tel.Meter("test"))))

	_, err := r.Run(context.Background(), target)
	require.Error(t, err)

	runs, ok := tel.Sum(t, "dbtflow.pipeline.runs")
	require.True(t, ok)
	assert.Equal(t, int64(1), runs)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	h := &LocalHost{ctx: context.Background(), newBackOff: zeroBackOff, logger: logging.NewNop()}
	calls := 0

	_, err := retry(h, "deps", RetryPolicy{MaxAttempts: 5}, time.Second, func(context.Context) (bool, error) {
		calls++
		return false, temporal.NewNonRetryableApplicationError("bad step", ErrTypeInvalidStep, nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_AttemptTimeout(t *testing.T) {
	h := &LocalHost{ctx: context.Background(), newBackOff: zeroBackOff, logger: logging.NewNop()}
	calls := 0

	_, err := retry(h, "run", RetryPolicy{MaxAttempts: 2}, 10*time.Millisecond, func(ctx context.Context) (bool, error) {
		calls++
		<-ctx.Done()
		return false, ctx.Err()
	})

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 2, calls)
}

func TestLocalHost_UnknownAlert(t *testing.T) {
	h := &LocalHost{ctx: context.Background(), newBackOff: zeroBackOff, logger: logging.NewNop()}
	err := h.Notify(ActivityAlert("alert_pager"), "id", SuccessAlertPolicy, time.Second)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}
