package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/log"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

type notification struct {
	activity   string
	identifier string
	policy     RetryPolicy
	timeout    time.Duration
}

// fakeHost records every call. Steps listed in fail return an error; the
// host reports cancellation once cancelAfter steps have run.
type fakeHost struct {
	fail        map[string]error
	alertErr    map[string]error
	cancelAfter int

	executed      []string
	notifications []notification
}

func (h *fakeHost) ExecuteStep(step string, _ dbt.Target, _ RetryPolicy, _ time.Duration) (bool, error) {
	h.executed = append(h.executed, step)
	if err := h.fail[step]; err != nil {
		return false, err
	}
	return true, nil
}

func (h *fakeHost) Notify(hook AlertHook, id string, policy RetryPolicy, timeout time.Duration) error {
	h.notifications = append(h.notifications, notification{hook.Activity(), id, policy, timeout})
	return h.alertErr[hook.Activity()]
}

func (h *fakeHost) RunID() string { return "run-1" }

func (h *fakeHost) Canceled() bool {
	return h.cancelAfter > 0 && len(h.executed) >= h.cancelAfter
}

func (h *fakeHost) count(step string) int {
	n := 0
	for _, s := range h.executed {
		if s == step {
			n++
		}
	}
	return n
}

var testTarget = dbt.Target{Environment: "dev", ProjectLocation: "./test"}

func nopLogger() log.Logger {
	return logging.NewTemporalAdapter(logging.NewNop())
}

func TestMachine_Success(t *testing.T) {
	host := &fakeHost{}
	result, err := NewMachine(DefaultDefinition(), host, nopLogger()).Run(testTarget)

	require.NoError(t, err)
	assert.Equal(t, []string{"deps", "debug", "test-sources", "run", "test", "clean"}, host.executed)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, StateSucceeded, result.Outcome)
	assert.Equal(t, []State{StateIdle, StateRunning, StateSucceeded, StateFinalizing, StateDone}, result.Transitions)
	assert.Len(t, result.Steps, 5)

	require.Len(t, host.notifications, 1)
	n := host.notifications[0]
	assert.Equal(t, AlertSuccessActivity, n.activity)
	assert.Equal(t, "run-1--test--dev--complete", n.identifier)
	assert.Equal(t, SuccessAlertPolicy, n.policy)
	assert.Equal(t, SuccessAlertTimeout, n.timeout)
}

// The finalizer runs exactly once whichever step fails, the first included.
func TestMachine_FinalizerRunsOnceForEveryFailurePoint(t *testing.T) {
	def := DefaultDefinition()
	for i, failing := range def.Steps {
		t.Run(failing, func(t *testing.T) {
			host := &fakeHost{fail: map[string]error{failing: errors.New("exit 1")}}
			result, err := NewMachine(def, host, nopLogger()).Run(testTarget)

			require.Error(t, err)
			step, ok := FailedStep(err)
			require.True(t, ok)
			assert.Equal(t, failing, step)
			assert.Equal(t, failing, result.FailedStep)
			assert.Equal(t, StateFailed, result.Outcome)
			assert.Equal(t, StateDone, result.State)

			assert.Equal(t, 1, host.count(def.Finalizer))
			assert.Equal(t, def.Finalizer, host.executed[len(host.executed)-1])
			assert.Len(t, host.executed, i+2, "steps after the failure must not run")

			require.Len(t, host.notifications, 1)
			assert.Equal(t, AlertFailureActivity, host.notifications[0].activity)
			assert.Equal(t, "run-1--test--dev--"+failing, host.notifications[0].identifier)
			assert.Equal(t, FailureAlertPolicy, host.notifications[0].policy)
		})
	}
}

func TestMachine_FinalizerFailureAfterSuccess(t *testing.T) {
	host := &fakeHost{fail: map[string]error{"clean": errors.New("permission denied")}}
	result, err := NewMachine(DefaultDefinition(), host, nopLogger()).Run(testTarget)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "clean", stepErr.Step)
	assert.Equal(t, "permission denied", result.FinalizerError)
	assert.Equal(t, StateFailed, result.Outcome)
	require.Len(t, host.notifications, 1)
	assert.Equal(t, AlertSuccessActivity, host.notifications[0].activity)
}

func TestMachine_FinalizerFailureKeepsOriginalFailure(t *testing.T) {
	host := &fakeHost{fail: map[string]error{
		"run":   errors.New("model failed"),
		"clean": errors.New("permission denied"),
	}}
	result, err := NewMachine(DefaultDefinition(), host, nopLogger()).Run(testTarget)

	step, _ := FailedStep(err)
	assert.Equal(t, "run", step)
	assert.Equal(t, "permission denied", result.FinalizerError)
}

func TestMachine_SuccessAlertFailure(t *testing.T) {
	host := &fakeHost{alertErr: map[string]error{AlertSuccessActivity: errors.New("webhook down")}}
	result, err := NewMachine(DefaultDefinition(), host, nopLogger()).Run(testTarget)

	step, ok := FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, StepComplete, step)
	assert.Equal(t, "webhook down", result.AlertError)
	assert.Equal(t, 1, host.count("clean"))
	require.Len(t, host.notifications, 1, "no failure alert follows a failed success alert")
}

func TestMachine_FailureAlertFailureKeepsStep(t *testing.T) {
	host := &fakeHost{
		fail:     map[string]error{"debug": errors.New("no profile")},
		alertErr: map[string]error{AlertFailureActivity: errors.New("webhook down")},
	}
	result, err := NewMachine(DefaultDefinition(), host, nopLogger()).Run(testTarget)

	step, _ := FailedStep(err)
	assert.Equal(t, "debug", step)
	assert.Equal(t, "webhook down", result.AlertError)
	assert.Equal(t, 1, host.count("clean"))
}

func TestMachine_NoAlerts(t *testing.T) {
	def := DefaultDefinition()
	def.Success = NoAlert
	def.Failure = NoAlert

	for _, fail := range []map[string]error{nil, {"deps": errors.New("offline")}} {
		host := &fakeHost{fail: fail}
		_, _ = NewMachine(def, host, nopLogger()).Run(testTarget)

		assert.Empty(t, host.notifications)
		assert.Equal(t, 1, host.count("clean"))
	}
}

func TestMachine_CanceledAtStepBoundary(t *testing.T) {
	host := &fakeHost{cancelAfter: 2}
	result, err := NewMachine(DefaultDefinition(), host, nopLogger()).Run(testTarget)

	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	step, _ := FailedStep(err)
	assert.Equal(t, "test-sources", step, "fails at the step that would have run next")
	assert.Equal(t, []string{"deps", "debug", "clean"}, host.executed)
	require.Len(t, host.notifications, 1)
	assert.Equal(t, "run-1--test--dev--test-sources", host.notifications[0].identifier)
	assert.Equal(t, StateDone, result.State)
}

func TestMachine_StoredFlagRecorded(t *testing.T) {
	host := &storedHost{fakeHost: &fakeHost{}, rejected: "run"}
	result, err := NewMachine(DefaultDefinition(), host, nopLogger()).Run(testTarget)

	require.NoError(t, err)
	for _, report := range result.Steps {
		assert.Equal(t, report.Name != "run", report.Stored, report.Name)
	}
}

type storedHost struct {
	*fakeHost
	rejected string
}

func (h *storedHost) ExecuteStep(step string, target dbt.Target, policy RetryPolicy, timeout time.Duration) (bool, error) {
	ok, err := h.fakeHost.ExecuteStep(step, target, policy, timeout)
	return ok && step != h.rejected, err
}

func TestAlertID(t *testing.T) {
	assert.Equal(t, "wf-1--jaffle--prod--complete", alertID("wf-1", dbt.Target{Environment: "prod", ProjectLocation: "/srv/jaffle"}, StepComplete))
}
