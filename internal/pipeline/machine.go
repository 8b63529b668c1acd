package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
)

// Host executes steps and alerts on behalf of a Machine. Retries, timeouts and
// cancellation all belong to the host.
type Host interface {
	// ExecuteStep runs the named operation under policy. The bool is the
	// operation's own result; an error means the step failed after retries.
	ExecuteStep(step string, target dbt.Target, policy RetryPolicy, timeout time.Duration) (bool, error)
	// Notify dispatches an enabled alert hook.
	Notify(hook AlertHook, identifier string, policy RetryPolicy, timeout time.Duration) error
	// RunID correlates alerts of one run.
	RunID() string
	// Canceled reports whether the run has been asked to stop.
	Canceled() bool
}

// Machine sequences one run. It is not safe for concurrent use; build one per run.
type Machine struct {
	def    Definition
	host   Host
	logger log.Logger
	result *RunResult
}

// NewMachine returns a machine in StateIdle.
func NewMachine(def Definition, host Host, logger log.Logger) *Machine {
	return &Machine{
		def:    def,
		host:   host,
		logger: logger,
		result: &RunResult{State: StateIdle, Transitions: []State{StateIdle}},
	}
}

// Run drives target through the main sequence, the matching alert and the
// finalizer, and always ends in StateDone. A failed run returns the result
// together with a *StepError.
func (m *Machine) Run(target dbt.Target) (*RunResult, error) {
	m.result.RunID = m.host.RunID()
	m.enter(StateRunning)

	runErr := m.runSteps(target)

	if runErr == nil {
		m.enter(StateSucceeded)
		id := alertID(m.result.RunID, target, StepComplete)
		if err := m.notify(m.def.Success, id, SuccessAlertPolicy, SuccessAlertTimeout); err != nil {
			m.logger.Error("Success alert failed", "identifier", id, "error", err)
			m.result.AlertError = err.Error()
			runErr = &StepError{Step: StepComplete, Err: err}
		}
	} else {
		m.enter(StateFailed)
		step, _ := FailedStep(runErr)
		id := alertID(m.result.RunID, target, step)
		if err := m.notify(m.def.Failure, id, FailureAlertPolicy, FailureAlertTimeout); err != nil {
			m.logger.Error("Failure alert failed", "identifier", id, "error", err)
			m.result.AlertError = err.Error()
		}
	}

	m.enter(StateFinalizing)
	if _, err := m.host.ExecuteStep(m.def.Finalizer, target, m.def.Retry, m.def.StepTimeout); err != nil {
		m.logger.Error("Finalizer failed", "step", m.def.Finalizer, "error", err)
		m.result.FinalizerError = err.Error()
		if runErr == nil {
			runErr = &StepError{Step: m.def.Finalizer, Err: err}
		}
	}

	m.enter(StateDone)
	m.result.Outcome = StateSucceeded
	if runErr != nil {
		m.result.Outcome = StateFailed
		m.result.FailedStep, _ = FailedStep(runErr)
		m.result.Error = runErr.Error()
		return m.result, runErr
	}
	return m.result, nil
}

func (m *Machine) runSteps(target dbt.Target) error {
	for _, step := range m.def.Steps {
		if m.host.Canceled() {
			m.logger.Warn("Run canceled before step", "step", step)
			return &StepError{Step: step, Err: ErrCanceled}
		}
		m.logger.Info("Running step", "step", step)
		stored, err := m.host.ExecuteStep(step, target, m.def.Retry, m.def.StepTimeout)
		if err != nil {
			m.logger.Error("Step failed", "step", step, "error", err)
			return &StepError{Step: step, Err: err}
		}
		m.result.Steps = append(m.result.Steps, StepReport{Name: step, Stored: stored})
	}
	return nil
}

func (m *Machine) notify(hook AlertHook, id string, policy RetryPolicy, timeout time.Duration) error {
	if !hook.Enabled() {
		return nil
	}
	return m.host.Notify(hook, id, policy, timeout)
}

func (m *Machine) enter(s State) {
	m.result.State = s
	m.result.Transitions = append(m.result.Transitions, s)
}

// alertID is "{runID}--{projectStem}--{env}--{step}".
func alertID(runID string, target dbt.Target, step string) string {
	return strings.Join([]string{runID, target.ProjectStem(), target.Environment, step}, "--")
}

// IsCanceled reports whether err stems from a canceled run.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) || temporal.IsCanceledError(err)
}
