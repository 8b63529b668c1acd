// Package pipeline runs an ordered sequence of dbt operations against one
// target, with per-step retries, alerts on success or failure, and a cleanup
// step that runs exactly once whatever happened before it.
//
// The sequencing lives in Machine, which is driven through a Host. The
// Temporal workflow and the in-process LocalHost are the two hosts.
package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/operation"
)

// Names registered on the worker.
const (
	WorkflowName         = "DbtRefreshWorkflow"
	AlertSuccessActivity = "alert_success"
	AlertFailureActivity = "alert_failure"
)

// StepComplete is the step id carried by success alerts.
const StepComplete = "complete"

// Default policies.
const (
	DefaultMaxAttempts = 3
	DefaultStepTimeout = 10 * time.Minute

	SessionCreationTimeout  = time.Minute
	SessionExecutionTimeout = 60 * time.Minute
)

// Alert policies. Failure alerts get more room than success alerts.
var (
	SuccessAlertPolicy  = RetryPolicy{MaxAttempts: 3}
	SuccessAlertTimeout = 30 * time.Second
	FailureAlertPolicy  = RetryPolicy{MaxAttempts: 5}
	FailureAlertTimeout = 60 * time.Second
)

// ErrInvalidDefinition is returned by Definition.Validate.
var ErrInvalidDefinition = errors.New("invalid pipeline definition")

// RetryPolicy bounds how often the host runs one step.
type RetryPolicy struct {
	MaxAttempts int
}

// AlertHook is either NoAlert or an alert dispatched through the host as the
// named activity.
type AlertHook struct {
	activity string
}

// NoAlert disables an alert.
var NoAlert = AlertHook{}

// ActivityAlert dispatches an alert through the named activity.
func ActivityAlert(name string) AlertHook {
	return AlertHook{activity: name}
}

// Enabled reports whether the hook does anything.
func (h AlertHook) Enabled() bool { return h.activity != "" }

// Activity returns the activity name, empty for NoAlert.
func (h AlertHook) Activity() string { return h.activity }

// Definition is one pipeline: built once per worker and reused for every run.
type Definition struct {
	// Steps are operation names run in order.
	Steps []string
	// Finalizer runs once after the main sequence and alerts.
	Finalizer   string
	Retry       RetryPolicy
	StepTimeout time.Duration
	Success     AlertHook
	Failure     AlertHook
	// UseSession pins every activity of a run to one worker.
	UseSession bool
}

// DefaultDefinition returns deps, debug, test-sources, run and test with clean
// as finalizer and both alerts enabled.
func DefaultDefinition() Definition {
	return Definition{
		Steps: []string{
			operation.Deps,
			operation.Debug,
			operation.TestSources,
			operation.Run,
			operation.Test,
		},
		Finalizer:   operation.Clean,
		Retry:       RetryPolicy{MaxAttempts: DefaultMaxAttempts},
		StepTimeout: DefaultStepTimeout,
		Success:     ActivityAlert(AlertSuccessActivity),
		Failure:     ActivityAlert(AlertFailureActivity),
	}
}

// DefinitionFromConfig builds a validated definition from the pipeline
// section of the configuration. Unset fields keep their defaults. An alert
// list of exactly [none] disables that alert.
func DefinitionFromConfig(cfg config.PipelineConfig, alerts config.AlertsConfig) (Definition, error) {
	def := DefaultDefinition()
	if len(cfg.Steps) > 0 {
		def.Steps = slices.Clone(cfg.Steps)
	}
	if cfg.Finalizer != "" {
		def.Finalizer = cfg.Finalizer
	}
	if cfg.MaxAttempts != 0 {
		def.Retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.StepTimeout != 0 {
		def.StepTimeout = cfg.StepTimeout.Duration()
	}
	def.UseSession = cfg.UseSession
	if config.Disabled(alerts.Success) {
		def.Success = NoAlert
	}
	if config.Disabled(alerts.Failure) {
		def.Failure = NoAlert
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks that every step is a known operation and the policies are usable.
func (d Definition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidDefinition)
	}
	for _, step := range d.Steps {
		if _, err := operation.Lookup(step); err != nil {
			return fmt.Errorf("%w: step: %w", ErrInvalidDefinition, err)
		}
		if step == d.Finalizer {
			return fmt.Errorf("%w: finalizer %q is also a main step", ErrInvalidDefinition, step)
		}
	}
	if _, err := operation.Lookup(d.Finalizer); err != nil {
		return fmt.Errorf("%w: finalizer: %w", ErrInvalidDefinition, err)
	}
	if d.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidDefinition)
	}
	if d.StepTimeout <= 0 {
		return fmt.Errorf("%w: step timeout must be positive", ErrInvalidDefinition)
	}
	for _, hook := range []AlertHook{d.Success, d.Failure} {
		switch hook.activity {
		case "", AlertSuccessActivity, AlertFailureActivity:
		default:
			return fmt.Errorf("%w: unknown alert activity %q", ErrInvalidDefinition, hook.activity)
		}
	}
	return nil
}
