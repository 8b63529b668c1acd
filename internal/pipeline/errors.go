package pipeline

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"
)

// Application error types crossing the Temporal boundary.
const (
	ErrTypeStepFailed         = "PipelineStepFailed"
	ErrTypeNotificationFailed = "NotificationFailed"
	ErrTypeOperationFailed    = "OperationFailed"
	ErrTypeInvalidStep        = "InvalidStep"
	ErrTypeInvalidTarget      = "InvalidTarget"
)

// ErrCanceled is the cause of a step that never ran because the run was canceled.
var ErrCanceled = errors.New("run canceled")

// StepError names the step a run failed at.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline failed at step %s: %v", e.Step, e.Err)
}

// Unwrap returns the cause.
func (e *StepError) Unwrap() error {
	return e.Err
}

// NotificationFailedError is returned when an alert callback reports failure.
type NotificationFailedError struct {
	Identifier string
}

func (e *NotificationFailedError) Error() string {
	return fmt.Sprintf("notification %s failed", e.Identifier)
}

// FailedStep returns the step a run failed at. It understands both a
// *StepError and the application error a workflow run fails with.
func FailedStep(err error) (string, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, true
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == ErrTypeStepFailed && appErr.HasDetails() {
		var step string
		if appErr.Details(&step) == nil {
			return step, true
		}
	}
	return "", false
}

// toApplicationError converts a machine failure into the error a workflow
// run fails with. The step name travels as the error's detail.
func toApplicationError(err error) error {
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		return err
	}
	return temporal.NewApplicationErrorWithCause(
		fmt.Sprintf("pipeline failed at step %s", stepErr.Step),
		ErrTypeStepFailed,
		stepErr.Err,
		stepErr.Step,
	)
}
