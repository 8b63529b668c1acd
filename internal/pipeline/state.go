package pipeline

// State is a stage of one run.
type State string

// Run states. A run moves idle, running, succeeded or failed, finalizing, done.
const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
)

// StepReport records one completed main-sequence step.
type StepReport struct {
	Name string `json:"name"`
	// Stored is the operation's result: false when captured artifacts were
	// rejected by the sink.
	Stored bool `json:"stored"`
}

// RunResult is the record of a run that reached StateDone. Outcome is
// StateSucceeded or StateFailed.
type RunResult struct {
	RunID       string       `json:"run_id"`
	State       State        `json:"state"`
	Outcome     State        `json:"outcome"`
	Steps       []StepReport `json:"steps"`
	Transitions []State      `json:"transitions"`

	FailedStep     string `json:"failed_step,omitempty"`
	Error          string `json:"error,omitempty"`
	AlertError     string `json:"alert_error,omitempty"`
	FinalizerError string `json:"finalizer_error,omitempty"`
}
