package pipeline

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/operation"
)

// Workflow runs a Definition on Temporal. The definition is fixed when the
// worker starts; each run supplies its own target.
type Workflow struct {
	def Definition
}

// NewWorkflow validates def and returns the workflow.
func NewWorkflow(def Definition) (*Workflow, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Workflow{def: def}, nil
}

// Definition returns the pipeline this workflow runs.
func (w *Workflow) Definition() Definition {
	return w.def
}

// Run executes the pipeline for target.
//
// This workflow:
// 1. Optionally opens a session so every step runs on one worker
// 2. Runs the main steps in order, stopping at the first failure
// 3. Sends the success or failure alert
// 4. Runs the finalizer
func (w *Workflow) Run(ctx workflow.Context, target dbt.Target) (*RunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting dbt refresh",
		"env", target.Environment,
		"project", target.ProjectLocation)

	if err := target.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidTarget, err)
	}

	if w.def.UseSession {
		sessionCtx, err := workflow.CreateSession(ctx, &workflow.SessionOptions{
			CreationTimeout:  SessionCreationTimeout,
			ExecutionTimeout: SessionExecutionTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		defer workflow.CompleteSession(sessionCtx)
		ctx = sessionCtx
	}

	host := &workflowHost{ctx: ctx}
	result, err := NewMachine(w.def, host, logger).Run(target)
	if err != nil {
		logger.Error("dbt refresh failed", "step", result.FailedStep, "error", err)
		return nil, toApplicationError(err)
	}

	logger.Info("dbt refresh completed", "steps", len(result.Steps))
	return result, nil
}

// WorkflowRegistrar is satisfied by worker.Worker and the testsuite environment.
type WorkflowRegistrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
}

// Register registers the workflow under WorkflowName.
func (w *Workflow) Register(r WorkflowRegistrar) {
	r.RegisterWorkflowWithOptions(w.Run, workflow.RegisterOptions{Name: WorkflowName})
}

// workflowHost executes steps as activities. Once the run is canceled, the
// remaining alert and finalizer run on a disconnected context.
type workflowHost struct {
	ctx workflow.Context
}

func (h *workflowHost) RunID() string {
	return workflow.GetInfo(h.ctx).WorkflowExecution.ID
}

func (h *workflowHost) Canceled() bool {
	return h.ctx.Err() != nil
}

func (h *workflowHost) activityContext(policy RetryPolicy, timeout time.Duration) workflow.Context {
	ctx := h.ctx
	if h.Canceled() {
		ctx, _ = workflow.NewDisconnectedContext(ctx)
	}
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: int32(policy.MaxAttempts),
		},
	})
}

func (h *workflowHost) ExecuteStep(step string, target dbt.Target, policy RetryPolicy, timeout time.Duration) (bool, error) {
	spec, err := operation.Lookup(step)
	if err != nil {
		return false, err
	}
	ctx := h.activityContext(policy, timeout)
	var stored bool
	err = workflow.ExecuteActivity(ctx, spec.Activity, target).Get(ctx, &stored)
	return stored, err
}

func (h *workflowHost) Notify(hook AlertHook, identifier string, policy RetryPolicy, timeout time.Duration) error {
	ctx := h.activityContext(policy, timeout)
	return workflow.ExecuteActivity(ctx, hook.Activity(), identifier).Get(ctx, nil)
}
