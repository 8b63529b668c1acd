package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// WorkflowStarter is the part of client.Client a Starter needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Starter starts runs on a Temporal cluster.
type Starter struct {
	client    WorkflowStarter
	taskQueue string
	metrics   *Metrics
	logger    *logging.Logger
}

// NewStarter returns a Starter submitting to taskQueue.
func NewStarter(c WorkflowStarter, taskQueue string, metrics *Metrics, logger *logging.Logger) *Starter {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Starter{client: c, taskQueue: taskQueue, metrics: metrics, logger: logger.Named("starter")}
}

// WorkflowID returns a fresh id for a run of target.
func WorkflowID(target dbt.Target) string {
	return fmt.Sprintf("dbt-refresh-%s-%s", target.ProjectStem(), uuid.NewString())
}

func (s *Starter) start(ctx context.Context, target dbt.Target) (client.WorkflowRun, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(target),
		TaskQueue: s.taskQueue,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, WorkflowName, target)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}
	s.logger.Info(ctx, "workflow started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("env", target.Environment),
		zap.String("project", target.ProjectLocation),
	)
	return run, nil
}

// Start starts a run and returns its workflow id without waiting.
func (s *Starter) Start(ctx context.Context, target dbt.Target) (string, error) {
	run, err := s.start(ctx, target)
	if err != nil {
		return "", err
	}
	return run.GetID(), nil
}

// Execute starts a run and waits for it. A failed run returns an error that
// FailedStep understands.
func (s *Starter) Execute(ctx context.Context, target dbt.Target) (*RunResult, error) {
	run, err := s.start(ctx, target)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	var result RunResult
	err = run.Get(ctx, &result)
	s.metrics.RecordRun(ctx, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return &result, nil
}
