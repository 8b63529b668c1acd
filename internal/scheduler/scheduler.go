// Package scheduler starts pipeline runs for configured targets on a fixed
// interval.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// Starter begins a pipeline run and returns its run ID without waiting for it.
type Starter interface {
	Start(ctx context.Context, target dbt.Target) (string, error)
}

// Scheduler wraps a gocron scheduler. Each target gets one job; a run that is
// still being started when the next tick fires is skipped.
type Scheduler struct {
	scheduler gocron.Scheduler
	starter   Starter
	logger    *logging.Logger
}

// New creates a stopped scheduler. logger may be nil.
func New(starter Starter, logger *logging.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{scheduler: s, starter: starter, logger: logger.Named("scheduler")}, nil
}

// Add schedules target every interval, firing once immediately after Start.
// It returns the job ID.
func (s *Scheduler) Add(ctx context.Context, target dbt.Target, every time.Duration) (string, error) {
	if err := target.Validate(); err != nil {
		return "", fmt.Errorf("invalid scheduled target: %w", err)
	}
	if every <= 0 {
		return "", fmt.Errorf("%w: schedule interval must be positive", config.ErrInvalidConfig)
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(s.trigger, target),
		gocron.WithName(target.Environment+"/"+dbt.Stem(target.ProjectLocation)),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create scheduled refresh: %w", err)
	}
	return job.ID().String(), nil
}

// AddAll schedules every configured target.
func (s *Scheduler) AddAll(ctx context.Context, cfg config.ScheduleConfig) error {
	for _, st := range cfg.Targets {
		target := dbt.Target{
			Environment:     st.Env,
			ProjectLocation: st.ProjectLocation,
			ProfileLocation: st.ProfileLocation,
		}
		if _, err := s.Add(ctx, target, st.Every.Duration()); err != nil {
			return err
		}
	}
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info(ctx, "starting scheduler", zap.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info(ctx, "stopping scheduler")
	return s.scheduler.Shutdown()
}

// trigger is called by gocron on every tick.
func (s *Scheduler) trigger(ctx context.Context, target dbt.Target) {
	id, err := s.starter.Start(ctx, target)
	if err != nil {
		s.logger.Error(ctx, "failed to start scheduled pipeline run",
			zap.String("env", target.Environment),
			zap.String("project_location", target.ProjectLocation),
			zap.Error(err),
		)
		return
	}
	s.logger.Info(ctx, "started scheduled pipeline run",
		zap.String("run_id", id),
		zap.String("env", target.Environment),
		zap.String("project_location", target.ProjectLocation),
	)
}
