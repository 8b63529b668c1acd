package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dbtflow/internal/pipeline"
	"github.com/fyrsmithlabs/dbtflow/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Start runs for schedule.targets on their intervals",
	Long: `Submit a run for every entry in schedule.targets immediately and then every
interval, until interrupted. A tick is skipped while the previous submission
for the same target is still in flight.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Schedule.Targets) == 0 {
		return errors.New("schedule.targets is empty")
	}
	c, err := a.dial(ctx)
	if err != nil {
		return err
	}

	s, err := scheduler.New(pipeline.NewStarter(c, a.cfg.Temporal.TaskQueue, a.metrics, a.logger), a.logger)
	if err != nil {
		return err
	}
	if err := s.AddAll(ctx, a.cfg.Schedule); err != nil {
		return err
	}
	s.Start(ctx)
	<-ctx.Done()
	return s.Stop(ctx)
}
