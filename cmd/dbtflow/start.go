package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/pipeline"
)

var (
	startTarget dbt.Target
	startWait   bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Submit a pipeline run to the Temporal cluster",
	Long: `Submit a refresh run for one dbt project to the configured task queue.

Examples:
  # Fire and forget
  dbtflow start --env dev --project /dbt/warehouse

  # Wait for the outcome and print the run report
  dbtflow start --env prod --project /dbt/warehouse --profile /dbt/profiles --wait`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	targetFlags(startCmd, &startTarget)
	startCmd.Flags().BoolVar(&startWait, "wait", false, "wait for the run to finish")
}

func runStart(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.dial(ctx)
	if err != nil {
		return err
	}
	starter := pipeline.NewStarter(c, a.cfg.Temporal.TaskQueue, a.metrics, a.logger)

	if !startWait {
		id, err := starter.Start(ctx, startTarget)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}

	result, err := starter.Execute(ctx, startTarget)
	if err != nil {
		a.logger.Error(ctx, "pipeline run failed", zap.Error(err))
		return reportFailure(err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}
