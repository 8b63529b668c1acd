package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/pipeline"
)

var localTarget dbt.Target

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run a pipeline in-process without Temporal",
	Long: `Run the configured pipeline against one dbt project inside this process.

Retries, alerts and the finalizer behave as on a worker. Interrupting the
command stops the sequence at the next step boundary; the alert and the
finalizer still run. The run report is printed as JSON.`,
	Args: cobra.NoArgs,
	RunE: runLocal,
}

func init() {
	targetFlags(localCmd, &localTarget)
}

func runLocal(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	def, err := a.definition()
	if err != nil {
		return err
	}
	activities, err := a.activities(ctx)
	if err != nil {
		return err
	}
	alerts, err := a.alerts(ctx)
	if err != nil {
		return err
	}
	runner, err := pipeline.NewLocalRunner(def, activities, alerts,
		pipeline.WithLocalLogger(a.logger),
		pipeline.WithLocalMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, localTarget)
	if result != nil {
		if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
			return perr
		}
	}
	if err != nil {
		return reportFailure(err)
	}
	return nil
}
