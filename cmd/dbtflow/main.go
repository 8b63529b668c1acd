// Package main implements dbtflow, which runs dbt refresh pipelines on a
// Temporal worker or in-process.
//
// Usage:
//
//	dbtflow worker --config /etc/dbtflow/config.yaml
//	dbtflow start --env dev --project /dbt/warehouse --wait
//	dbtflow local --env dev --project /dbt/warehouse
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML file loaded by every command.
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbtflow",
	Short: "Durable dbt pipeline orchestrator",
	Long: `dbtflow runs an ordered sequence of dbt operations against a project,
retrying failed steps, sending success or failure alerts and always cleaning up.

Runs execute on a Temporal worker, or in-process with the local command.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/dbtflow/config.yaml)")
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(operationsCmd)
}
