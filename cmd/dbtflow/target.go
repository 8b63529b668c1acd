package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
)

// targetFlags binds --env, --project and --profile on cmd.
func targetFlags(cmd *cobra.Command, t *dbt.Target) {
	cmd.Flags().StringVar(&t.Environment, "env", "", "dbt target environment (required)")
	cmd.Flags().StringVar(&t.ProjectLocation, "project", "", "dbt project directory (required)")
	cmd.Flags().StringVar(&t.ProfileLocation, "profile", "", "dbt profiles directory")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("project")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
