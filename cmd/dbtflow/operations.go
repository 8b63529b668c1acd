package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dbtflow/internal/operation"
)

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List the dbt operations a pipeline can run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCOMMAND\tACTIVITY\tCAPTURES ARTIFACTS")
		for _, spec := range operation.All() {
			fmt.Fprintf(tw, "%s\tdbt %s\t%s\t%t\n", spec.Name, strings.Join(spec.Command, " "), spec.Activity, spec.HonorsPreventWrites)
		}
		return tw.Flush()
	},
}
