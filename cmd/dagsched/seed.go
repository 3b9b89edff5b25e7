package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/definition"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Register the DAGs of a YAML or JSON seed file; existing dag_ids are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := definition.NewParser().ParseFile(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			n, err := definition.Seed(ctx, a.svc, defs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d dag(s) from %s\n", n, args[0])
			return nil
		})
	},
}
