package commands

import (
	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what setup would install",
		Long: `Read the resource lists, query what is already installed and evaluate
policies, then print which identifiers setup would submit. Nothing is
installed.`,
		Example: `  # Show the plan for the current project
  bootstrap plan

  # Show the plan as JSON
  bootstrap plan --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, "plan")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			plan, err := a.orchestrator.Plan(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}

	return cmd
}
