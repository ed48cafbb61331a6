package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newScaffoldCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scaffold",
		Short: "Create the project folder layout",
		Long: `Create the configured folder layout under the project root, apply the
configured moves and remove the configured paths.

Scaffolding is idempotent: folders that already exist are left alone.`,
		Example: `  # Create the layout for the current project
  bootstrap scaffold

  # Print the changes as JSON
  bootstrap scaffold --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			a := &app{settings: s, logger: log.Logger}
			scaffolder := a.newScaffolder()
			if scaffolder == nil {
				return errors.New("layout is disabled (layout.enabled: false)")
			}

			log.Info().
				Str("project", s.Project.Root).
				Str("root", s.Layout.Root).
				Msg("Scaffolding project layout")

			result, err := scaffolder.Apply(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, result)
			}

			for _, p := range result.Created {
				fmt.Fprintf(out, "%s created %s\n", successStyle.Render("✓"), p)
			}
			for _, p := range result.Moved {
				fmt.Fprintf(out, "%s moved %s\n", successStyle.Render("✓"), p)
			}
			for _, p := range result.Deleted {
				fmt.Fprintf(out, "%s deleted %s\n", warnStyle.Render("✗"), p)
			}
			if !result.Changed() {
				fmt.Fprintln(out, mutedStyle.Render("layout already up to date"))
			}
			return nil
		},
	}

	return cmd
}
