package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

func newSetupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Run the full project setup",
		Long: `Run the full project setup:
  - Create the folder layout (when enabled)
  - Import the editor assets that are not installed yet
  - Install the packages that are not installed yet

Install failures are reported but do not stop the run. The command exits with
an error only when it is interrupted.`,
		Example: `  # Set up the current project
  bootstrap setup

  # Set up another project with a custom settings file
  bootstrap setup --project ../game --config ../game/bootstrap.yaml

  # Print the run report as JSON
  bootstrap setup --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, "setup")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			a.followProgress(cmd)
			log.Info().Str("project", a.settings.Project.Root).Msg("Running project setup")

			return a.runOnce(ctx, cmd)
		},
	}

	return cmd
}

// followProgress streams install results to the command output unless JSON
// output was requested.
func (a *app) followProgress(cmd *cobra.Command) {
	if jsonOutput {
		return
	}
	a.telemetry.Events.Subscribe(progressPrinter(cmd.OutOrStdout()),
		telemetry.FilterByType(telemetry.EventTypeInstallSucceeded, telemetry.EventTypeInstallFailed))
}

type phaseKind string

const (
	phasePackages phaseKind = "packages"
	phaseAssets   phaseKind = "assets"
)

// newPhaseCommand returns a command that runs a single install phase.
func newPhaseCommand(kind phaseKind) *cobra.Command {
	var short, long string
	switch kind {
	case phasePackages:
		short = "Install the required packages"
		long = `Install the packages listed in the project's resource files that are not
installed yet. Packages are submitted one at a time; a failed package does not
stop the remaining ones.`
	case phaseAssets:
		short = "Import the required editor assets"
		long = `Import the editor assets listed in the project's resource files from the
asset cache. Assets missing from the cache are reported and skipped.`
	}

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: short,
		Long:  long + "\n\nSingle-phase runs are not recorded in the run history.",
		Example: fmt.Sprintf(`  # Run only the %[1]s phase
  bootstrap %[1]s`, kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, string(kind))
			if err != nil {
				return err
			}
			defer a.close(ctx)

			a.followProgress(cmd)

			var phase *engine.PhaseReport
			switch kind {
			case phasePackages:
				phase, err = a.orchestrator.InstallPackages(ctx)
			case phaseAssets:
				phase, err = a.orchestrator.InstallAssets(ctx)
			}
			if phase != nil {
				if jsonOutput {
					if werr := writeJSON(cmd.OutOrStdout(), phase); werr != nil {
						return werr
					}
				} else {
					printPhase(cmd.OutOrStdout(), phase)
				}
			}
			return err
		},
	}

	return cmd
}
