package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/config"
)

var (
	// Global flags
	configPath string
	projectDir string
	verbose    bool
	jsonOutput bool

	version = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, ver, commit, buildDate string) error {
	version = ver
	rootCmd := newRootCommand(ver, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(ver, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Project dependency bootstrapper",
		Long: `bootstrap prepares a project for development: it creates the standard folder
layout, imports editor assets from the local asset cache and installs the
packages listed in the project's resource files.

Assets are always installed before packages. Identifiers that are already
installed are skipped, and individual install failures never stop a run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", ver, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultSettingsFile, "settings file path")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "project root (overrides project.root)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newScaffoldCommand())
	rootCmd.AddCommand(newSetupCommand())
	rootCmd.AddCommand(newPhaseCommand(phasePackages))
	rootCmd.AddCommand(newPhaseCommand(phaseAssets))
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
