package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/stores"
)

func newInitCommand() *cobra.Command {
	var (
		force     bool
		manifest  bool
		script    bool
		withStore bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project for bootstrapping",
		Long: `Write a settings file and starter resource lists into the project.

The settings file is only written when it does not exist yet (or --force is
given). The packages and editor-assets lists are created in the resources
directory; --manifest and --script add a CUE manifest and a Starlark script.`,
		Example: `  # Initialize the current directory
  bootstrap init

  # Initialize another project, including a CUE manifest
  bootstrap init --project ../game --manifest

  # Reset settings and templates to the defaults
  bootstrap init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			log.Info().
				Str("config", configPath).
				Bool("force", force).
				Msg("Initializing project")

			_, statErr := os.Stat(configPath)
			exists := statErr == nil
			if exists && !force {
				fmt.Fprintf(out, "%s Settings already exist: %s\n", mutedStyle.Render("-"), configPath)
			} else {
				s := config.DefaultSettings()
				if projectDir != "" {
					s.Project.Root = projectDir
				}
				if manifest {
					s.Sources.Manifest = s.Project.ResourcesDir + "/" + config.TemplateManifest
				}
				if script {
					s.Sources.Script = s.Project.ResourcesDir + "/" + config.TemplateScript
				}
				if err := config.SaveSettings(configPath, s); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s Wrote settings: %s\n", successStyle.Render("✓"), configPath)
			}

			s, err := loadSettings()
			if err != nil {
				return err
			}

			names := []string{config.TemplatePackages, config.TemplateAssets}
			if manifest {
				names = append(names, config.TemplateManifest)
			}
			if script {
				names = append(names, config.TemplateScript)
			}

			result, err := config.WriteTemplates(s.ProjectPath(s.Project.ResourcesDir), force, names...)
			if err != nil {
				return err
			}
			for _, p := range result.Written {
				fmt.Fprintf(out, "%s Created %s\n", successStyle.Render("✓"), p)
			}
			for _, p := range result.Skipped {
				fmt.Fprintf(out, "%s Kept existing %s\n", mutedStyle.Render("-"), p)
			}

			if withStore && s.Store.Enabled {
				path := s.ProjectPath(s.Store.Path)
				store, err := stores.Open(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("failed to initialize history store: %w", err)
				}
				if err := store.Close(); err != nil {
					return fmt.Errorf("failed to close history store: %w", err)
				}
				fmt.Fprintf(out, "%s Initialized history store: %s\n", successStyle.Render("✓"), path)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Add package identifiers to", config.TemplatePackages)
			fmt.Fprintln(out, "  2. Add editor assets to", config.TemplateAssets)
			fmt.Fprintln(out, "  3. Run: bootstrap setup")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing settings and templates")
	cmd.Flags().BoolVar(&manifest, "manifest", false, "also create a CUE manifest")
	cmd.Flags().BoolVar(&script, "script", false, "also create a Starlark setup script")
	cmd.Flags().BoolVar(&withStore, "store", true, "create the run history database")

	return cmd
}
