package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
)

// validation is the outcome of one validate check.
type validation struct {
	Check   string   `json:"check"`
	OK      bool     `json:"ok"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Items   []string `json:"items,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate settings, resource lists and policies",
		Long: `Check that the settings file is valid, that every configured resource list
can be read and that all policies compile. Nothing is installed.`,
		Example: `  # Validate the current project
  bootstrap validate

  # Validate and print the results as JSON
  bootstrap validate --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := loadSettings()
			if err != nil {
				return err
			}
			log.Info().Str("config", configPath).Msg("Validating project")

			a := &app{settings: s, logger: log.Logger}
			results := []validation{{Check: "settings", OK: true, Message: configPath}}
			results = append(results, validateSources(ctx, config.NewSource(s, nil))...)
			results = append(results, a.validatePolicies(ctx))

			failed := 0
			for _, r := range results {
				if !r.OK {
					failed++
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printValidations(cmd.OutOrStdout(), results)
			}

			if failed > 0 {
				return fmt.Errorf("validation failed: %d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}

	return cmd
}

// validateSources reads both resource lists. An empty list is reported but is
// not an error.
func validateSources(ctx context.Context, source engine.ConfigSource) []validation {
	check := func(name string, read func(context.Context) ([]string, error)) validation {
		ids, err := read(ctx)
		v := validation{Check: name, OK: true, Items: ids}
		switch {
		case engine.IsConfigEmpty(err):
			v.Code = engine.CodeOf(err)
			v.Message = "list is empty"
		case err != nil:
			v.OK = false
			v.Code = engine.CodeOf(err)
			v.Message = err.Error()
		default:
			v.Message = fmt.Sprintf("%d identifiers", len(ids))
		}
		return v
	}

	return []validation{
		check(string(engine.KindAssets), source.RequiredAssets),
		check(string(engine.KindPackages), source.RequiredPackages),
	}
}

func (a *app) validatePolicies(ctx context.Context) validation {
	v := validation{Check: "policies", OK: true}
	if !a.settings.Policy.Enabled {
		v.Message = "disabled"
		return v
	}

	if err := a.loadPolicies(ctx); err != nil {
		v.OK = false
		v.Message = err.Error()
		return v
	}

	disabled := 0
	for _, p := range a.policy.ListPolicies() {
		item := fmt.Sprintf("%s [%s]", p.Name, p.Severity)
		if !p.Enabled {
			item += " (disabled)"
			disabled++
		}
		v.Items = append(v.Items, item)
	}
	v.Message = fmt.Sprintf("%d policies", len(v.Items))
	if disabled > 0 {
		v.Message += fmt.Sprintf(", %d disabled", disabled)
	}
	return v
}

func printValidations(w io.Writer, results []validation) {
	for _, r := range results {
		mark := successStyle.Render("✓")
		if !r.OK {
			mark = failureStyle.Render("✗")
		} else if r.Code != "" {
			mark = warnStyle.Render("!")
		}
		fmt.Fprintf(w, "%s %-9s %s\n", mark, r.Check, mutedStyle.Render(r.Message))
		if r.OK && len(r.Items) > 0 && verbose {
			for _, item := range r.Items {
				fmt.Fprintf(w, "    %s\n", item)
			}
		}
	}
}
