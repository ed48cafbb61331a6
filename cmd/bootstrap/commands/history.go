package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit      int
		kind       string
		showEvents bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded setup runs",
		Long: `List recent setup runs, or show the install records of a single run.

Runs are recorded by setup and watch in the history database configured by
store.path.`,
		Example: `  # List the last 20 runs
  bootstrap history

  # Show what a run installed
  bootstrap history 3f2a9c1e-...

  # Show only the package records of a run, with its events
  bootstrap history 3f2a9c1e-... --kind packages --events`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := loadSettings()
			if err != nil {
				return err
			}
			a := &app{settings: s, logger: log.Logger}
			if err := a.openStore(ctx); err != nil {
				return err
			}
			store, err := a.history()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := store.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, runs)
				}
				printRuns(out, runs)
				return nil
			}

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}

			var kindFilter *engine.ResourceKind
			switch kind {
			case "":
			case string(engine.KindPackages), string(engine.KindAssets):
				k := engine.ResourceKind(kind)
				kindFilter = &k
			default:
				return fmt.Errorf("unknown kind %q (want %s or %s)", kind, engine.KindPackages, engine.KindAssets)
			}

			records, err := store.ListInstallRecords(ctx, run.ID, kindFilter)
			if err != nil {
				return err
			}

			var events []*stores.Event
			if showEvents {
				events, err = store.GetEvents(ctx, &run.ID, nil, -1, 0)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				return writeJSON(out, struct {
					Run     *stores.Run             `json:"run"`
					Records []*stores.InstallRecord `json:"records"`
					Events  []*stores.Event         `json:"events,omitempty"`
				}{run, records, events})
			}

			printRuns(out, []*stores.Run{run})
			printRecords(out, records)
			for _, e := range events {
				fmt.Fprintf(out, "%s %-7s %s\n",
					mutedStyle.Render(e.Timestamp.Local().Format(time.TimeOnly)),
					statusStyle(string(e.Level)).Render(string(e.Level)), e.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().StringVar(&kind, "kind", "", "only show records of this kind (packages or assets)")
	cmd.Flags().BoolVar(&showEvents, "events", false, "include the run's events")

	return cmd
}
