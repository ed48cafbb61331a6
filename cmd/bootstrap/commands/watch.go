package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	var (
		debounce time.Duration
		skipInit bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run setup whenever the resource lists change",
		Long: `Run a full setup, then keep watching the resource lists, manifest and setup
script. Every change triggers a new setup run. Policy directories are watched
as well and reloaded without restarting.

When metrics are enabled the Prometheus endpoint is served for as long as the
command runs.`,
		Example: `  # Watch the current project
  bootstrap watch

  # Wait two seconds after the last change before running
  bootstrap watch --debounce 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, "watch")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			a.followProgress(cmd)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return a.telemetry.Metrics.Serve(gctx)
			})

			if a.policy != nil {
				if dirs := a.policyDirs(); len(dirs) > 0 {
					loader := policy.NewLoader(a.logger)
					if err := loader.Watch(gctx, dirs, func(policies []policy.Policy) error {
						return a.policy.ReplacePolicies(gctx, policies)
					}); err != nil {
						return err
					}
					defer loader.StopWatching()
				}
			}

			g.Go(func() error {
				return a.watch(gctx, cmd, debounce, skipInit)
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period after a change before setup runs")
	cmd.Flags().BoolVar(&skipInit, "skip-initial", false, "do not run setup before the first change")

	return cmd
}

// watch runs setup whenever one of the configuration files changes. Parent
// directories are watched so files replaced by editors are still seen.
func (a *app) watch(ctx context.Context, cmd *cobra.Command, debounce time.Duration, skipInit bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range config.WatchPaths(a.settings) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			a.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
			continue
		}
		dirs[dir] = true
	}
	if len(dirs) == 0 {
		return errors.New("no configuration directories could be watched")
	}

	if !skipInit {
		if err := a.runOnce(ctx, cmd); err != nil {
			return err
		}
	}

	a.logger.Info().Int("files", len(files)).Msg("Watching configuration for changes")

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !files[event.Name] || event.Op == fsnotify.Chmod {
				continue
			}
			a.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Configuration changed")
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Error().Err(err).Msg("Watcher error")

		case <-timer.C:
			a.source.Reload()
			if err := a.runOnce(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

// runOnce performs a full setup and prints its report.
func (a *app) runOnce(ctx context.Context, cmd *cobra.Command) error {
	report, err := a.orchestrator.Run(ctx)
	if report != nil {
		if jsonOutput {
			if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
				return werr
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}
	}
	return err
}
