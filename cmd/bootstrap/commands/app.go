package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/installers"
	"github.com/openfroyo/bootstrap/pkg/policy"
	"github.com/openfroyo/bootstrap/pkg/scaffold"
	"github.com/openfroyo/bootstrap/pkg/stores"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/openfroyo/bootstrap/pkg/transports/ssh"
)

// app holds everything a command needs to drive a setup.
type app struct {
	settings  *config.Settings
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger

	store  *stores.SQLiteStore
	policy *policy.Engine
	remote *ssh.Client

	source       *config.MultiSource
	scaffolder   *scaffold.Scaffolder
	orchestrator *engine.Orchestrator
}

// loadSettings reads the settings file, falling back to defaults when it does
// not exist, and applies the --project override.
func loadSettings() (*config.Settings, error) {
	s, found, err := config.LoadSettingsOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Debug().Str("path", configPath).Msg("Settings file not found, using defaults")
	}
	if projectDir != "" {
		s.Project.Root = projectDir
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", configPath, err)
	}
	return s, nil
}

// telemetryConfig maps the settings onto a telemetry configuration.
func telemetryConfig(s *config.Settings) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = s.Telemetry.LogLevel
	cfg.Logging.Format = s.Telemetry.LogFormat
	if verbose {
		cfg.Logging.Level = "debug"
	}

	cfg.Metrics.Enabled = s.Telemetry.MetricsEnabled
	if s.Telemetry.MetricsAddr != "" {
		cfg.Metrics.ListenAddress = s.Telemetry.MetricsAddr
	}

	cfg.Tracing.Enabled = s.Telemetry.TracingEnabled
	if s.Telemetry.TracingExporter != "" {
		cfg.Tracing.Exporter = s.Telemetry.TracingExporter
	}
	cfg.Tracing.Endpoint = s.Telemetry.TracingEndpoint

	// Progress lines must be printed before the summary
	cfg.Events.EnableAsync = false
	return cfg
}

// newApp wires the configured collaborators into an orchestrator. command is
// recorded with each run.
func newApp(ctx context.Context, command string) (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(telemetryConfig(s))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{
		settings:  s,
		telemetry: tel,
		logger:    tel.Logger.Zerolog(),
	}

	if err := a.openStore(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.loadPolicies(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	packages, lister, err := a.packageBackend()
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.source = config.NewSource(s, nil)
	a.scaffolder = a.newScaffolder()

	deps := engine.Dependencies{
		Source: a.source,
		Inventory: &installers.CompositeInventory{
			Packages: lister,
			Assets:   installers.NewFileInventory(s.Project.Root),
		},
		PackageBackend: packages,
		AssetBackend:   installers.NewAssetBackend(a.assetLocator(ctx), s.ProjectPath(s.Assets.ImportDir)),
		Observer:       tel,
		Logger:         a.logger,
	}
	if a.scaffolder != nil {
		deps.Scaffolder = a.scaffolder
	}
	if a.policy != nil {
		deps.Admission = a.policy
	}
	if a.store != nil {
		deps.Recorder = stores.NewRecorder(a.store, s.SourceTemplate())
	}

	driver := engine.DefaultDriverOptions()
	driver.PollInterval = s.Install.PollInterval
	driver.ItemDelay = s.Install.ItemDelay
	driver.InstallTimeout = s.Install.Timeout
	driver.StopGrace = s.Install.StopGrace

	a.orchestrator, err = engine.NewOrchestrator(deps, engine.OrchestratorOptions{
		Template:    s.SourceTemplate(),
		AssetSuffix: s.Identifiers.AssetSuffix,
		Driver:      driver,
		Command:     command,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if !a.settings.Store.Enabled {
		return nil
	}
	store, err := stores.Open(ctx, a.settings.ProjectPath(a.settings.Store.Path))
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	a.store = store
	return nil
}

func (a *app) loadPolicies(ctx context.Context) error {
	p := a.settings.Policy
	if !p.Enabled {
		return nil
	}

	eng, err := policy.NewEngine(a.logger, p.Builtins)
	if err != nil {
		return err
	}
	if dirs := a.policyDirs(); len(dirs) > 0 {
		if err := eng.LoadPolicies(ctx, dirs); err != nil {
			return err
		}
	}
	for _, name := range p.Disabled {
		if err := eng.DisablePolicy(name); err != nil {
			return fmt.Errorf("policy.disabled: %w", err)
		}
	}
	a.policy = eng
	return nil
}

func (a *app) policyDirs() []string {
	dirs := make([]string, len(a.settings.Policy.Dirs))
	for i, d := range a.settings.Policy.Dirs {
		dirs[i] = a.settings.ProjectPath(d)
	}
	return dirs
}

// packageBackend returns the configured package backend and the lister used as
// the package inventory.
func (a *app) packageBackend() (engine.Backend, installers.PackageLister, error) {
	p := a.settings.Packages
	switch p.Backend {
	case "command":
		b := &installers.CommandBackend{
			Install: p.InstallCommand,
			List:    p.ListCommand,
			Dir:     a.settings.Project.Root,
		}
		return b, b, nil
	case "manifest", "":
		b := installers.NewManifestBackend(a.settings.ProjectPath(p.ManifestPath), p.DefaultVersion, a.settings.SourceTemplate())
		return b, b, nil
	default:
		return nil, nil, fmt.Errorf("unknown package backend %q", p.Backend)
	}
}

// assetLocator returns the remote cache locator when one is configured and
// reachable, and the local asset cache otherwise.
func (a *app) assetLocator(ctx context.Context) installers.Locator {
	local := installers.NewCacheLocator(a.settings.Assets.CacheDir)

	r := a.settings.Assets.Remote
	if r == nil {
		return local
	}

	cfg := ssh.DefaultConfig(r.Host, r.User)
	if r.Port != 0 {
		cfg.Port = r.Port
	}
	if r.KeyPath != "" {
		cfg.AuthMethod = ssh.AuthMethodKey
		cfg.PrivateKeyPath = r.KeyPath
	} else {
		cfg.AuthMethod = ssh.AuthMethodPassword
		cfg.Password = r.Password
	}
	if r.KnownHostsPath != "" {
		cfg.KnownHostsPath = r.KnownHostsPath
	}
	cfg.StrictHostKeyChecking = !r.Insecure
	if r.Timeout > 0 {
		cfg.ConnectionTimeout = r.Timeout
	}

	client, err := ssh.NewClient(cfg)
	if err == nil {
		err = client.Connect(ctx)
	}
	if err != nil {
		a.logger.Warn().Err(err).
			Str("host", r.Host).
			Str("cache", local.Dir()).
			Msg("Remote asset cache unavailable, using local cache")
		return local
	}

	a.remote = client
	return &installers.RemoteLocator{
		FS:         client,
		RemoteDir:  r.Dir,
		StagingDir: a.settings.ProjectPath(a.settings.Assets.StagingDir),
		Logger:     a.logger,
	}
}

func (a *app) newScaffolder() *scaffold.Scaffolder {
	l := a.settings.Layout
	if !l.Enabled {
		return nil
	}

	moves := make([]scaffold.Move, len(l.Moves))
	for i, m := range l.Moves {
		moves[i] = scaffold.Move{From: m.From, To: m.To}
	}
	return scaffold.New(a.settings.Project.Root, scaffold.Layout{
		Root:    l.Root,
		Folders: l.Folders,
		Moves:   moves,
		Deletes: l.Deletes,
	}, a.logger)
}

// history returns the runs store, or an error when history is disabled.
func (a *app) history() (*stores.SQLiteStore, error) {
	if a.store == nil {
		return nil, errors.New("history store is disabled (store.enabled: false)")
	}
	return a.store, nil
}

// close releases the store, the remote connection and flushes telemetry.
func (a *app) close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close remote asset cache connection")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to flush telemetry")
	}
}

// relPath shortens path for display when it is inside the project.
func (a *app) relPath(path string) string {
	if rel, err := filepath.Rel(a.settings.Project.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}
