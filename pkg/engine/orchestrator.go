package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultAssetSuffix is stripped from asset identifiers before they are matched
// against the project tree.
const DefaultAssetSuffix = ".unitypackage"

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	// Scaffolder prepares the directory layout. Optional.
	Scaffolder Scaffolder

	Source         ConfigSource
	Inventory      Inventory
	PackageBackend Backend
	AssetBackend   Backend

	// Admission filters identifiers before submission. Optional.
	Admission Admission

	// Recorder persists run history. Optional.
	Recorder Recorder

	// Observer receives instrumentation callbacks. Optional.
	Observer Observer

	Logger zerolog.Logger
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Template    SourceTemplate
	AssetSuffix string
	Driver      DriverOptions

	// Command is recorded with each run, e.g. "setup".
	Command string
}

// DefaultOrchestratorOptions returns the default options.
func DefaultOrchestratorOptions() OrchestratorOptions {
	return OrchestratorOptions{
		Template:    DefaultSourceTemplate(),
		AssetSuffix: DefaultAssetSuffix,
		Driver:      DefaultDriverOptions(),
		Command:     "setup",
	}
}

// Orchestrator sequences a project setup: scaffold, assets, then packages.
// It owns one Driver per resource kind.
type Orchestrator struct {
	deps     Dependencies
	opts     OrchestratorOptions
	logger   zerolog.Logger
	observer Observer
	packages *Driver
	assets   *Driver
}

// NewOrchestrator creates an orchestrator and its drivers.
func NewOrchestrator(deps Dependencies, opts OrchestratorOptions) (*Orchestrator, error) {
	switch {
	case deps.Source == nil:
		return nil, NewError(ErrCodeValidation, "config source is required", nil)
	case deps.Inventory == nil:
		return nil, NewError(ErrCodeValidation, "inventory is required", nil)
	case deps.PackageBackend == nil:
		return nil, NewError(ErrCodeValidation, "package backend is required", nil)
	case deps.AssetBackend == nil:
		return nil, NewError(ErrCodeValidation, "asset backend is required", nil)
	}
	if opts.Template.RegistryPrefix == "" {
		return nil, NewError(ErrCodeValidation, "registry prefix must not be empty", nil)
	}

	observer := deps.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	driverOpts := opts.Driver
	driverOpts.Logger = deps.Logger
	driverOpts.Recorder = deps.Recorder
	driverOpts.Observer = observer

	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger.With().Str("component", "orchestrator").Logger(),
		observer: observer,
		packages: NewDriver(KindPackages, deps.PackageBackend, driverOpts),
		assets:   NewDriver(KindAssets, deps.AssetBackend, driverOpts),
	}, nil
}

// Packages returns the package driver.
func (o *Orchestrator) Packages() *Driver {
	return o.packages
}

// Assets returns the asset driver.
func (o *Orchestrator) Assets() *Driver {
	return o.assets
}

// Run performs a full setup. Item failures are reported in the Report; an error is
// returned only if ctx ends before the run finishes.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	ctx = WithRunID(ctx, report.RunID)
	ctx, finish := o.observer.RunStarted(ctx, report.RunID)

	o.recordRunStarted(ctx, report.RunID)
	o.logger.Info().Str("run_id", report.RunID).Msg("Starting project setup")

	if o.deps.Scaffolder != nil {
		if err := o.deps.Scaffolder.EnsureLayout(ctx); err != nil {
			report.ScaffoldError = err.Error()
			o.logger.Error().Err(err).Msg("Failed to prepare project layout")
		}
	}

	var err error
	report.Assets, err = o.runPhase(ctx, o.assets, o.prepareAssets)
	if err == nil {
		report.Packages, err = o.runPhase(ctx, o.packages, o.preparePackages)
	}

	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)
	switch {
	case err != nil:
		report.Status = RunStatusCancelled
	case report.FailedCount() > 0:
		report.Status = RunStatusPartial
	default:
		report.Status = RunStatusCompleted
	}

	o.recordRunFinished(ctx, report)
	finish(report)

	if err != nil {
		o.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("Project setup interrupted")
		return report, err
	}

	o.logger.Info().
		Str("run_id", report.RunID).
		Str("summary", report.Summary()).
		Msg("Full project setup completed")
	return report, nil
}

// InstallAssets runs only the asset phase.
func (o *Orchestrator) InstallAssets(ctx context.Context) (*PhaseReport, error) {
	return o.runPhase(ctx, o.assets, o.prepareAssets)
}

// InstallPackages runs only the package phase.
func (o *Orchestrator) InstallPackages(ctx context.Context) (*PhaseReport, error) {
	return o.runPhase(ctx, o.packages, o.preparePackages)
}

// Plan computes what each phase would submit without touching the backends.
func (o *Orchestrator) Plan(ctx context.Context) (*SetupPlan, error) {
	assets, _ := o.prepareAssets(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	packages, _ := o.preparePackages(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &SetupPlan{Assets: assets, Packages: packages}, nil
}

type prepareFunc func(ctx context.Context) (*PhaseReport, []string)

// runPhase submits the prepared batch and waits on the driver's completion gate.
func (o *Orchestrator) runPhase(ctx context.Context, d *Driver, prepare prepareFunc) (*PhaseReport, error) {
	ctx, finish := o.observer.PhaseStarted(ctx, d.Kind())

	report, batch := prepare(ctx)
	mark := d.OutcomeCount()
	d.Submit(ctx, batch)

	if err := d.AwaitIdle(ctx); err != nil {
		finish(report)
		return report, err
	}

	for _, outcome := range d.OutcomesSince(mark) {
		if outcome.Status == StatusSucceeded {
			report.Succeeded = append(report.Succeeded, outcome)
		} else {
			report.Failed = append(report.Failed, outcome)
		}
	}

	o.logger.Info().
		Str("kind", string(d.Kind())).
		Int("requested", report.Requested).
		Int("submitted", len(report.Submitted)).
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Msg("Phase completed")

	finish(report)
	return report, nil
}

func (o *Orchestrator) prepareAssets(ctx context.Context) (*PhaseReport, []string) {
	report := &PhaseReport{Kind: KindAssets}

	ids, err := o.deps.Source.RequiredAssets(ctx)
	if err != nil {
		o.logConfigError(KindAssets, err)
		report.skip(err)
		return report, nil
	}
	ids = compact(ids)
	report.Requested = len(ids)

	installed, err := o.deps.Inventory.ListInstalledAssetPaths(ctx)
	if err != nil {
		invErr := NewInventoryError(KindAssets, err)
		o.logger.Error().Err(invErr).Msg("Skipping asset installation")
		report.skip(invErr)
		return report, nil
	}

	lowered := make([]string, len(installed))
	for i, p := range installed {
		lowered[i] = strings.ToLower(p)
	}

	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		name := strings.ToLower(AssetName(id, o.opts.AssetSuffix))
		if name != "" && containsSubstring(lowered, name) {
			report.AlreadyInstalled = append(report.AlreadyInstalled, id)
			o.logger.Info().Str("identifier", id).Msg("Asset already installed")
			continue
		}
		pending = append(pending, id)
	}

	pending = o.admit(ctx, KindAssets, pending, nil, report)
	report.Submitted = pending
	return report, pending
}

func (o *Orchestrator) preparePackages(ctx context.Context) (*PhaseReport, []string) {
	report := &PhaseReport{Kind: KindPackages}

	ids, err := o.deps.Source.RequiredPackages(ctx)
	if err != nil {
		o.logConfigError(KindPackages, err)
		report.skip(err)
		return report, nil
	}
	ids = compact(ids)
	report.Requested = len(ids)

	installed, err := o.deps.Inventory.ListInstalledPackageIDs(ctx)
	if err != nil {
		invErr := NewInventoryError(KindPackages, err)
		o.logger.Error().Err(invErr).Msg("Skipping package installation")
		report.skip(invErr)
		return report, nil
	}

	installedSet := make(map[string]struct{}, len(installed))
	for _, id := range installed {
		installedSet[id] = struct{}{}
	}

	t := o.opts.Template
	part := t.Partition(ids)
	registry := make(map[string]bool, len(part.RegistryIDs))
	pending := make([]string, 0, len(ids))

	for _, id := range part.RegistryIDs {
		if _, ok := installedSet[RegistryName(id)]; ok {
			report.AlreadyInstalled = append(report.AlreadyInstalled, id)
			o.logger.Info().Str("identifier", id).Msg("Package already installed")
			continue
		}
		registry[id] = true
		pending = append(pending, id)
	}
	for _, url := range part.SourceURLs {
		if name := t.SourceName(url); name != "" && containsSubstring(installed, name) {
			report.AlreadyInstalled = append(report.AlreadyInstalled, url)
			o.logger.Info().Str("identifier", url).Msg("Package already installed")
			continue
		}
		pending = append(pending, url)
	}

	pending = o.admit(ctx, KindPackages, pending, registry, report)
	report.Submitted = pending
	return report, pending
}

// admit drops identifiers rejected by the admission policy. An admission error
// rejects the identifier.
func (o *Orchestrator) admit(
	ctx context.Context,
	kind ResourceKind,
	targets []string,
	registry map[string]bool,
	report *PhaseReport,
) []string {
	if o.deps.Admission == nil {
		return targets
	}

	allowed := make([]string, 0, len(targets))
	for _, target := range targets {
		decision, err := o.deps.Admission.Admit(ctx, AdmissionRequest{
			Kind:       kind,
			Identifier: target,
			Target:     target,
			Registry:   registry[target],
		})
		if err != nil {
			decision = AdmissionDecision{Reasons: []string{err.Error()}}
		}
		if !decision.Allowed {
			report.Denied = append(report.Denied, target)
			o.logger.Warn().
				Err(NewPolicyDeniedError(kind, target, decision.Reasons)).
				Strs("reasons", decision.Reasons).
				Msg("Identifier rejected")
			continue
		}
		allowed = append(allowed, target)
	}
	return allowed
}

func (o *Orchestrator) logConfigError(kind ResourceKind, err error) {
	event := o.logger.Error()
	if IsConfigEmpty(err) {
		event = o.logger.Warn()
	}
	event.Err(err).Str("kind", string(kind)).Msg("No identifiers to install")
}

func (o *Orchestrator) recordRunStarted(ctx context.Context, runID string) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.RunStarted(ctx, runID, o.opts.Command); err != nil {
		o.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run start")
	}
}

func (o *Orchestrator) recordRunFinished(ctx context.Context, report *Report) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.RunFinished(context.WithoutCancel(ctx), report); err != nil {
		o.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("Failed to record run result")
	}
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func containsSubstring(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
