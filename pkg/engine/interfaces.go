package engine

import "context"

// Backend starts the installation of a single identifier.
// BeginInstall must not block until the install finishes; progress is observed
// through the returned Handle.
type Backend interface {
	BeginInstall(ctx context.Context, identifier string) (Handle, error)
}

// Handle tracks one in-flight installation.
type Handle interface {
	// IsComplete reports whether the install reached a terminal state.
	IsComplete() bool

	// Result returns the outcome. It is only meaningful once IsComplete returns true.
	Result() Result
}

// ConfigSource supplies the identifiers a project requires.
// Missing configuration is reported with a CONFIG_MISSING error and a configuration
// without entries with CONFIG_EMPTY.
type ConfigSource interface {
	RequiredPackages(ctx context.Context) ([]string, error)
	RequiredAssets(ctx context.Context) ([]string, error)
}

// Inventory reports what is already present in the project.
type Inventory interface {
	// ListInstalledPackageIDs returns the ids of installed packages.
	ListInstalledPackageIDs(ctx context.Context) ([]string, error)

	// ListInstalledAssetPaths returns project-relative paths of imported assets.
	ListInstalledAssetPaths(ctx context.Context) ([]string, error)
}

// Scaffolder prepares the project's directory layout. It must be idempotent.
type Scaffolder interface {
	EnsureLayout(ctx context.Context) error
}

// AdmissionRequest describes an identifier about to be submitted.
type AdmissionRequest struct {
	Kind       ResourceKind `json:"kind"`
	Identifier string       `json:"identifier"`
	Target     string       `json:"target"`
	Registry   bool         `json:"registry"`
}

// AdmissionDecision is the verdict of an Admission check.
type AdmissionDecision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Admission decides whether an identifier may be installed.
type Admission interface {
	Admit(ctx context.Context, req AdmissionRequest) (AdmissionDecision, error)
}

// Recorder persists run history.
type Recorder interface {
	RunStarted(ctx context.Context, runID, command string) error
	RunFinished(ctx context.Context, report *Report) error
	InstallFinished(ctx context.Context, runID string, outcome Outcome) error
}

// Observer receives instrumentation callbacks from drivers and the orchestrator.
// The returned functions are called exactly once when the matching work ends.
type Observer interface {
	QueueDepthChanged(kind ResourceKind, depth int)
	DrainStateChanged(kind ResourceKind, active bool)
	InstallStarted(ctx context.Context, kind ResourceKind, identifier string) (context.Context, func(Outcome))
	PhaseStarted(ctx context.Context, kind ResourceKind) (context.Context, func(*PhaseReport))
	RunStarted(ctx context.Context, runID string) (context.Context, func(*Report))
}

// NopObserver is an Observer that does nothing.
type NopObserver struct{}

func (NopObserver) QueueDepthChanged(ResourceKind, int)  {}
func (NopObserver) DrainStateChanged(ResourceKind, bool) {}

func (NopObserver) InstallStarted(ctx context.Context, _ ResourceKind, _ string) (context.Context, func(Outcome)) {
	return ctx, func(Outcome) {}
}

func (NopObserver) PhaseStarted(ctx context.Context, _ ResourceKind) (context.Context, func(*PhaseReport)) {
	return ctx, func(*PhaseReport) {}
}

func (NopObserver) RunStarted(ctx context.Context, _ string) (context.Context, func(*Report)) {
	return ctx, func(*Report) {}
}

type runIDKey struct{}

// WithRunID returns a context carrying the run id recorded with each install.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id stored in ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
