package engine

import "fmt"

// ResourceKind distinguishes the two kinds of dependencies a project needs.
type ResourceKind string

const (
	// KindPackages covers registry and source packages.
	KindPackages ResourceKind = "packages"

	// KindAssets covers binary asset bundles imported from a local cache.
	KindAssets ResourceKind = "assets"
)

// Validate checks if the resource kind is valid.
func (k ResourceKind) Validate() error {
	switch k {
	case KindPackages, KindAssets:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// InstallStatus is the state of a single identifier in a run.
type InstallStatus string

const (
	// StatusPending indicates the identifier is queued.
	StatusPending InstallStatus = "pending"

	// StatusRunning indicates the backend is working on the identifier.
	StatusRunning InstallStatus = "running"

	// StatusSucceeded indicates the install completed successfully.
	StatusSucceeded InstallStatus = "succeeded"

	// StatusFailed indicates the install failed.
	StatusFailed InstallStatus = "failed"

	// StatusSkipped indicates the identifier was filtered out before submission.
	StatusSkipped InstallStatus = "skipped"
)

// IsTerminal returns true if the status represents a final state.
func (s InstallStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// RunStatus represents the overall status of a setup run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates every submitted install succeeded.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusPartial indicates the run finished with at least one failed install.
	RunStatusPartial RunStatus = "partial"

	// RunStatusCancelled indicates the caller stopped waiting before the run finished.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusPartial || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusPartial, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}
