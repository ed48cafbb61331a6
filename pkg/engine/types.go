package engine

import (
	"fmt"
	"time"
)

// Result is the terminal outcome reported by an installation handle.
type Result struct {
	// Succeeded is true when the install completed successfully.
	Succeeded bool `json:"succeeded"`

	// ResolvedName is the name the backend resolved the identifier to.
	ResolvedName string `json:"resolved_name,omitempty"`

	// Message describes the failure when Succeeded is false.
	Message string `json:"message,omitempty"`

	// Err optionally carries a classified cause for a failure.
	Err error `json:"-"`
}

// Success returns a successful result.
func Success(resolvedName string) Result {
	return Result{Succeeded: true, ResolvedName: resolvedName}
}

// Failure returns a failed result with a backend-provided message.
func Failure(message string) Result {
	return Result{Message: message}
}

// FailureFrom returns a failed result describing err.
func FailureFrom(err error) Result {
	return Result{Message: err.Error(), Err: err}
}

// Outcome records what happened to one identifier drained from a queue.
type Outcome struct {
	Kind         ResourceKind  `json:"kind"`
	Identifier   string        `json:"identifier"`
	Status       InstallStatus `json:"status"`
	ResolvedName string        `json:"resolved_name,omitempty"`
	Message      string        `json:"message,omitempty"`
	Err          error         `json:"-"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     time.Duration `json:"duration"`
}

// PhaseReport summarizes one install phase of a run.
type PhaseReport struct {
	Kind ResourceKind `json:"kind"`

	// Requested is the number of identifiers read from configuration.
	Requested int `json:"requested"`

	// AlreadyInstalled lists identifiers filtered out by the inventory.
	AlreadyInstalled []string `json:"already_installed,omitempty"`

	// Denied lists identifiers rejected by the admission policy.
	Denied []string `json:"denied,omitempty"`

	// Submitted lists the targets handed to the driver, in order.
	Submitted []string `json:"submitted,omitempty"`

	Succeeded []Outcome `json:"succeeded,omitempty"`
	Failed    []Outcome `json:"failed,omitempty"`

	// Skipped is set when the phase did not submit anything because of an error.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

func (p *PhaseReport) skip(err error) {
	p.Skipped = true
	p.SkipReason = err.Error()
}

// Report summarizes a complete setup run.
type Report struct {
	RunID         string        `json:"run_id"`
	Status        RunStatus     `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
	Duration      time.Duration `json:"duration"`
	ScaffoldError string        `json:"scaffold_error,omitempty"`
	Assets        *PhaseReport  `json:"assets,omitempty"`
	Packages      *PhaseReport  `json:"packages,omitempty"`
}

// FailedCount returns the number of failed installs across both phases.
func (r *Report) FailedCount() int {
	n := 0
	for _, p := range r.phases() {
		n += len(p.Failed)
	}
	return n
}

// SucceededCount returns the number of successful installs across both phases.
func (r *Report) SucceededCount() int {
	n := 0
	for _, p := range r.phases() {
		n += len(p.Succeeded)
	}
	return n
}

// Summary returns a one-line description of the run.
func (r *Report) Summary() string {
	skipped := 0
	for _, p := range r.phases() {
		skipped += len(p.AlreadyInstalled) + len(p.Denied)
	}
	return fmt.Sprintf("%d installed, %d failed, %d skipped in %s",
		r.SucceededCount(), r.FailedCount(), skipped, r.Duration.Round(time.Millisecond))
}

func (r *Report) phases() []*PhaseReport {
	phases := make([]*PhaseReport, 0, 2)
	if r.Assets != nil {
		phases = append(phases, r.Assets)
	}
	if r.Packages != nil {
		phases = append(phases, r.Packages)
	}
	return phases
}

// SetupPlan is the dry-run view of a setup: what each phase would submit.
type SetupPlan struct {
	Assets   *PhaseReport `json:"assets"`
	Packages *PhaseReport `json:"packages"`
}
