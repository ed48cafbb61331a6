package stores

import (
	"context"
	"time"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Origin tells where an installed identifier came from.
type Origin string

const (
	OriginRegistry Origin = "registry"
	OriginSource   Origin = "source"
	OriginAsset    Origin = "asset"
)

// Run represents one invocation of a bootstrap command
type Run struct {
	ID          string           `json:"id"`
	Command     string           `json:"command"`
	Status      engine.RunStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       *string          `json:"error,omitempty"`
	Summary     *string          `json:"summary,omitempty"` // JSON report
}

// InstallRecord represents the outcome of one identifier in a run
type InstallRecord struct {
	ID          string               `json:"id"`
	RunID       string               `json:"run_id"`
	Kind        engine.ResourceKind  `json:"kind"`
	Identifier  string               `json:"identifier"`
	Origin      Origin               `json:"origin"`
	Status      engine.InstallStatus `json:"status"`
	Resolved    *string              `json:"resolved,omitempty"`
	Message     *string              `json:"message,omitempty"`
	ErrorCode   *string              `json:"error_code,omitempty"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	DurationMS  int64                `json:"duration_ms"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the history store
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status engine.RunStatus, errMsg *string, summary *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Install record operations
	CreateInstallRecord(ctx context.Context, record *InstallRecord) error
	ListInstallRecords(ctx context.Context, runID string, kind *engine.ResourceKind) ([]*InstallRecord, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
