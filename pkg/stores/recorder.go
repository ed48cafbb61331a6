package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Recorder adapts a Store to engine.Recorder. Every run gets a runs row, one
// install record per identifier and a handful of events.
type Recorder struct {
	Store    Store
	Template engine.SourceTemplate
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store, tmpl engine.SourceTemplate) *Recorder {
	return &Recorder{Store: store, Template: tmpl}
}

// RunStarted implements engine.Recorder.
func (r *Recorder) RunStarted(ctx context.Context, runID, command string) error {
	now := time.Now().UTC()
	if err := r.Store.CreateRun(ctx, &Run{
		ID:        runID,
		Command:   command,
		Status:    engine.RunStatusRunning,
		StartedAt: now,
	}); err != nil {
		return err
	}
	return r.event(ctx, runID, EventLevelInfo, "run.started", map[string]string{"command": command})
}

// InstallFinished implements engine.Recorder.
func (r *Recorder) InstallFinished(ctx context.Context, runID string, outcome engine.Outcome) error {
	started := outcome.StartedAt.UTC()
	completed := outcome.CompletedAt.UTC()

	record := &InstallRecord{
		ID:          uuid.NewString(),
		RunID:       runID,
		Kind:        outcome.Kind,
		Identifier:  outcome.Identifier,
		Origin:      r.origin(outcome.Kind, outcome.Identifier),
		Status:      outcome.Status,
		Resolved:    optional(outcome.ResolvedName),
		Message:     optional(outcome.Message),
		ErrorCode:   optional(engine.CodeOf(outcome.Err)),
		StartedAt:   &started,
		CompletedAt: &completed,
		DurationMS:  outcome.Duration.Milliseconds(),
	}
	if err := r.Store.CreateInstallRecord(ctx, record); err != nil {
		return err
	}

	level := EventLevelInfo
	if outcome.Status == engine.StatusFailed {
		level = EventLevelError
		if engine.IsAssetNotFound(outcome.Err) {
			level = EventLevelWarning
		}
	}
	return r.event(ctx, runID, level, "install."+string(outcome.Status), map[string]string{
		"kind":       string(outcome.Kind),
		"identifier": outcome.Identifier,
	})
}

// RunFinished implements engine.Recorder. Identifiers filtered out before
// submission are stored as skipped records.
func (r *Recorder) RunFinished(ctx context.Context, report *engine.Report) error {
	for _, phase := range []*engine.PhaseReport{report.Assets, report.Packages} {
		if phase == nil {
			continue
		}
		if err := r.recordSkipped(ctx, report.RunID, phase.Kind, phase.AlreadyInstalled, "already installed"); err != nil {
			return err
		}
		if err := r.recordSkipped(ctx, report.RunID, phase.Kind, phase.Denied, "denied by policy"); err != nil {
			return err
		}
	}

	summary, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	s := string(summary)

	var errMsg *string
	if report.ScaffoldError != "" {
		errMsg = optional(report.ScaffoldError)
	} else if report.FailedCount() > 0 {
		errMsg = optional(fmt.Sprintf("%d installs failed", report.FailedCount()))
	}

	if err := r.Store.UpdateRunStatus(ctx, report.RunID, report.Status, errMsg, &s); err != nil {
		return err
	}

	level := EventLevelInfo
	if report.Status != engine.RunStatusCompleted {
		level = EventLevelWarning
	}
	return r.event(ctx, report.RunID, level, "run.completed", map[string]string{
		"status":  string(report.Status),
		"summary": report.Summary(),
	})
}

func (r *Recorder) recordSkipped(ctx context.Context, runID string, kind engine.ResourceKind, ids []string, reason string) error {
	for _, id := range ids {
		if err := r.Store.CreateInstallRecord(ctx, &InstallRecord{
			ID:         uuid.NewString(),
			RunID:      runID,
			Kind:       kind,
			Identifier: id,
			Origin:     r.origin(kind, id),
			Status:     engine.StatusSkipped,
			Message:    optional(reason),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) origin(kind engine.ResourceKind, identifier string) Origin {
	if kind == engine.KindAssets {
		return OriginAsset
	}
	if strings.Contains(identifier, "://") || r.Template.Classify(identifier).Kind == engine.KindSource {
		return OriginSource
	}
	return OriginRegistry
}

func (r *Recorder) event(ctx context.Context, runID string, level EventLevel, message string, details map[string]string) error {
	var detailsJSON *string
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			return err
		}
		detailsJSON = optional(string(data))
	}

	return r.Store.AppendEvent(ctx, &Event{
		RunID:     &runID,
		Level:     level,
		Message:   message,
		Details:   detailsJSON,
		Timestamp: time.Now().UTC(),
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
