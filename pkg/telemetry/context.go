package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Telemetry bundles logging, tracing, metrics and events. It implements
// engine.Observer so drivers and the orchestrator report through it.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

var _ engine.Observer = (*Telemetry)(nil)

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// Shutdown delivers pending events and flushes spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
	)
}

// QueueDepthChanged implements engine.Observer.
func (t *Telemetry) QueueDepthChanged(kind engine.ResourceKind, depth int) {
	t.Metrics.SetQueueDepth(kind, depth)
}

// DrainStateChanged implements engine.Observer.
func (t *Telemetry) DrainStateChanged(kind engine.ResourceKind, active bool) {
	t.Metrics.SetDrainActive(kind, active)
}

// RunStarted implements engine.Observer.
func (t *Telemetry) RunStarted(ctx context.Context, runID string) (context.Context, func(*engine.Report)) {
	ctx, span := t.Tracer.StartRunSpan(ctx, runID)
	ctx = t.Logger.WithRunID(runID).WithContext(ctx)
	t.publish(t.Events.PublishRunStarted(runID))

	return ctx, func(report *engine.Report) {
		span.SetAttributes(AttrRunStatus.String(string(report.Status)))
		if report.Status == engine.RunStatusCompleted {
			RecordSuccess(span)
		} else {
			span.SetStatus(codes.Error, report.Summary())
		}
		span.End()

		t.Metrics.RecordRun(report.Status, report.Duration)
		t.publish(t.Events.PublishRunCompleted(report))
	}
}

// PhaseStarted implements engine.Observer.
func (t *Telemetry) PhaseStarted(ctx context.Context, kind engine.ResourceKind) (context.Context, func(*engine.PhaseReport)) {
	runID := engine.RunIDFromContext(ctx)
	ctx, span := t.Tracer.StartPhaseSpan(ctx, kind)
	t.publish(t.Events.PublishPhaseStarted(runID, kind))

	return ctx, func(report *engine.PhaseReport) {
		if report == nil {
			span.End()
			return
		}

		for _, id := range report.AlreadyInstalled {
			t.publish(t.Events.PublishInstallSkipped(runID, kind, id, "already installed"))
		}
		for _, id := range report.Denied {
			t.publish(t.Events.PublishInstallSkipped(runID, kind, id, "denied by policy"))
		}
		t.Metrics.RecordSkipped(kind, len(report.AlreadyInstalled)+len(report.Denied))

		if report.Skipped {
			span.AddEvent("phase.skipped", trace.WithAttributes(attribute.String("reason", report.SkipReason)))
		}
		RecordSuccess(span)
		span.End()

		t.publish(t.Events.PublishPhaseCompleted(runID, report))
	}
}

// InstallStarted implements engine.Observer.
func (t *Telemetry) InstallStarted(ctx context.Context, kind engine.ResourceKind, identifier string) (context.Context, func(engine.Outcome)) {
	runID := engine.RunIDFromContext(ctx)
	ctx, span := t.Tracer.StartInstallSpan(ctx, kind, identifier)
	logger := t.Logger.WithRunID(runID).WithInstall(kind, identifier)
	logger.Debug("Install started")
	t.publish(t.Events.PublishInstallStarted(runID, kind, identifier))

	return ctx, func(outcome engine.Outcome) {
		span.SetAttributes(AttrStatus.String(string(outcome.Status)))
		if outcome.Status == engine.StatusSucceeded {
			span.SetAttributes(AttrResolved.String(outcome.ResolvedName))
			RecordSuccess(span)
		} else {
			err := outcome.Err
			if err == nil {
				err = errors.New(outcome.Message)
			}
			RecordError(span, err)
			logger.WithError(err).Debug("Install failed")
		}
		span.End()

		t.Metrics.RecordInstall(kind, outcome.Status, outcome.Duration)
		t.publish(t.Events.PublishInstallFinished(runID, outcome))
	}
}

// publish logs event delivery problems at debug level; they never affect a run.
func (t *Telemetry) publish(err error) {
	if err != nil {
		t.Logger.WithError(err).Debug("Event not published")
	}
}
