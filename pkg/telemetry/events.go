package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Event represents a telemetry event emitted during a setup run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Kind is the resource kind, if applicable.
	Kind engine.ResourceKind `json:"kind,omitempty"`

	// Identifier is the package or asset identifier, if applicable.
	Identifier string `json:"identifier,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants.
const (
	EventTypeRunStarted       = "run.started"
	EventTypeRunCompleted     = "run.completed"
	EventTypePhaseStarted     = "phase.started"
	EventTypePhaseCompleted   = "phase.completed"
	EventTypeInstallStarted   = "install.started"
	EventTypeInstallSucceeded = "install.succeeded"
	EventTypeInstallFailed    = "install.failed"
	EventTypeInstallSkipped   = "install.skipped"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
// Subscribers are called in publish order from a single goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

	if ep.ctx.Err() != nil {
		return fmt.Errorf("event publisher stopped")
	}
	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, event dropped")
	}
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started", runID),
		Level:   EventLevelInfo,
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(report *engine.Report) error {
	level := EventLevelInfo
	if report.Status != engine.RunStatusCompleted {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   report.RunID,
		Message: fmt.Sprintf("Run %s %s: %s", report.RunID, report.Status, report.Summary()),
		Level:   level,
		Data: map[string]interface{}{
			"status":    string(report.Status),
			"succeeded": report.SucceededCount(),
			"failed":    report.FailedCount(),
			"duration":  report.Duration.Seconds(),
		},
	})
}

// PublishPhaseStarted publishes a phase started event.
func (ep *EventPublisher) PublishPhaseStarted(runID string, kind engine.ResourceKind) error {
	return ep.Publish(Event{
		Type:    EventTypePhaseStarted,
		RunID:   runID,
		Kind:    kind,
		Message: fmt.Sprintf("Installing %s", kind),
		Level:   EventLevelInfo,
	})
}

// PublishPhaseCompleted publishes a phase completed event.
func (ep *EventPublisher) PublishPhaseCompleted(runID string, report *engine.PhaseReport) error {
	level := EventLevelInfo
	if report.Skipped || len(report.Failed) > 0 {
		level = EventLevelWarning
	}
	data := map[string]interface{}{
		"requested": report.Requested,
		"submitted": len(report.Submitted),
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
	}
	if report.Skipped {
		data["skip_reason"] = report.SkipReason
	}
	return ep.Publish(Event{
		Type:    EventTypePhaseCompleted,
		RunID:   runID,
		Kind:    report.Kind,
		Message: fmt.Sprintf("Finished %s: %d succeeded, %d failed", report.Kind, len(report.Succeeded), len(report.Failed)),
		Level:   level,
		Data:    data,
	})
}

// PublishInstallStarted publishes an install started event.
func (ep *EventPublisher) PublishInstallStarted(runID string, kind engine.ResourceKind, identifier string) error {
	return ep.Publish(Event{
		Type:       EventTypeInstallStarted,
		RunID:      runID,
		Kind:       kind,
		Identifier: identifier,
		Message:    fmt.Sprintf("Installing %s", identifier),
		Level:      EventLevelInfo,
	})
}

// PublishInstallFinished publishes install.succeeded or install.failed for outcome.
func (ep *EventPublisher) PublishInstallFinished(runID string, outcome engine.Outcome) error {
	event := Event{
		RunID:      runID,
		Kind:       outcome.Kind,
		Identifier: outcome.Identifier,
		Data: map[string]interface{}{
			"duration": outcome.Duration.Seconds(),
		},
	}
	if outcome.Status == engine.StatusSucceeded {
		event.Type = EventTypeInstallSucceeded
		event.Level = EventLevelInfo
		event.Message = fmt.Sprintf("Installed %s", outcome.ResolvedName)
		event.Data["resolved"] = outcome.ResolvedName
	} else {
		event.Type = EventTypeInstallFailed
		event.Level = EventLevelError
		if engine.IsAssetNotFound(outcome.Err) {
			event.Level = EventLevelWarning
		}
		event.Message = fmt.Sprintf("Failed to install %s: %s", outcome.Identifier, outcome.Message)
		if code := engine.CodeOf(outcome.Err); code != "" {
			event.Data["code"] = code
		}
	}
	return ep.Publish(event)
}

// PublishInstallSkipped publishes an install skipped event.
func (ep *EventPublisher) PublishInstallSkipped(runID string, kind engine.ResourceKind, identifier, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeInstallSkipped,
		RunID:      runID,
		Kind:       kind,
		Identifier: identifier,
		Message:    fmt.Sprintf("Skipped %s: %s", identifier, reason),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events in batches.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ep.ctx.Done():
			// Deliver whatever is still buffered
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown delivers pending events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByKind creates a filter that only allows events for one resource kind.
func FilterByKind(kind engine.ResourceKind) EventFilter {
	return func(event Event) bool {
		return event.Kind == kind
	}
}
