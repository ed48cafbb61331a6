package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Driver defaults.
const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultItemDelay      = 10 * time.Millisecond
	DefaultInstallTimeout = 10 * time.Minute
	DefaultStopGrace      = 30 * time.Second
	minPollInterval       = 10 * time.Millisecond
)

// DriverOptions configures a Driver.
type DriverOptions struct {
	// PollInterval is how often an in-flight handle is checked for completion.
	PollInterval time.Duration

	// ItemDelay is the pause between two items of a drain.
	ItemDelay time.Duration

	// InstallTimeout bounds a single install. When it elapses the install's context
	// is cancelled and the item fails with INSTALL_TIMEOUT. Zero disables it.
	InstallTimeout time.Duration

	// StopGrace is how long a timed-out handle is still polled for completion
	// before the drain moves on without it. Zero waits until it completes.
	StopGrace time.Duration

	Logger   zerolog.Logger
	Recorder Recorder
	Observer Observer
}

// DefaultDriverOptions returns options with the default intervals and no hooks.
func DefaultDriverOptions() DriverOptions {
	return DriverOptions{
		PollInterval:   DefaultPollInterval,
		ItemDelay:      DefaultItemDelay,
		InstallTimeout: DefaultInstallTimeout,
		StopGrace:      DefaultStopGrace,
		Logger:         zerolog.Nop(),
	}
}

// Driver drains one InstallQueue through a Backend, one identifier at a time.
type Driver struct {
	kind     ResourceKind
	backend  Backend
	queue    *InstallQueue
	opts     DriverOptions
	logger   zerolog.Logger
	observer Observer

	// mu guards active together with the queue's emptiness as seen by the drain loop.
	// Drain state transitions are reported while it is held, so observers see them
	// in order. It is never held while waiting on a handle.
	mu       sync.Mutex
	active   bool
	outcomes []Outcome
}

// NewDriver creates a driver for one resource kind.
func NewDriver(kind ResourceKind, backend Backend, opts DriverOptions) *Driver {
	if opts.PollInterval < minPollInterval {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ItemDelay < 0 {
		opts.ItemDelay = 0
	}
	if opts.InstallTimeout < 0 {
		opts.InstallTimeout = 0
	}
	if opts.StopGrace < 0 {
		opts.StopGrace = 0
	}

	var observer Observer = NopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}

	return &Driver{
		kind:     kind,
		backend:  backend,
		queue:    NewInstallQueue(),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "driver").Str("kind", string(kind)).Logger(),
		observer: observer,
		outcomes: make([]Outcome, 0),
	}
}

// Kind returns the resource kind served by the driver.
func (d *Driver) Kind() ResourceKind {
	return d.kind
}

// Submit enqueues a batch and starts a drain if none is active.
// Drains outlive ctx's cancellation; only its values are inherited.
func (d *Driver) Submit(ctx context.Context, batch []string) {
	if len(batch) == 0 {
		return
	}

	d.mu.Lock()
	d.queue.Enqueue(batch...)
	depth := d.queue.Len()
	start := !d.active
	if start {
		d.active = true
		d.observer.DrainStateChanged(d.kind, true)
	}
	d.mu.Unlock()

	d.observer.QueueDepthChanged(d.kind, depth)
	d.logger.Debug().Int("count", len(batch)).Int("depth", depth).Msg("Batch submitted")

	if start {
		go d.drain(context.WithoutCancel(ctx))
	}
}

// Idle reports whether the queue is empty and no drain is active.
func (d *Driver) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.active && d.queue.IsEmpty()
}

// AwaitIdle blocks until the driver is idle or ctx is done.
func (d *Driver) AwaitIdle(ctx context.Context) error {
	return AwaitIdle(ctx, d, d.opts.PollInterval)
}

// Outcomes returns a copy of every outcome recorded so far, in completion order.
func (d *Driver) Outcomes() []Outcome {
	return d.OutcomesSince(0)
}

// OutcomeCount returns the number of outcomes recorded so far.
func (d *Driver) OutcomeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.outcomes)
}

// OutcomesSince returns the outcomes recorded after the first n.
func (d *Driver) OutcomesSince(n int) []Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 || n > len(d.outcomes) {
		n = len(d.outcomes)
	}
	out := make([]Outcome, len(d.outcomes)-n)
	copy(out, d.outcomes[n:])
	return out
}

// next dequeues the following identifier, clearing the active flag when the queue is
// empty. Both happen under d.mu so a concurrent Submit either lands before the check
// or sees the flag cleared and starts a new drain.
func (d *Driver) next() (string, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.queue.TryDequeue()
	if !ok {
		d.active = false
		d.observer.DrainStateChanged(d.kind, false)
	}
	return id, d.queue.Len(), ok
}

func (d *Driver) drain(ctx context.Context) {
	d.logger.Debug().Msg("Drain started")

	for {
		id, depth, ok := d.next()
		if !ok {
			d.logger.Debug().Msg("Drain finished")
			return
		}
		d.observer.QueueDepthChanged(d.kind, depth)

		outcome := d.install(ctx, id)

		d.mu.Lock()
		d.outcomes = append(d.outcomes, outcome)
		d.mu.Unlock()

		if d.opts.ItemDelay > 0 {
			time.Sleep(d.opts.ItemDelay)
		}
	}
}

// install runs one identifier to a terminal outcome. It never returns an error:
// every failure is folded into the outcome.
func (d *Driver) install(ctx context.Context, id string) Outcome {
	outcome := Outcome{
		Kind:       d.kind,
		Identifier: id,
		Status:     StatusRunning,
		StartedAt:  time.Now(),
	}

	ctx, finish := d.observer.InstallStarted(ctx, d.kind, id)
	d.logger.Debug().Str("identifier", id).Msg("Install started")

	itemCtx, cancel := d.itemContext(ctx)
	defer cancel()

	var result Result
	handle, err := d.backend.BeginInstall(itemCtx, id)
	switch {
	case err != nil && errors.Is(itemCtx.Err(), context.DeadlineExceeded):
		result = FailureFrom(NewTimeoutError(d.kind, id, d.opts.InstallTimeout))
	case err != nil:
		result = FailureFrom(err)
	case handle == nil:
		result = Failure("backend returned no handle")
	default:
		result = d.await(itemCtx, id, handle)
	}

	outcome.CompletedAt = time.Now()
	outcome.Duration = outcome.CompletedAt.Sub(outcome.StartedAt)

	if result.Succeeded {
		outcome.Status = StatusSucceeded
		outcome.ResolvedName = result.ResolvedName
		d.logger.Info().
			Str("identifier", id).
			Str("resolved", result.ResolvedName).
			Dur("duration", outcome.Duration).
			Msg("Installed")
	} else {
		outcome.Status = StatusFailed
		outcome.Message = result.Message
		outcome.Err = d.classify(id, result)
		d.logFailure(outcome)
	}

	if d.opts.Recorder != nil {
		if runID := RunIDFromContext(ctx); runID != "" {
			if err := d.opts.Recorder.InstallFinished(ctx, runID, outcome); err != nil {
				d.logger.Warn().Err(err).Str("identifier", id).Msg("Failed to record install outcome")
			}
		}
	}

	finish(outcome)
	return outcome
}

// itemContext returns the context one install runs under. It expires after
// InstallTimeout so backends can stop the work they started.
func (d *Driver) itemContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opts.InstallTimeout > 0 {
		return context.WithTimeout(ctx, d.opts.InstallTimeout)
	}
	return context.WithCancel(ctx)
}

// await polls handle until it completes or ctx expires. An expired install is
// still awaited by settle before the drain takes the next item.
func (d *Driver) await(ctx context.Context, id string, handle Handle) Result {
	if handle.IsComplete() {
		return handle.Result()
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if handle.IsComplete() {
				return handle.Result()
			}
		case <-ctx.Done():
			if handle.IsComplete() {
				return handle.Result()
			}
			d.settle(id, handle, ticker.C)
			return FailureFrom(NewTimeoutError(d.kind, id, d.opts.InstallTimeout))
		}
	}
}

// settle polls a cancelled handle until it completes. A handle still running
// after StopGrace is abandoned.
func (d *Driver) settle(id string, handle Handle, tick <-chan time.Time) {
	var grace <-chan time.Time
	if d.opts.StopGrace > 0 {
		timer := time.NewTimer(d.opts.StopGrace)
		defer timer.Stop()
		grace = timer.C
	}

	for !handle.IsComplete() {
		select {
		case <-tick:
		case <-grace:
			d.logger.Error().
				Str("identifier", id).
				Dur("grace", d.opts.StopGrace).
				Msg("Install still running after timeout, continuing without it")
			return
		}
	}
}

func (d *Driver) classify(id string, result Result) error {
	if CodeOf(result.Err) != "" {
		return result.Err
	}
	return NewBackendError(d.kind, id, result.Message, result.Err)
}

func (d *Driver) logFailure(outcome Outcome) {
	if IsAssetNotFound(outcome.Err) {
		d.logger.Warn().
			Str("identifier", outcome.Identifier).
			Str("hint", "download the asset to the local asset cache and run setup again").
			Msg(outcome.Message)
		return
	}
	d.logger.Error().
		Str("identifier", outcome.Identifier).
		Str("code", CodeOf(outcome.Err)).
		Msg(outcome.Message)
}
