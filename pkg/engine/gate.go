package engine

import (
	"context"
	"time"
)

// Idler reports whether a unit of work has nothing queued and nothing in flight.
type Idler interface {
	Idle() bool
}

// AwaitIdle polls target every interval and returns nil as soon as it is idle.
// It returns ctx.Err() if ctx is done first. State is re-evaluated on every call,
// so awaiting twice after more work was submitted waits for that work too.
func AwaitIdle(ctx context.Context, target Idler, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if target.Idle() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if target.Idle() {
				return nil
			}
		}
	}
}
