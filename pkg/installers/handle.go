package installers

import (
	"sync/atomic"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// AsyncHandle is an engine.Handle backed by a goroutine.
type AsyncHandle struct {
	done   atomic.Bool
	result engine.Result
}

// Start runs fn in a new goroutine and returns a handle that completes when fn returns.
func Start(fn func() engine.Result) *AsyncHandle {
	h := &AsyncHandle{}
	go func() {
		h.result = fn()
		h.done.Store(true)
	}()
	return h
}

// Completed returns a handle that is already complete with result.
func Completed(result engine.Result) *AsyncHandle {
	h := &AsyncHandle{result: result}
	h.done.Store(true)
	return h
}

// IsComplete implements engine.Handle.
func (h *AsyncHandle) IsComplete() bool {
	return h.done.Load()
}

// Result implements engine.Handle. The zero Result is returned until the handle completes.
func (h *AsyncHandle) Result() engine.Result {
	if !h.done.Load() {
		return engine.Result{}
	}
	return h.result
}
