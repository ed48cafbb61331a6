package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flagIdler struct {
	idle atomic.Bool
}

func (f *flagIdler) Idle() bool { return f.idle.Load() }

func TestAwaitIdle_ReturnsImmediatelyWhenIdle(t *testing.T) {
	f := &flagIdler{}
	f.idle.Store(true)

	start := time.Now()
	if err := AwaitIdle(context.Background(), f, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("expected immediate return")
	}
}

func TestAwaitIdle_WaitsForIdle(t *testing.T) {
	f := &flagIdler{}
	time.AfterFunc(30*time.Millisecond, func() { f.idle.Store(true) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := AwaitIdle(ctx, f, 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwaitIdle_ContextCancelled(t *testing.T) {
	f := &flagIdler{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := AwaitIdle(ctx, f, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestAwaitIdle_ReevaluatesAfterNewWork(t *testing.T) {
	backend := newMockBackend()
	backend.delay = 10 * time.Millisecond
	d := NewDriver(KindAssets, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"a"})
	awaitIdle(t, d)

	d.Submit(context.Background(), []string{"b"})
	if d.Idle() {
		t.Fatal("expected driver to be busy after new submission")
	}
	awaitIdle(t, d)

	if got := len(d.Outcomes()); got != 2 {
		t.Errorf("expected 2 outcomes, got %d", got)
	}
}
