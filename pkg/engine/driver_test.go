package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

func awaitIdle(t *testing.T, d *Driver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.AwaitIdle(ctx); err != nil {
		t.Fatalf("driver did not become idle: %v", err)
	}
}

func TestDriver_ProcessesInOrder(t *testing.T) {
	backend := newMockBackend()
	d := NewDriver(KindPackages, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"a", "b", "c"})
	awaitIdle(t, d)

	want := []string{"a", "b", "c"}
	if got := backend.getBegun(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected begin order %v, got %v", want, got)
	}

	outcomes := d.Outcomes()
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Status != StatusSucceeded {
			t.Errorf("expected %s to succeed, got %s", o.Identifier, o.Status)
		}
		if o.ResolvedName != o.Identifier {
			t.Errorf("expected resolved name %s, got %s", o.Identifier, o.ResolvedName)
		}
	}
}

func TestDriver_OneInstallAtATime(t *testing.T) {
	backend := newMockBackend()
	backend.delay = 15 * time.Millisecond
	d := NewDriver(KindPackages, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"a", "b", "c", "d"})
	awaitIdle(t, d)

	if got := backend.getMaxFlight(); got != 1 {
		t.Errorf("expected at most 1 install in flight, got %d", got)
	}
}

func TestDriver_FailureDoesNotAbortQueue(t *testing.T) {
	backend := newMockBackend()
	backend.failures["b"] = "checksum mismatch"
	backend.beginErrs["c"] = errors.New("backend unavailable")
	d := NewDriver(KindPackages, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"a", "b", "c", "d"})
	awaitIdle(t, d)

	outcomes := d.Outcomes()
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}

	statuses := make(map[string]InstallStatus)
	for _, o := range outcomes {
		statuses[o.Identifier] = o.Status
	}
	want := map[string]InstallStatus{
		"a": StatusSucceeded,
		"b": StatusFailed,
		"c": StatusFailed,
		"d": StatusSucceeded,
	}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("expected statuses %v, got %v", want, statuses)
	}

	if outcomes[1].Message != "checksum mismatch" {
		t.Errorf("expected backend message, got %q", outcomes[1].Message)
	}
	if !IsBackendFailure(outcomes[1].Err) {
		t.Errorf("expected backend failure, got %v", outcomes[1].Err)
	}
	if !IsBackendFailure(outcomes[2].Err) {
		t.Errorf("expected begin error classified as backend failure, got %v", outcomes[2].Err)
	}
}

func TestDriver_KeepsClassifiedFailure(t *testing.T) {
	backend := &funcBackend{fn: func(id string) Result {
		return FailureFrom(NewAssetNotFoundError(id, "/cache"))
	}}
	d := NewDriver(KindAssets, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"Missing.unitypackage"})
	awaitIdle(t, d)

	outcomes := d.Outcomes()
	if len(outcomes) != 1 || !IsAssetNotFound(outcomes[0].Err) {
		t.Errorf("expected asset not found outcome, got %+v", outcomes)
	}
}

func TestDriver_Timeout(t *testing.T) {
	backend := newMockBackend()
	backend.hang["stuck"] = true
	opts := testDriverOptions()
	opts.InstallTimeout = 50 * time.Millisecond
	d := NewDriver(KindPackages, backend, opts)

	d.Submit(context.Background(), []string{"stuck", "next"})
	awaitIdle(t, d)

	outcomes := d.Outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != StatusFailed || !IsTimeout(outcomes[0].Err) {
		t.Errorf("expected timeout failure, got %+v", outcomes[0])
	}
	if outcomes[1].Status != StatusSucceeded {
		t.Errorf("expected queue to proceed after timeout, got %s", outcomes[1].Status)
	}
}

func TestDriver_TimeoutWaitsForCancelledInstall(t *testing.T) {
	backend := newMockBackend()
	backend.delay = 100 * time.Millisecond
	backend.hang["first"] = true
	backend.hang["second"] = true
	backend.hang["third"] = true
	opts := testDriverOptions()
	opts.InstallTimeout = 20 * time.Millisecond
	d := NewDriver(KindPackages, backend, opts)

	d.Submit(context.Background(), []string{"first", "second", "third"})
	awaitIdle(t, d)

	if got := backend.getMaxFlight(); got != 1 {
		t.Errorf("expected timed-out installs never to overlap, got %d in flight", got)
	}
	outcomes := d.Outcomes()
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if !IsTimeout(o.Err) {
			t.Errorf("expected %s to time out, got %v", o.Identifier, o.Err)
		}
		if o.Duration < backend.delay {
			t.Errorf("expected %s to be awaited until it stopped, took %s", o.Identifier, o.Duration)
		}
	}
}

func TestDriver_TimeoutAbandonsStubbornInstall(t *testing.T) {
	backend := newMockBackend()
	backend.stubborn["stuck"] = true
	opts := testDriverOptions()
	opts.InstallTimeout = 20 * time.Millisecond
	opts.StopGrace = 50 * time.Millisecond
	d := NewDriver(KindPackages, backend, opts)

	d.Submit(context.Background(), []string{"stuck", "next"})
	awaitIdle(t, d)

	outcomes := d.Outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if !IsTimeout(outcomes[0].Err) {
		t.Errorf("expected timeout failure, got %+v", outcomes[0])
	}
	if outcomes[1].Status != StatusSucceeded {
		t.Errorf("expected queue to proceed after the stop grace, got %s", outcomes[1].Status)
	}
}

func TestDriver_DrainTransitionsAlternate(t *testing.T) {
	backend := newMockBackend()
	backend.delay = 0
	observer := &drainObserver{}
	opts := testDriverOptions()
	opts.Observer = observer
	d := NewDriver(KindAssets, backend, opts)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				d.Submit(context.Background(), []string{fmt.Sprintf("p%d-%d", p, i)})
				time.Sleep(time.Duration(i%3) * time.Millisecond)
			}
		}(p)
	}
	wg.Wait()
	awaitIdle(t, d)

	transitions := observer.getTransitions()
	if len(transitions) == 0 {
		t.Fatal("expected drain transitions")
	}
	for i, active := range transitions {
		if active != (i%2 == 0) {
			t.Fatalf("expected alternating transitions, got %v", transitions)
		}
	}
	if transitions[len(transitions)-1] {
		t.Error("expected last transition to report an inactive drain")
	}
}

func TestDriver_EmptyBatchDoesNotStartDrain(t *testing.T) {
	backend := newMockBackend()
	d := NewDriver(KindPackages, backend, testDriverOptions())

	d.Submit(context.Background(), nil)

	if !d.Idle() {
		t.Error("expected driver to stay idle")
	}
}

func TestDriver_SubmitWhileDraining(t *testing.T) {
	backend := newMockBackend()
	backend.delay = 20 * time.Millisecond
	d := NewDriver(KindPackages, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"a", "b"})
	d.Submit(context.Background(), []string{"c"})
	awaitIdle(t, d)

	want := []string{"a", "b", "c"}
	if got := backend.getBegun(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDriver_ConcurrentSubmitExactlyOnce(t *testing.T) {
	backend := newMockBackend()
	backend.delay = time.Millisecond
	d := NewDriver(KindPackages, backend, testDriverOptions())

	const producers = 20
	const perProducer = 10

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				d.Submit(context.Background(), []string{fmt.Sprintf("p%d-%d", p, i)})
				if i%3 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}(p)
	}
	wg.Wait()
	awaitIdle(t, d)

	begun := backend.getBegun()
	if len(begun) != producers*perProducer {
		t.Fatalf("expected %d installs, got %d", producers*perProducer, len(begun))
	}

	seen := make(map[string]int)
	for _, id := range begun {
		seen[id]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("expected %s to be installed once, got %d", id, n)
		}
	}

	if got := backend.getMaxFlight(); got != 1 {
		t.Errorf("expected one drain at a time, got %d concurrent installs", got)
	}
}

func TestDriver_PerProducerOrder(t *testing.T) {
	backend := newMockBackend()
	backend.delay = time.Millisecond
	d := NewDriver(KindPackages, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"a1", "a2"})
	d.Submit(context.Background(), []string{"a3"})
	awaitIdle(t, d)

	begun := backend.getBegun()
	index := make(map[string]int)
	for i, id := range begun {
		index[id] = i
	}
	if !(index["a1"] < index["a2"] && index["a2"] < index["a3"]) {
		t.Errorf("expected submission order preserved, got %v", begun)
	}
}

func TestDriver_DrainSurvivesCallerCancellation(t *testing.T) {
	backend := newMockBackend()
	backend.delay = 10 * time.Millisecond
	d := NewDriver(KindPackages, backend, testDriverOptions())

	ctx, cancel := context.WithCancel(context.Background())
	d.Submit(ctx, []string{"a", "b"})
	cancel()

	awaitIdle(t, d)

	if got := len(d.Outcomes()); got != 2 {
		t.Errorf("expected 2 outcomes after caller cancellation, got %d", got)
	}
}

func TestDriver_RecordsOutcomesWithRunID(t *testing.T) {
	backend := newMockBackend()
	recorder := &mockRecorder{}
	opts := testDriverOptions()
	opts.Recorder = recorder
	d := NewDriver(KindPackages, backend, opts)

	d.Submit(WithRunID(context.Background(), "run-1"), []string{"a"})
	awaitIdle(t, d)

	if got := len(recorder.getInstalls()); got != 1 {
		t.Errorf("expected 1 recorded install, got %d", got)
	}
}

func TestDriver_OutcomesSince(t *testing.T) {
	backend := newMockBackend()
	d := NewDriver(KindPackages, backend, testDriverOptions())

	d.Submit(context.Background(), []string{"a"})
	awaitIdle(t, d)
	mark := d.OutcomeCount()

	d.Submit(context.Background(), []string{"b"})
	awaitIdle(t, d)

	since := d.OutcomesSince(mark)
	if len(since) != 1 || since[0].Identifier != "b" {
		t.Errorf("expected only b, got %+v", since)
	}
}

func TestNewDriver_Defaults(t *testing.T) {
	d := NewDriver(KindAssets, newMockBackend(), DriverOptions{PollInterval: time.Nanosecond, ItemDelay: -1})

	if d.opts.PollInterval != DefaultPollInterval {
		t.Errorf("expected default poll interval, got %s", d.opts.PollInterval)
	}
	if d.opts.ItemDelay != 0 {
		t.Errorf("expected item delay clamped to 0, got %s", d.opts.ItemDelay)
	}
	if d.Kind() != KindAssets {
		t.Errorf("expected kind assets, got %s", d.Kind())
	}
}

// funcBackend completes immediately with the result of fn.
type funcBackend struct {
	fn func(id string) Result
}

func (b *funcBackend) BeginInstall(ctx context.Context, id string) (Handle, error) {
	h := &mockHandle{result: b.fn(id)}
	h.done.Store(true)
	return h, nil
}
