package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// mockHandle completes after a fixed delay.
type mockHandle struct {
	done   atomic.Bool
	result Result
}

func (h *mockHandle) IsComplete() bool { return h.done.Load() }
func (h *mockHandle) Result() Result   { return h.result }

// mockBackend records every BeginInstall call.
type mockBackend struct {
	mu        sync.Mutex
	delay     time.Duration
	failures  map[string]string
	beginErrs map[string]error
	hang      map[string]bool
	stubborn  map[string]bool
	begun     []string
	inFlight  int
	maxFlight int
	onBegin   func(id string)
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		delay:     5 * time.Millisecond,
		failures:  make(map[string]string),
		beginErrs: make(map[string]error),
		hang:      make(map[string]bool),
		stubborn:  make(map[string]bool),
		begun:     make([]string, 0),
	}
}

func (m *mockBackend) BeginInstall(ctx context.Context, id string) (Handle, error) {
	m.mu.Lock()
	m.begun = append(m.begun, id)
	hook := m.onBegin
	if err, ok := m.beginErrs[id]; ok {
		m.mu.Unlock()
		return nil, err
	}
	m.inFlight++
	if m.inFlight > m.maxFlight {
		m.maxFlight = m.inFlight
	}
	msg, fail := m.failures[id]
	hang := m.hang[id]
	stubborn := m.stubborn[id]
	delay := m.delay
	m.mu.Unlock()

	if hook != nil {
		hook(id)
	}

	h := &mockHandle{result: Success(id)}
	if fail {
		h.result = Failure(msg)
	}
	switch {
	case stubborn:
		// never completes, even when cancelled
		return h, nil
	case hang:
		// runs until its context is cancelled
		go func() {
			<-ctx.Done()
			time.Sleep(delay)
			m.mu.Lock()
			m.inFlight--
			m.mu.Unlock()
			h.result = Failure("cancelled")
			h.done.Store(true)
		}()
		return h, nil
	}

	time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
		h.done.Store(true)
	})
	return h, nil
}

func (m *mockBackend) getBegun() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.begun...)
}

func (m *mockBackend) getMaxFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight
}

// mockSource serves fixed identifier lists.
type mockSource struct {
	packages    []string
	assets      []string
	packagesErr error
	assetsErr   error
}

func (m *mockSource) RequiredPackages(ctx context.Context) ([]string, error) {
	return m.packages, m.packagesErr
}

func (m *mockSource) RequiredAssets(ctx context.Context) ([]string, error) {
	return m.assets, m.assetsErr
}

// mockInventory serves fixed inventories.
type mockInventory struct {
	mu          sync.Mutex
	packages    []string
	assets      []string
	packagesErr error
	assetsErr   error
	calls       int
}

func (m *mockInventory) ListInstalledPackageIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.packages, m.packagesErr
}

func (m *mockInventory) ListInstalledAssetPaths(ctx context.Context) ([]string, error) {
	return m.assets, m.assetsErr
}

type mockScaffolder struct {
	calls int
	err   error
}

func (m *mockScaffolder) EnsureLayout(ctx context.Context) error {
	m.calls++
	return m.err
}

// mockAdmission denies identifiers containing any of the listed substrings.
type mockAdmission struct {
	deny []string
}

func (m *mockAdmission) Admit(ctx context.Context, req AdmissionRequest) (AdmissionDecision, error) {
	for _, d := range m.deny {
		if d == req.Target {
			return AdmissionDecision{Allowed: false, Reasons: []string{"denied by test"}}, nil
		}
	}
	return AdmissionDecision{Allowed: true}, nil
}

// mockRecorder keeps everything in memory.
type mockRecorder struct {
	mu       sync.Mutex
	started  []string
	finished []*Report
	installs []Outcome
}

func (m *mockRecorder) RunStarted(ctx context.Context, runID, command string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, runID)
	return nil
}

func (m *mockRecorder) RunFinished(ctx context.Context, report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, report)
	return nil
}

func (m *mockRecorder) InstallFinished(ctx context.Context, runID string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runID == "" {
		return errors.New("missing run id")
	}
	m.installs = append(m.installs, outcome)
	return nil
}

func (m *mockRecorder) getInstalls() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Outcome{}, m.installs...)
}

// drainObserver records drain state transitions.
type drainObserver struct {
	NopObserver
	mu          sync.Mutex
	transitions []bool
}

func (o *drainObserver) DrainStateChanged(kind ResourceKind, active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, active)
}

func (o *drainObserver) getTransitions() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool{}, o.transitions...)
}

func testDriverOptions() DriverOptions {
	return DriverOptions{
		PollInterval:   minPollInterval,
		ItemDelay:      0,
		InstallTimeout: 5 * time.Second,
		StopGrace:      time.Second,
	}
}
