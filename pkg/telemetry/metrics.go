package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Metrics provides Prometheus metrics for installs and setup runs.
type Metrics struct {
	config MetricsConfig

	// Install metrics
	installsTotal   *prometheus.CounterVec
	installDuration *prometheus.HistogramVec

	// Driver metrics
	queueDepth   *prometheus.GaugeVec
	activeDrains *prometheus.GaugeVec

	// Run metrics
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		installsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "installs_total",
				Help:      "Total number of identifiers handled, by outcome",
			},
			[]string{"kind", "status"},
		),
		installDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "install_duration_seconds",
				Help:      "Duration of single installs in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Identifiers waiting in the install queue",
			},
			[]string{"kind"},
		),
		activeDrains: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_drains",
				Help:      "1 while a drain is running for the kind",
			},
			[]string{"kind"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "setup_runs_total",
				Help:      "Total number of setup runs, by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "setup_duration_seconds",
				Help:      "Duration of setup runs in seconds",
				Buckets:   buckets,
			},
		),
	}

	registry.MustRegister(
		m.installsTotal,
		m.installDuration,
		m.queueDepth,
		m.activeDrains,
		m.runsTotal,
		m.runDuration,
	)

	return m, nil
}

// Enabled reports whether metrics are collected.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordInstall records a terminal install outcome.
func (m *Metrics) RecordInstall(kind engine.ResourceKind, status engine.InstallStatus, duration time.Duration) {
	if m.installsTotal == nil {
		return
	}
	m.installsTotal.WithLabelValues(string(kind), string(status)).Inc()
	if status != engine.StatusSkipped {
		m.installDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
	}
}

// RecordSkipped counts identifiers that were filtered out before submission.
func (m *Metrics) RecordSkipped(kind engine.ResourceKind, n int) {
	if m.installsTotal == nil || n == 0 {
		return
	}
	m.installsTotal.WithLabelValues(string(kind), string(engine.StatusSkipped)).Add(float64(n))
}

// SetQueueDepth sets the number of identifiers waiting for kind.
func (m *Metrics) SetQueueDepth(kind engine.ResourceKind, depth int) {
	if m.queueDepth == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(kind)).Set(float64(depth))
}

// SetDrainActive marks the drain for kind as running or stopped.
func (m *Metrics) SetDrainActive(kind engine.ResourceKind, active bool) {
	if m.activeDrains == nil {
		return
	}
	value := 0.0
	if active {
		value = 1.0
	}
	m.activeDrains.WithLabelValues(string(kind)).Set(value)
}

// RecordRun records a finished setup run.
func (m *Metrics) RecordRun(status engine.RunStatus, duration time.Duration) {
	if m.runsTotal == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is done. It returns nil
// immediately when metrics are disabled.
func (m *Metrics) Serve(ctx context.Context) error {
	if m.registry == nil {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
