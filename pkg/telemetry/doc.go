// Package telemetry provides observability for setup runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry), metrics
// (Prometheus) and an in-process event publisher. The Telemetry bundle implements
// engine.Observer, so wiring it into engine.Dependencies is enough to instrument
// every driver and phase.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.Enabled = true
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	orch, err := engine.NewOrchestrator(engine.Dependencies{
//	    // ...
//	    Observer: tel,
//	    Logger:   tel.Logger.Zerolog(),
//	}, engine.DefaultOrchestratorOptions())
//
// # Metrics
//
// With metrics enabled the registry exposes:
//
//	bootstrap_installs_total{kind,status}      identifiers handled, including skipped ones
//	bootstrap_install_duration_seconds{kind}    single install latency
//	bootstrap_queue_depth{kind}                 identifiers waiting in a queue
//	bootstrap_active_drains{kind}               1 while a drain runs
//	bootstrap_setup_runs_total{status}          finished runs
//	bootstrap_setup_duration_seconds            run latency
//
// Metrics.Serve exposes them over HTTP until its context ends.
//
// # Tracing
//
// Each run produces a setup.run span with one setup.phase child per phase and an
// install.item span per identifier. Exporters: stdout, otlp (gRPC) and none.
//
// # Events
//
// The EventPublisher delivers run.*, phase.* and install.* events to subscribers,
// in publish order, from a single goroutine when EnableAsync is set:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Identifier)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
package telemetry
