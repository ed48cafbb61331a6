// Package engine provides the installation orchestrator used to bootstrap a project's
// third-party dependencies.
//
// # Overview
//
// A setup run walks through a fixed sequence:
//
//  1. Scaffold - make sure the project's directory layout exists (Scaffolder)
//  2. Assets - submit every required asset that is not yet present and wait for it
//  3. Packages - list installed packages, classify and filter the required ones,
//     submit the rest and wait for them
//
// The orchestrator never installs anything itself. It reads the required identifiers
// from a ConfigSource, checks them against an Inventory and hands the remainder to a
// Backend through a per-kind Driver.
//
// # Identifiers
//
// Package identifiers come in two shapes. Registry identifiers carry a reverse-domain
// prefix ("com.") and are passed to the backend unchanged. Every other identifier names
// a repository on a source host and is turned into a clone URL:
//
//	t := engine.DefaultSourceTemplate()
//	t.Classify("acme/toolkit").Target // "https://github.com/acme/toolkit.git"
//
// # Drivers and Queues
//
// Each resource kind owns one InstallQueue and one Driver. Submit enqueues a batch and
// starts a drain goroutine if none is running. The drain processes one identifier at a
// time, polls the backend's Handle until it reports completion and logs the Result.
// A failed install never stops the drain.
//
// The driver's active flag is cleared under the same lock that observes the empty
// queue, so an identifier enqueued concurrently with the end of a drain is always
// picked up by a new drain.
//
// # Completion Gate
//
// AwaitIdle blocks until a Driver reports an empty queue and no active drain:
//
//	o.Packages().Submit(ctx, []string{"com.acme.core"})
//	if err := o.Packages().AwaitIdle(ctx); err != nil {
//	    return err
//	}
//
// # Errors
//
// Errors are reported as *Error values carrying a code (CONFIG_MISSING, BACKEND_FAILURE,
// ASSET_NOT_FOUND, ...). Per-item failures are recorded in the run Report and never
// abort a run.
package engine
