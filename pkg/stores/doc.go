// Package stores keeps the history of bootstrap runs in SQLite.
// It records each run, the outcome of every identifier the run handled, and an
// append-only event log. Schema changes are applied with embedded migrations.
package stores
