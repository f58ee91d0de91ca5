// Package manager is the caller-facing API of modkeeper. It wires the
// package store, deployment engine, extraction orchestrator, recovery
// checkpoint, journal and metrics for one game installation, and keeps the
// engine and the extraction cycle from stepping on each other.
//
// The CLI in internal/cli is a thin layer over this package.
package manager
