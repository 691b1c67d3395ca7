// Package services defines the shared error taxonomy and context annotation
// helpers used across render subsystems.
//
// Errors produced by render code are tagged with one of the exported sentinel
// markers via Wrap so the orchestrator can classify failures into stable
// reason codes without string matching. Context helpers thread job and phase
// identifiers through blocking operations so log lines stay correlated.
package services
