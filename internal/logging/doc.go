// Package logging assembles structured slog loggers and formatting helpers
// shared by the render subsystems.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so render code automatically tags log
// lines with job IDs, phases, and correlation IDs. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
