// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"albumvideo/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ExportDir = filepath.Join(base, "out")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Encoder.DevToolsDir = filepath.Join(base, "devtools")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWatchdogTimeout overrides the watchdog timeout in seconds.
func WithWatchdogTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.WatchdogTimeout = seconds
	}
}
