package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"albumvideo/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewSessionWritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewSession(dir, "info", "json")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	logger.Info("session started", String("component", "test"))

	data, err := os.ReadFile(filepath.Join(dir, SessionLogName))
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	if !strings.Contains(string(data), "session started") {
		t.Fatalf("session log missing entry: %s", data)
	}
}

func TestPrettyHandlerPromotesComponent(t *testing.T) {
	var sb strings.Builder
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&sb, lvl, false))

	logger.Info("render accepted", String(FieldComponent, "orchestrator"), String(FieldJobID, "abc"))

	line := sb.String()
	if !strings.Contains(line, "orchestrator: render accepted") {
		t.Fatalf("component not promoted into prefix: %q", line)
	}
	if !strings.Contains(line, "job_id=abc") {
		t.Fatalf("missing attr: %q", line)
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	var sb strings.Builder
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&sb, lvl, false))

	ctx := services.WithJobID(context.Background(), "job-7")
	ctx = services.WithPhase(ctx, "ENCODING")
	WithContext(ctx, logger).Info("tick")

	line := sb.String()
	if !strings.Contains(line, "job_id=job-7") || !strings.Contains(line, "phase=ENCODING") {
		t.Fatalf("context fields missing: %q", line)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("should not panic", Error(nil))
}
