package deps

import (
	"os"
	"path/filepath"
	"testing"

	"albumvideo/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(present, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	statuses := CheckBinaries([]Requirement{
		{Name: "present", Command: present},
		{Name: "missing", Command: filepath.Join(dir, "absent")},
		{Name: "unconfigured", Command: "  "},
	})

	if len(statuses) != 3 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	if !statuses[0].Available {
		t.Fatalf("present binary reported unavailable: %+v", statuses[0])
	}
	if statuses[1].Available || statuses[1].Detail == "" {
		t.Fatalf("missing binary: %+v", statuses[1])
	}
	if statuses[2].Available || statuses[2].Detail != "command not configured" {
		t.Fatalf("unconfigured: %+v", statuses[2])
	}
}

func TestRequirementsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.FFmpegBinary = "/opt/ffmpeg"
	reqs := Requirements(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("requirements = %d", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg" {
		t.Fatalf("ffmpeg command = %q", reqs[0].Command)
	}
	if reqs[1].Command != "ffprobe" {
		t.Fatalf("ffprobe command = %q", reqs[1].Command)
	}
}
