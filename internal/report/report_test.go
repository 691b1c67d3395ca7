package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteRenderReport(t *testing.T) {
	dir := t.TempDir()
	r := &RenderReport{
		JobID:        "job-42",
		Preset:       "default",
		ExportFolder: "/exports",
		StartedAt:    time.Now().Add(-time.Minute).UTC(),
		FinishedAt:   time.Now().UTC(),
		Tracks: []TrackResult{
			{Index: 0, SpawnLatencyMs: 10, FirstProgressMs: 100, FirstOutputByteMs: 50},
			{Index: 1, SpawnLatencyMs: 30, FirstProgressMs: 200, FirstOutputByteMs: 150},
		},
	}

	path, err := WriteRenderReport(dir, r)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "render-job-42.json" {
		t.Fatalf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded RenderReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Schema != RenderReportSchema || decoded.SchemaVersion != RenderReportSchemaVersion {
		t.Fatalf("schema = %s/%d", decoded.Schema, decoded.SchemaVersion)
	}
	if decoded.Build.Version != Version {
		t.Fatalf("build version = %q", decoded.Build.Version)
	}
	if decoded.Metrics.AvgSpawnLatencyMs != 20 {
		t.Fatalf("avg spawn latency = %v", decoded.Metrics.AvgSpawnLatencyMs)
	}
	if decoded.Metrics.AvgFirstProgressMs != 150 {
		t.Fatalf("avg first progress = %v", decoded.Metrics.AvgFirstProgressMs)
	}
	if decoded.Metrics.AvgFirstOutputByteMs != 100 {
		t.Fatalf("avg first output byte = %v", decoded.Metrics.AvgFirstOutputByteMs)
	}
}

func TestComputeMetricsEmptyTracks(t *testing.T) {
	r := &RenderReport{}
	r.ComputeMetrics()
	if r.Metrics != (Metrics{}) {
		t.Fatalf("metrics = %+v", r.Metrics)
	}
}

func TestWriteDiagnostics(t *testing.T) {
	dir := t.TempDir()
	d := &Diagnostics{
		SessionLog:    "/logs/albumvideo.log",
		ConfigPath:    "/home/u/.config/albumvideo/config.toml",
		IntegrityMode: "full",
		Binaries: []Binary{
			{Name: "ffmpeg", Path: "/usr/bin/ffmpeg", SHA256: "abc", Verified: true},
		},
	}

	path, err := WriteDiagnostics(dir, d)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Diagnostics
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Schema != DiagnosticsSchema || decoded.SchemaVersion != DiagnosticsSchemaVersion {
		t.Fatalf("schema = %s/%d", decoded.Schema, decoded.SchemaVersion)
	}
	if decoded.SessionLog != d.SessionLog {
		t.Fatalf("session log = %q", decoded.SessionLog)
	}
	if decoded.CollectedAt.IsZero() {
		t.Fatal("collected_at not stamped")
	}
}

func TestPackagedFollowsTag(t *testing.T) {
	original := Tag
	defer func() { Tag = original }()

	Tag = ""
	if Packaged() {
		t.Fatal("empty tag must mean development build")
	}
	Tag = "v1.2.0"
	if !Packaged() {
		t.Fatal("stamped tag must mean packaged build")
	}
}
