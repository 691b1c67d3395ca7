// Package report writes the schema-versioned render report and the
// diagnostics bundle. Both records carry a schema family and version so
// external consumers can detect and skip formats they do not understand,
// and both are stamped with the build identity of the binary that wrote
// them.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Schema families and versions for the persisted records.
const (
	RenderReportSchema        = "albumvideo.render-report"
	RenderReportSchemaVersion = 1

	DiagnosticsSchema        = "albumvideo.diagnostics"
	DiagnosticsSchemaVersion = 1
)

// TrackResult is the per-track section of a render report.
type TrackResult struct {
	Index             int     `json:"index"`
	AudioPath         string  `json:"audio_path"`
	OutputPath        string  `json:"output_path"`
	AudioCodec        string  `json:"audio_codec"`
	AudioCopied       bool    `json:"audio_copied"`
	DurationSeconds   float64 `json:"duration_seconds"`
	EncodeSeconds     float64 `json:"encode_seconds"`
	OutputSizeBytes   int64   `json:"output_size_bytes"`
	SpawnLatencyMs    float64 `json:"spawn_latency_ms"`
	FirstProgressMs   float64 `json:"first_progress_ms"`
	FirstOutputByteMs float64 `json:"first_output_byte_ms"`
}

// Metrics are the job-level performance figures, each averaged across the
// job's tracks.
type Metrics struct {
	AvgSpawnLatencyMs    float64 `json:"avg_spawn_latency_ms"`
	AvgFirstProgressMs   float64 `json:"avg_first_progress_ms"`
	AvgFirstOutputByteMs float64 `json:"avg_first_output_byte_ms"`
}

// RenderReport is the persisted success record for one job.
type RenderReport struct {
	Schema        string        `json:"schema"`
	SchemaVersion int           `json:"schema_version"`
	Build         BuildInfo     `json:"build"`
	JobID         string        `json:"job_id"`
	Preset        string        `json:"preset"`
	ExportFolder  string        `json:"export_folder"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Tracks        []TrackResult `json:"tracks"`
	Metrics       Metrics       `json:"metrics"`
}

// ComputeMetrics fills the job-level averages from the track results.
func (r *RenderReport) ComputeMetrics() {
	if len(r.Tracks) == 0 {
		return
	}
	var spawn, progress, firstByte float64
	for _, track := range r.Tracks {
		spawn += track.SpawnLatencyMs
		progress += track.FirstProgressMs
		firstByte += track.FirstOutputByteMs
	}
	n := float64(len(r.Tracks))
	r.Metrics = Metrics{
		AvgSpawnLatencyMs:    spawn / n,
		AvgFirstProgressMs:   progress / n,
		AvgFirstOutputByteMs: firstByte / n,
	}
}

// WriteRenderReport stamps the schema and build identity, computes the
// metrics, and writes the report as JSON. Returns the written path.
func WriteRenderReport(dir string, r *RenderReport) (string, error) {
	r.Schema = RenderReportSchema
	r.SchemaVersion = RenderReportSchemaVersion
	r.Build = CurrentBuild()
	r.ComputeMetrics()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("render-%s.json", r.JobID))
	if err := writeJSON(path, r); err != nil {
		return "", err
	}
	return path, nil
}

// Diagnostics is the persisted diagnostics bundle. It references the
// session log rather than embedding it.
type Diagnostics struct {
	Schema        string    `json:"schema"`
	SchemaVersion int       `json:"schema_version"`
	Build         BuildInfo `json:"build"`
	CollectedAt   time.Time `json:"collected_at"`
	SessionLog    string    `json:"session_log"`
	ConfigPath    string    `json:"config_path"`
	IntegrityMode string    `json:"integrity_mode"`
	Binaries      []Binary  `json:"binaries"`
	LedgerPath    string    `json:"ledger_path"`
	OrphanEntries int       `json:"orphan_entries"`
}

// Binary is the diagnostics view of one verified encoder binary.
type Binary struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA256   string `json:"sha256"`
	Verified bool   `json:"verified"`
	Bypassed bool   `json:"bypassed"`
}

// WriteDiagnostics stamps and writes the bundle. Returns the written path.
func WriteDiagnostics(dir string, d *Diagnostics) (string, error) {
	d.Schema = DiagnosticsSchema
	d.SchemaVersion = DiagnosticsSchemaVersion
	d.Build = CurrentBuild()
	if d.CollectedAt.IsZero() {
		d.CollectedAt = time.Now().UTC()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create diagnostics directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("diagnostics-%s.json", d.CollectedAt.Format("20060102-150405")))
	if err := writeJSON(path, d); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
