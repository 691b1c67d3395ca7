package ffprobe

import (
	"context"
	"errors"
	"testing"
)

const sampleAudioJSON = `{
  "streams": [
    {"index": 0, "codec_name": "FLAC", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
  ],
  "format": {"filename": "track.flac", "nb_streams": 1, "duration": "212.35", "format_name": "flac"}
}`

const sampleImageJSON = `{
  "streams": [
    {"index": 0, "codec_name": "png", "codec_type": "video", "width": 1400, "height": 1400}
  ],
  "format": {"filename": "cover.png", "nb_streams": 1, "format_name": "png_pipe"}
}`

func fixedRunner(payload string, err error) Runner {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(payload), err
	}
}

func TestInspectAudio(t *testing.T) {
	prober := NewProber("ffprobe").WithRunner(fixedRunner(sampleAudioJSON, nil))
	result, err := prober.Inspect(context.Background(), "track.flac")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if got := result.AudioCodec(); got != "flac" {
		t.Fatalf("audio codec = %q, want lowercase flac", got)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("audio streams = %d", result.AudioStreamCount())
	}
	if result.HasVideoStream() {
		t.Fatal("audio file reported a video stream")
	}
	if got := result.DurationSeconds(); got != 212.35 {
		t.Fatalf("duration = %v", got)
	}
}

func TestInspectImage(t *testing.T) {
	prober := NewProber("").WithRunner(fixedRunner(sampleImageJSON, nil))
	result, err := prober.Inspect(context.Background(), "cover.png")
	if err != nil {
		t.Fatal(err)
	}
	if !result.HasVideoStream() {
		t.Fatal("image must decode as a video stream")
	}
	if result.AudioCodec() != "" {
		t.Fatalf("audio codec = %q, want empty", result.AudioCodec())
	}
	if result.DurationSeconds() != 0 {
		t.Fatalf("duration = %v, want 0", result.DurationSeconds())
	}
}

func TestInspectFailures(t *testing.T) {
	prober := NewProber("ffprobe").WithRunner(fixedRunner("no such file", errors.New("exit status 1")))
	if _, err := prober.Inspect(context.Background(), "missing.wav"); err == nil {
		t.Fatal("expected error from failing ffprobe")
	}

	prober = NewProber("ffprobe").WithRunner(fixedRunner("not json", nil))
	if _, err := prober.Inspect(context.Background(), "weird.wav"); err == nil {
		t.Fatal("expected parse error")
	}

	if _, err := prober.Inspect(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
