package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeEncoder writes a shell script that mimics ffmpeg's -progress output.
func fakeEncoder(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testSpec() EncodeSpec {
	return EncodeSpec{
		AudioPath:  "/in/track.flac",
		ImagePath:  "/in/cover.png",
		OutputPath: "/out/track.mp4",
		VideoArgs:  []string{"-c:v", "libx264"},
	}
}

func TestBuildArgs(t *testing.T) {
	cli := NewCLI()
	spec := testSpec()
	spec.CopyAudio = true
	args := strings.Join(cli.BuildArgs(spec), " ")

	for _, want := range []string{
		"-loop 1 -framerate 1",
		"-i /in/cover.png",
		"-i /in/track.flac",
		"-c:v libx264",
		"-c:a copy",
		"-r 1",
		"-shortest",
		"-progress pipe:1",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
	if !strings.HasSuffix(args, "/out/track.mp4") {
		t.Errorf("output path must come last: %s", args)
	}

	spec.CopyAudio = false
	args = strings.Join(cli.BuildArgs(spec), " ")
	if !strings.Contains(args, "-c:a aac") {
		t.Errorf("transcode spec must select aac: %s", args)
	}
	if strings.Contains(args, "-c:a copy") {
		t.Errorf("transcode spec must not stream-copy: %s", args)
	}
}

func TestStartParsesProgressStream(t *testing.T) {
	binary := fakeEncoder(t, `
printf 'total_size=1024\nout_time_us=1000000\nspeed=30.1x\nprogress=continue\n'
printf 'total_size=4096\nout_time_us=3000000\nspeed=31.0x\nprogress=end\n'
`)
	cli := NewCLI(WithBinary(binary))
	handle, err := cli.Start(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var updates []ProgressUpdate
	for update := range handle.Progress() {
		updates = append(updates, update)
	}
	if err := <-handle.Done(); err != nil {
		t.Fatalf("done: %v", err)
	}

	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	first := updates[0]
	if first.TotalSizeBytes != 1024 || first.OutTime != time.Second || first.Speed != "30.1x" || first.End {
		t.Fatalf("first update = %+v", first)
	}
	last := updates[1]
	if last.TotalSizeBytes != 4096 || last.OutTime != 3*time.Second || !last.End {
		t.Fatalf("last update = %+v", last)
	}
}

func TestStartReportsFailureWithStderrTail(t *testing.T) {
	binary := fakeEncoder(t, `
echo "cover.png: No such file or directory" >&2
exit 1
`)
	cli := NewCLI(WithBinary(binary))
	handle, err := cli.Start(context.Background(), testSpec())
	if err != nil {
		t.Fatal(err)
	}
	for range handle.Progress() {
	}
	err = <-handle.Done()
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "No such file") {
		t.Fatalf("error missing stderr tail: %v", err)
	}
}

func TestKillTerminatesProcess(t *testing.T) {
	// The sleeping child inherits the progress pipe; kill must take the
	// whole process group down or Done would wait on the pipe forever.
	binary := fakeEncoder(t, `
printf 'total_size=10\nprogress=continue\n'
sleep 60
`)
	cli := NewCLI(WithBinary(binary))
	handle, err := cli.Start(context.Background(), testSpec())
	if err != nil {
		t.Fatal(err)
	}
	// Wait for the first progress block so the process is alive.
	select {
	case <-handle.Progress():
	case <-time.After(5 * time.Second):
		t.Fatal("no progress before kill")
	}

	if err := handle.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case err := <-handle.Done():
		if err == nil {
			t.Fatal("killed process must report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after kill")
	}
	// Idempotent.
	if err := handle.Kill(); err != nil {
		t.Fatalf("second kill: %v", err)
	}
}

func TestStartRejectsEmptySpec(t *testing.T) {
	if _, err := NewCLI().Start(context.Background(), EncodeSpec{}); err == nil {
		t.Fatal("expected error for empty spec")
	}
}
