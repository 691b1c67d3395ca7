package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"albumvideo/internal/report"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "albumvideo "+report.Version)
}

func TestVersionCommandJSON(t *testing.T) {
	out, _, err := runCLI(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var build report.BuildInfo
	if err := json.Unmarshal([]byte(out), &build); err != nil {
		t.Fatalf("decode version output: %v", err)
	}
	if build.Version != report.Version {
		t.Fatalf("version = %q, want %q", build.Version, report.Version)
	}
}

func TestPresetsCommandListsBuiltins(t *testing.T) {
	out, _, err := runCLI(t, "presets")
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	requireContains(t, out, "default *")
	requireContains(t, out, "hevc")
	requireContains(t, out, "libx264")
}

func TestConfigInit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, "config", "init", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "wrote "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	// A second init without --force must refuse to clobber.
	if _, _, err := runCLI(t, "config", "init", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, _, err := runCLI(t, "config", "init", "--force", target); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

func TestConfigShowUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, _, err := runCLI(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "ffmpeg:")
	requireContains(t, out, "staging dir:")
}
