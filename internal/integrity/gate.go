// Package integrity verifies the external encoder binaries against a
// shipped hash contract before any render work may execute them.
//
// Packaged builds fail closed: a digest mismatch or an uncovered binary
// rejects rendering. An explicit environment bypass downgrades the gate to
// a diagnostics-only mode in which rendering stays disabled but diagnostics
// collection, which never executes the encoder, remains available.
// Unpackaged development builds may resolve binaries from a bundled
// development directory and tolerate uncovered binaries.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"albumvideo/internal/config"
	"albumvideo/internal/fileutil"
	"albumvideo/internal/logging"
	"albumvideo/internal/services"
)

// BypassEnv is the emergency escape hatch. Setting it to "1" suppresses
// the fatal rejection on verification failure but forces diagnostics-only
// mode; it never silently restores rendering.
const BypassEnv = "ALBUMVIDEO_INTEGRITY_BYPASS"

// Mode describes what the gate permits after verification.
type Mode string

const (
	// ModeFull permits rendering and diagnostics.
	ModeFull Mode = "full"
	// ModeDiagnosticsOnly permits diagnostics collection only. Entered
	// via the bypass flag after a verification failure.
	ModeDiagnosticsOnly Mode = "diagnostics-only"
)

// Record is the verification outcome for one binary.
type Record struct {
	Name           string
	BinaryPath     string
	ExpectedDigest string
	ActualDigest   string
	Verified       bool
	Bypassed       bool

	size    int64
	modTime time.Time
}

// Result is the outcome of a full verification pass.
type Result struct {
	Mode    Mode
	Records []Record
}

// RenderingAllowed reports whether the gate permits spawning the encoder.
func (r *Result) RenderingAllowed() bool {
	return r != nil && r.Mode == ModeFull
}

// Gate verifies encoder binaries and caches the outcome for cheap
// re-checks before each render.
type Gate struct {
	cfg      *config.Config
	manifest *Manifest
	packaged bool
	logger   *slog.Logger

	mu     sync.Mutex
	result *Result
}

// NewGate builds a gate from the configuration. The manifest comes from
// integrity.manifest_path when set, otherwise from the embedded contract.
// packaged marks a packaged build, which forbids the development fallback
// and treats uncovered binaries as failures.
func NewGate(cfg *config.Config, packaged bool, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var (
		manifest *Manifest
		err      error
	)
	if cfg.Integrity.ManifestPath != "" {
		manifest, err = LoadManifest(cfg.Integrity.ManifestPath)
	} else {
		manifest, err = EmbeddedManifest()
	}
	if err != nil {
		return nil, err
	}
	return &Gate{
		cfg:      cfg,
		manifest: manifest,
		packaged: packaged,
		logger:   logger.With(logging.String(logging.FieldComponent, "integrity")),
	}, nil
}

// Verify checks every encoder binary against the manifest. It runs fully
// before any side effect: no process is spawned and no file is written.
// The result is cached for Recheck.
func (g *Gate) Verify(ctx context.Context) (*Result, error) {
	binaries := map[string]string{
		"ffmpeg":  g.cfg.FFmpegBinary(),
		"ffprobe": g.cfg.FFprobeBinary(),
	}

	result := &Result{Mode: ModeFull}
	var failure error
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		record, err := g.verifyBinary(ctx, name, binaries[name])
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, record)
		if !record.Verified && failure == nil && g.mustVerify(record) {
			failure = services.Wrap(services.ErrIntegrity, "integrity", "verify "+name,
				"reinstall the application or restore the expected binary",
				fmt.Errorf("digest mismatch for %s", record.BinaryPath))
		}
	}

	if failure != nil {
		if bypassRequested() {
			result.Mode = ModeDiagnosticsOnly
			for i := range result.Records {
				if !result.Records[i].Verified {
					result.Records[i].Bypassed = true
				}
			}
			g.logger.WarnContext(ctx, "integrity verification bypassed via environment flag",
				logging.String("env", BypassEnv),
				logging.String("mode", string(ModeDiagnosticsOnly)))
		} else {
			return nil, failure
		}
	}

	g.mu.Lock()
	g.result = result
	g.mu.Unlock()
	return result, nil
}

// Recheck revalidates the cached result before a render. Binaries whose
// size and modification time are unchanged keep their cached digest;
// anything else triggers a full Verify.
func (g *Gate) Recheck(ctx context.Context) (*Result, error) {
	g.mu.Lock()
	cached := g.result
	g.mu.Unlock()
	if cached == nil {
		return g.Verify(ctx)
	}
	for _, record := range cached.Records {
		info, err := os.Stat(record.BinaryPath)
		if err != nil || info.Size() != record.size || !info.ModTime().Equal(record.modTime) {
			g.logger.InfoContext(ctx, "binary changed since last verification, re-verifying",
				logging.String("binary", record.BinaryPath))
			return g.Verify(ctx)
		}
	}
	return cached, nil
}

func (g *Gate) verifyBinary(ctx context.Context, name, command string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	path, err := g.resolveBinary(name, command)
	if err != nil {
		return Record{}, err
	}

	record := Record{Name: name, BinaryPath: path}
	if info, err := os.Stat(path); err == nil {
		record.size = info.Size()
		record.modTime = info.ModTime()
	}

	digest, err := fileutil.HashFile(path)
	if err != nil {
		return Record{}, services.Wrap(services.ErrIntegrity, "integrity", "hash "+name, "", err)
	}
	record.ActualDigest = digest

	expected, covered := g.manifest.ExpectedDigest(name)
	if covered {
		record.ExpectedDigest = expected
		record.Verified = digest == expected
	} else {
		// Uncovered binaries are tolerated only in unpackaged builds;
		// mustVerify turns this into a failure when packaged.
		record.Verified = false
		g.logger.WarnContext(ctx, "binary not covered by integrity manifest",
			logging.String("binary", path))
	}

	if record.Verified {
		g.logger.DebugContext(ctx, "binary verified",
			logging.String("binary", path),
			logging.String("sha256", digest))
	}
	return record, nil
}

// mustVerify reports whether an unverified record fails the gate. A
// packaged build always fails; a development build tolerates binaries the
// manifest does not cover but still fails on an explicit digest mismatch.
func (g *Gate) mustVerify(record Record) bool {
	if g.packaged {
		return true
	}
	return record.ExpectedDigest != ""
}

// resolveBinary locates the executable. Absolute or relative paths are
// used as given; bare names go through PATH, with a development-directory
// fallback in unpackaged builds only.
func (g *Gate) resolveBinary(name, command string) (string, error) {
	if strings.ContainsRune(command, os.PathSeparator) {
		if _, err := os.Stat(command); err != nil {
			return "", services.Wrap(services.ErrConfiguration, "integrity", "resolve "+name,
				"check the encoder binary path in the configuration", err)
		}
		return command, nil
	}
	if path, err := exec.LookPath(command); err == nil {
		return path, nil
	}
	if !g.packaged {
		candidate := filepath.Join(g.cfg.Encoder.DevToolsDir, command)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", services.Wrap(services.ErrConfiguration, "integrity", "resolve "+name,
		fmt.Sprintf("install %s or set its path in the configuration", command),
		fmt.Errorf("binary %q not found", command))
}

func bypassRequested() bool {
	return strings.TrimSpace(os.Getenv(BypassEnv)) == "1"
}
