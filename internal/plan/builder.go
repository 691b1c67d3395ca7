// Package plan turns an untrusted render request into a validated,
// absolute, filesystem-safe plan. Every check fails closed: any ambiguity
// in path resolution rejects the request before a single directory is
// created or process spawned.
package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"albumvideo/internal/media/ffprobe"
	"albumvideo/internal/services"
	"albumvideo/internal/textutil"
)

// OutputExtension is the container extension for every rendered track.
const OutputExtension = ".mp4"

// Request is the untrusted input to the builder. All paths must be
// absolute; nothing in the request is trusted until resolved.
type Request struct {
	// ExportFolder is the user-chosen destination base.
	ExportFolder string
	// AlbumName names the optional per-album subfolder and prefixes output
	// files. Sanitized before use.
	AlbumName string
	// AudioPaths are the source tracks, in render order.
	AudioPaths []string
	// ImagePath is the static cover image shared by every track.
	ImagePath string
	// CreateAlbumFolder requests a per-album subfolder under ExportFolder.
	CreateAlbumFolder bool
}

// Track is one validated render unit.
type Track struct {
	Index               int
	AudioPath           string
	ImagePath           string
	OutputPath          string
	AudioCodec          string
	AudioCopyCompatible bool
	DurationSeconds     float64
}

// Plan is the immutable output of a successful build. The orchestrator
// consumes it verbatim; nothing revalidates or mutates it afterward.
type Plan struct {
	ExportFolder      string
	AlbumFolder       string
	CreateAlbumFolder bool
	Tracks            []Track
}

// OutputPaths returns every destination path in track order.
func (p *Plan) OutputPaths() []string {
	paths := make([]string, len(p.Tracks))
	for i, track := range p.Tracks {
		paths[i] = track.OutputPath
	}
	return paths
}

// Prober detects the audio codec and duration of a source file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// CancelCheck is invoked between resolution steps so a cancellation
// requested during planning is observed before any encoder spawns. A
// non-nil return aborts the build.
type CancelCheck func() error

// Builder validates render requests.
type Builder struct {
	prober Prober
}

// NewBuilder returns a builder using the given prober for codec detection.
func NewBuilder(prober Prober) *Builder {
	return &Builder{prober: prober}
}

// Build resolves and validates the request into an immutable plan.
// cancelCheck may be nil.
func (b *Builder) Build(ctx context.Context, req Request, cancelCheck CancelCheck) (*Plan, error) {
	check := func() error {
		if cancelCheck != nil {
			if err := cancelCheck(); err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	if len(req.AudioPaths) == 0 {
		return nil, validationErr("validate request", "select at least one audio track", errors.New("no audio tracks"))
	}

	exportBase, err := resolveExistingDir("export folder", req.ExportFolder)
	if err != nil {
		return nil, err
	}
	if err := check(); err != nil {
		return nil, err
	}

	albumName := textutil.SanitizeFileName(req.AlbumName)
	destination := exportBase
	albumFolder := ""
	if req.CreateAlbumFolder {
		// Checked before sanitation: rewriting a traversal attempt into a
		// flat name would silently change where the outputs land.
		if err := rejectPathSegments("album name", req.AlbumName); err != nil {
			return nil, err
		}
		if albumName == "" {
			return nil, validationErr("resolve album folder", "provide an album name", errors.New("album name empty after sanitation"))
		}
		albumFolder = filepath.Join(exportBase, albumName)
		if err := ensureContained(exportBase, albumFolder); err != nil {
			return nil, err
		}
		destination = albumFolder
	}
	if err := check(); err != nil {
		return nil, err
	}

	if err := probeWritable(exportBase); err != nil {
		return nil, err
	}
	if err := check(); err != nil {
		return nil, err
	}

	imagePath, err := resolveReadableFile("cover image", req.ImagePath)
	if err != nil {
		return nil, err
	}
	imageProbe, err := b.prober.Inspect(ctx, imagePath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "plan", "probe cover image", "", err)
	}
	if !imageProbe.HasVideoStream() {
		return nil, validationErr("probe cover image",
			fmt.Sprintf("%s carries no decodable image stream", imagePath), errors.New("no video stream"))
	}
	if err := check(); err != nil {
		return nil, err
	}

	plan := &Plan{
		ExportFolder:      exportBase,
		AlbumFolder:       albumFolder,
		CreateAlbumFolder: req.CreateAlbumFolder,
	}

	seen := make(map[string]int)
	for i, audioPath := range req.AudioPaths {
		if err := check(); err != nil {
			return nil, err
		}

		resolved, err := resolveReadableFile("audio track", audioPath)
		if err != nil {
			return nil, err
		}

		probe, err := b.prober.Inspect(ctx, resolved)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "plan", "probe audio track", "", err)
		}
		codec := probe.AudioCodec()
		if probe.AudioStreamCount() == 0 {
			return nil, validationErr("probe audio track",
				fmt.Sprintf("%s carries no audio stream", resolved), errors.New("no audio stream"))
		}

		baseName := outputBaseName(albumName, resolved, i)
		if prev, dup := seen[baseName]; dup {
			return nil, validationErr("resolve output names",
				fmt.Sprintf("tracks %d and %d both resolve to %q", prev+1, i+1, baseName+OutputExtension),
				errors.New("output name collision"))
		}
		seen[baseName] = i

		plan.Tracks = append(plan.Tracks, Track{
			Index:               i,
			AudioPath:           resolved,
			ImagePath:           imagePath,
			OutputPath:          filepath.Join(destination, baseName+OutputExtension),
			AudioCodec:          codec,
			AudioCopyCompatible: CopyCompatible(codec),
			DurationSeconds:     probe.DurationSeconds(),
		})
	}

	return plan, nil
}

// outputBaseName derives the sanitized output file base for one track.
func outputBaseName(albumName, audioPath string, index int) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	base = textutil.SanitizeFileName(base)
	if base == "" {
		base = fmt.Sprintf("track%02d", index+1)
	}
	if albumName != "" {
		return albumName + " - " + base
	}
	return base
}

// ResolveExistingDir applies the same hardening as the export folder to
// any remembered directory, such as the last-used export folder restored
// at startup. A stale or dangling remembered path resolves to an error
// instead of being trusted.
func ResolveExistingDir(label, path string) (string, error) {
	return resolveExistingDir(label, path)
}

// resolveExistingDir rejects non-absolute paths, resolves symlinks and
// dot segments, and requires the result to name an existing directory.
func resolveExistingDir(label, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", validationErr("resolve "+label, "choose a destination folder", errors.New("path empty"))
	}
	if !filepath.IsAbs(path) {
		return "", validationErr("resolve "+label, "", fmt.Errorf("path %q is not absolute", path))
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", validationErr("resolve "+label, "", fmt.Errorf("resolve %q: %w", path, err))
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", validationErr("resolve "+label, "", fmt.Errorf("stat %q: %w", resolved, err))
	}
	if !info.IsDir() {
		return "", validationErr("resolve "+label, "", fmt.Errorf("%q is not a directory", resolved))
	}
	return resolved, nil
}

// resolveReadableFile rejects non-absolute paths and requires an
// existing, readable regular file after symlink resolution.
func resolveReadableFile(label, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", validationErr("resolve "+label, "", errors.New("path empty"))
	}
	if !filepath.IsAbs(path) {
		return "", validationErr("resolve "+label, "", fmt.Errorf("path %q is not absolute", path))
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", validationErr("resolve "+label, "", fmt.Errorf("resolve %q: %w", path, err))
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", validationErr("resolve "+label, "", fmt.Errorf("stat %q: %w", resolved, err))
	}
	if !info.Mode().IsRegular() {
		return "", validationErr("resolve "+label, "", fmt.Errorf("%q is not a regular file", resolved))
	}
	if err := unix.Access(resolved, unix.R_OK); err != nil {
		return "", validationErr("resolve "+label, "", fmt.Errorf("%q is not readable: %w", resolved, err))
	}
	return resolved, nil
}

// rejectPathSegments fails closed on names that smuggle path structure.
// Sanitation would flatten separators into dashes, which silently changes
// where outputs land instead of rejecting the request.
func rejectPathSegments(label, name string) error {
	trimmed := strings.TrimSpace(name)
	if strings.ContainsAny(trimmed, `/\`) {
		return validationErr("resolve "+label, "",
			fmt.Errorf("%s %q must not contain path separators", label, name))
	}
	if trimmed == "." || trimmed == ".." {
		return validationErr("resolve "+label, "",
			fmt.Errorf("%s %q is not a usable folder name", label, name))
	}
	return nil
}

// ensureContained rejects a candidate that escapes its permitted base
// after resolution, closing directory traversal through the album name.
func ensureContained(base, candidate string) error {
	cleaned := filepath.Clean(candidate)
	if cleaned == base {
		return nil
	}
	rel, err := filepath.Rel(base, cleaned)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return validationErr("contain album folder", "",
			fmt.Errorf("%q escapes base %q", candidate, base))
	}
	return nil
}

// probeWritable checks write access on the destination before any
// encoder is spawned.
func probeWritable(dir string) error {
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return validationErr("probe writability",
			fmt.Sprintf("grant write access to %s or choose another folder", dir),
			fmt.Errorf("%q is not writable: %w", dir, err))
	}
	return nil
}

// EnsureNoClobber fails when the finalize destination already exists.
// Called immediately before the finalize rename; an existing file is
// never silently overwritten.
func EnsureNoClobber(path string) error {
	_, err := os.Lstat(path)
	if err == nil {
		return validationErr("finalize output",
			fmt.Sprintf("remove or rename the existing file at %s", path),
			fmt.Errorf("destination %q already exists", path))
	}
	if os.IsNotExist(err) {
		return nil
	}
	return services.Wrap(nil, "plan", "finalize output", "", err)
}

func validationErr(operation, hint string, err error) error {
	return services.Wrap(services.ErrValidation, "plan", operation, hint, err)
}
