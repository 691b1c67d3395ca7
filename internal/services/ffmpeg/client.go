// Package ffmpeg wraps the external ffmpeg binary for still-image video
// renders. Each track is encoded by one supervised ffmpeg process whose
// machine-readable progress stream is forwarded over a channel, so the
// supervisor can react to progress, exit, stall, and cancellation as a
// single ordered event stream.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// FrameRate is the fixed output frame rate. The visual track is a static
// image, so one frame per second keeps files small without visible cost.
const FrameRate = 1

var commandContext = exec.CommandContext

// ProgressUpdate is one parsed block of the ffmpeg -progress stream.
type ProgressUpdate struct {
	// OutTime is the media timestamp encoded so far.
	OutTime time.Duration
	// TotalSizeBytes is the number of output bytes written so far.
	TotalSizeBytes int64
	// Speed is ffmpeg's reported encode speed, e.g. "32.5x".
	Speed string
	// End marks the final block of the stream.
	End bool
}

// EncodeSpec describes one track render.
type EncodeSpec struct {
	AudioPath  string
	ImagePath  string
	OutputPath string
	// VideoArgs come from the selected preset.
	VideoArgs []string
	// CopyAudio stream-copies the audio instead of transcoding it.
	CopyAudio bool
}

// Handle supervises one running ffmpeg process.
type Handle interface {
	// Progress delivers parsed progress blocks. Closed when the stream ends.
	Progress() <-chan ProgressUpdate
	// Done delivers the process exit result exactly once.
	Done() <-chan error
	// Kill force-terminates the process. Safe to call more than once and
	// after exit.
	Kill() error
}

// Client starts encoder processes.
type Client interface {
	Start(ctx context.Context, spec EncodeSpec) (Handle, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// CLI drives the ffmpeg command-line binary.
type CLI struct {
	binary string
}

// NewCLI constructs a client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// BuildArgs assembles the full ffmpeg argument list for a spec. Exposed
// for the diagnostics bundle, which records the exact command line.
func (c *CLI) BuildArgs(spec EncodeSpec) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-loop", "1", "-framerate", strconv.Itoa(FrameRate),
		"-i", spec.ImagePath,
		"-i", spec.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
	}
	args = append(args, spec.VideoArgs...)
	if spec.CopyAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args,
		"-r", strconv.Itoa(FrameRate),
		"-shortest",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		spec.OutputPath,
	)
	return args
}

// Start validates the spec and launches ffmpeg. The returned handle owns
// the process; the caller must drain Done exactly once.
func (c *CLI) Start(ctx context.Context, spec EncodeSpec) (Handle, error) {
	if spec.AudioPath == "" || spec.ImagePath == "" || spec.OutputPath == "" {
		return nil, errors.New("ffmpeg start: audio, image, and output paths required")
	}

	cmd := commandContext(ctx, c.binary, c.BuildArgs(spec)...) //nolint:gosec
	// Own process group, so Kill reaches helper children that would
	// otherwise survive and hold the progress pipe open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	h := &process{
		cmd:      cmd,
		stderr:   &stderr,
		progress: make(chan ProgressUpdate, 16),
		done:     make(chan error, 1),
	}
	go h.pump(stdout)
	return h, nil
}

var _ Client = (*CLI)(nil)

type process struct {
	cmd      *exec.Cmd
	stderr   *bytes.Buffer
	progress chan ProgressUpdate
	done     chan error

	killMu sync.Mutex
	killed bool
}

func (p *process) Progress() <-chan ProgressUpdate { return p.progress }
func (p *process) Done() <-chan error              { return p.done }

func (p *process) Kill() error {
	p.killMu.Lock()
	defer p.killMu.Unlock()
	if p.killed {
		return nil
	}
	p.killed = true
	if p.cmd.Process == nil {
		return nil
	}
	// Signal the whole group; a fallback to the direct child covers the
	// window before the group leader has called Setpgid on itself.
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	err := p.cmd.Process.Kill()
	if err != nil && errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// pump reads the progress stream until EOF, then reaps the process.
func (p *process) pump(stdout io.Reader) {
	defer close(p.progress)

	scanner := bufio.NewScanner(stdout)
	block := ProgressUpdate{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				block.OutTime = time.Duration(us) * time.Microsecond
			}
		case "total_size":
			if size, err := strconv.ParseInt(value, 10, 64); err == nil {
				block.TotalSizeBytes = size
			}
		case "speed":
			block.Speed = strings.TrimSpace(value)
		case "progress":
			block.End = value == "end"
			// Never block the pump on a slow or departed consumer; a
			// dropped progress block is harmless.
			select {
			case p.progress <- block:
			default:
			}
			block = ProgressUpdate{OutTime: block.OutTime, TotalSizeBytes: block.TotalSizeBytes}
		}
	}

	err := p.cmd.Wait()
	if err != nil {
		if tail := tailLines(p.stderr.String(), 5); tail != "" {
			err = fmt.Errorf("ffmpeg: %w: %s", err, tail)
		} else {
			err = fmt.Errorf("ffmpeg: %w", err)
		}
	}
	p.done <- err
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
