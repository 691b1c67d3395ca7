package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"albumvideo/internal/engine"
	"albumvideo/internal/orchestrator"
	"albumvideo/internal/services"
)

func newRenderCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		exportDir   string
		albumName   string
		imagePath   string
		presetName  string
		albumFolder bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "render --image cover.png [flags] audio...",
		Short: "Render each audio track into a video file",
		Long: `Render drives one job to completion: every audio file becomes one
video with the cover image as its static visual track. Interrupting with
Ctrl-C cancels the job; partial outputs are removed, finished outputs are
never touched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := cmdCtx.buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer stack.close()

			audioPaths, err := absolutePaths(args)
			if err != nil {
				return err
			}
			image, err := filepath.Abs(imagePath)
			if err != nil {
				return fmt.Errorf("resolve image path: %w", err)
			}
			export := exportDir
			if export != "" {
				if export, err = filepath.Abs(export); err != nil {
					return fmt.Errorf("resolve export dir: %w", err)
				}
			}

			req := orchestrator.Request{
				ExportFolder:      export,
				AlbumName:         albumName,
				AudioPaths:        audioPaths,
				ImagePath:         image,
				CreateAlbumFolder: albumFolder,
				Preset:            presetName,
			}

			sub := stack.service.Subscribe(64)
			defer sub.Close()
			progressDone := make(chan struct{})
			go func() {
				defer close(progressDone)
				renderProgress(cmd, sub.Events())
			}()

			// Ctrl-C requests cancellation; a second Ctrl-C aborts hard
			// because the handler is removed after the first signal,
			// restoring the default disposition.
			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(cmd.ErrOrStderr(), "cancelling render...")
					stack.service.Cancel()
					signal.Stop(sigCh)
				case <-cmd.Context().Done():
				}
			}()

			result, err := stack.service.Submit(cmd.Context(), req)
			sub.Close()
			<-progressDone
			if err != nil {
				return renderFailure(cmd, err, jsonOutput)
			}
			return renderSuccess(cmd, result, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&exportDir, "export-dir", "", "Destination folder (defaults to the last-used folder)")
	cmd.Flags().StringVar(&albumName, "album", "", "Album name used for file naming")
	cmd.Flags().StringVar(&imagePath, "image", "", "Cover image shared by every track")
	cmd.Flags().StringVar(&presetName, "preset", "", "Encoder preset (see `albumvideo presets`)")
	cmd.Flags().BoolVar(&albumFolder, "album-folder", false, "Create a per-album subfolder under the destination")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the result as JSON")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func absolutePaths(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", p, err)
		}
		out[i] = abs
	}
	return out, nil
}

// renderProgress prints pushed events until the subscription closes. On a
// TTY the encoding line is rewritten in place.
func renderProgress(cmd *cobra.Command, events <-chan orchestrator.Event) {
	out := cmd.OutOrStdout()
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}

	var lastPhase engine.State
	for event := range events {
		switch event.Phase {
		case engine.StateEncoding:
			if tty {
				fmt.Fprintf(out, "\rtrack %d/%d  %5.1f%%", event.TrackIndex+1, event.TrackCount, event.Percent)
			} else if event.Phase != lastPhase {
				fmt.Fprintf(out, "encoding %d track(s)\n", event.TrackCount)
			}
		default:
			if tty && lastPhase == engine.StateEncoding {
				fmt.Fprintln(out)
			}
			if event.Message != "" {
				fmt.Fprintln(out, event.Message)
			}
		}
		lastPhase = event.Phase
	}
	if tty && lastPhase == engine.StateEncoding {
		fmt.Fprintln(out)
	}
}

func renderSuccess(cmd *cobra.Command, result *orchestrator.Result, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(cmd, map[string]any{
			"job_id":  result.JobID,
			"report":  result.ReportPath,
			"outputs": result.OutputPaths,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rendered %d file(s)\n", len(result.OutputPaths))
	for _, path := range result.OutputPaths {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", result.ReportPath)
	return nil
}

func renderFailure(cmd *cobra.Command, err error, jsonOutput bool) error {
	reason := services.ReasonCode(err)
	if jsonOutput {
		_ = writeJSON(cmd, map[string]any{
			"reason": reason,
			"error":  err.Error(),
		})
		return err
	}
	if reason == services.ReasonCancelled {
		fmt.Fprintln(cmd.OutOrStdout(), "render cancelled")
		return context.Canceled
	}
	return fmt.Errorf("render failed (%s): %w", reason, err)
}
