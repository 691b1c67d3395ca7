package orchestrator

import (
	"context"
	"fmt"
	"time"

	"albumvideo/internal/services"
	"albumvideo/internal/services/ffmpeg"
)

// superviseTrack drives one encoder process to completion. It suspends
// awaiting the next of {progress, exit, watchdog timeout, cancellation}
// and resumes exactly once per event, never blocking on encoder I/O.
//
// The watchdog resets on every progress block; its expiry is the only
// preemptive termination path and always kills the encoder before the
// caller commits a terminal state.
func superviseTrack(ctx context.Context, job *Job, handle ffmpeg.Handle, watchdog time.Duration, onProgress func(ffmpeg.ProgressUpdate)) error {
	timer := time.NewTimer(watchdog)
	defer timer.Stop()

	progressCh := handle.Progress()
	for {
		select {
		case update, ok := <-progressCh:
			if !ok {
				// Stream closed; the exit result follows on Done.
				progressCh = nil
				continue
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(watchdog)
			if onProgress != nil {
				onProgress(update)
			}

		case err := <-handle.Done():
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "supervisor", "encode track", "", err)
			}
			return nil

		case <-timer.C:
			_ = handle.Kill()
			reapHandle(handle)
			return services.Wrap(services.ErrStalled, "supervisor", "encode track",
				fmt.Sprintf("no encoder progress for %s", watchdog),
				fmt.Errorf("watchdog expired after %s", watchdog))

		case <-job.cancelChan():
			_ = handle.Kill()
			reapHandle(handle)
			return services.Wrap(context.Canceled, "supervisor", "encode track", "cancelled by user", nil)

		case <-ctx.Done():
			_ = handle.Kill()
			reapHandle(handle)
			return services.Wrap(context.Canceled, "supervisor", "encode track", "context cancelled", nil)
		}
	}
}

// reapHandle drains the progress stream and collects the exit status of a
// killed process so no goroutine or zombie is left behind.
func reapHandle(handle ffmpeg.Handle) {
	for range handle.Progress() {
	}
	<-handle.Done()
}
