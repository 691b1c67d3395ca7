package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"

	"albumvideo/internal/engine"
	"albumvideo/internal/fileutil"
	"albumvideo/internal/logging"
	"albumvideo/internal/plan"
	"albumvideo/internal/services"
)

// finalize moves temporary outputs to their final paths through three
// ordered checkpoints: before the rename, after the rename, and (in the
// caller) immediately before reporting success. A cancellation observed
// here is never applied in place; the in-flight finalize always reaches a
// consistent state first.
//
// On the open question of retrying transient filesystem errors during the
// rename: there is no internal retry, the job fails.
func (o *Orchestrator) finalize(ctx context.Context, job *Job, renderPlan *plan.Plan, tempPaths []string, logger *slog.Logger) ([]string, error) {
	// A cancellation that landed after the last track finished is still
	// immediate: nothing has been renamed yet.
	if job.CancelRequested() {
		return nil, services.Wrap(context.Canceled, "orchestrator", "finalize", "cancelled before finalize", nil)
	}
	if err := o.transitionAndRecord(ctx, job, engine.StateFinalizing); err != nil {
		return nil, err
	}
	o.emit(job, Event{Phase: engine.StateFinalizing, TrackCount: len(renderPlan.Tracks), Message: "moving outputs"})

	// Checkpoint one: before any rename. The album folder must be in
	// place and each destination confirmed clear immediately before its
	// own rename, so a file appearing mid-finalize is never overwritten.
	if err := o.checkpoint(ctx, job, "pre-rename"); err != nil {
		return nil, err
	}
	if renderPlan.CreateAlbumFolder {
		if err := os.MkdirAll(renderPlan.AlbumFolder, 0o755); err != nil {
			return nil, services.Wrap(nil, "orchestrator", "create album folder", "", err)
		}
	}

	outputs := make([]string, len(renderPlan.Tracks))
	for i, track := range renderPlan.Tracks {
		if err := plan.EnsureNoClobber(track.OutputPath); err != nil {
			return nil, err
		}
		if err := moveFile(tempPaths[i], track.OutputPath); err != nil {
			return nil, services.Wrap(nil, "orchestrator", "finalize output",
				"partial outputs are cleaned up automatically", err)
		}
		outputs[i] = track.OutputPath
		logger.Info("output finalized",
			logging.Int(logging.FieldTrackIndex, i),
			logging.String("path", track.OutputPath))
	}

	// Checkpoint two: after the rename. The ledger now points at the
	// final locations so a crash past this point never orphans them.
	if err := o.checkpoint(ctx, job, "post-rename"); err != nil {
		return nil, err
	}
	if err := o.store.SetOutputPaths(ctx, job.ID, outputs); err != nil {
		return nil, services.Wrap(nil, "orchestrator", "record final outputs", "", err)
	}

	return outputs, nil
}

// moveFile renames src to dst, falling back to a verified copy when the
// staging and export directories sit on different filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := fileutil.CopyFileVerified(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return err
}
