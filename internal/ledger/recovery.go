package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"albumvideo/internal/logging"
)

// RecoveryReport summarizes one startup recovery pass.
type RecoveryReport struct {
	// Detected counts orphan entries found.
	Detected int
	// Cleaned counts orphan entries fully removed.
	Cleaned int
	// ArtifactFailures counts partial outputs that could not be deleted.
	// These never block removal of the owning entry.
	ArtifactFailures int
}

// Recover scans the ledger for orphan entries left by an unclean shutdown,
// deletes their partial output artifacts on a best-effort basis, and removes
// the entries. It must complete before any new render is accepted.
//
// Recovery is entry-isolated: a cleanup failure for one entry is logged and
// does not block recovery of the others.
func Recover(ctx context.Context, store *Store, logger *slog.Logger) (RecoveryReport, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "recovery"))

	var report RecoveryReport

	orphans, err := store.ListIncomplete(ctx)
	if err != nil {
		return report, fmt.Errorf("scan ledger for orphans: %w", err)
	}
	report.Detected = len(orphans)
	if len(orphans) == 0 {
		logger.InfoContext(ctx, "no orphaned ledger entries found")
		return report, nil
	}

	for _, orphan := range orphans {
		logger.WarnContext(ctx, "orphaned ledger entry detected",
			logging.String(logging.FieldEventType, "recovery-detected"),
			logging.String(logging.FieldJobID, orphan.JobID),
			logging.String(logging.FieldPhase, orphan.Phase),
			logging.Int("output_paths", len(orphan.OutputPaths)))

		for _, artifact := range orphan.OutputPaths {
			if err := removeArtifact(artifact); err != nil {
				report.ArtifactFailures++
				logger.WarnContext(ctx, "failed to remove partial output",
					logging.String(logging.FieldJobID, orphan.JobID),
					logging.String("path", artifact),
					logging.Error(err))
			}
		}

		if err := store.Delete(ctx, orphan.JobID); err != nil {
			logger.WarnContext(ctx, "failed to remove orphaned ledger entry",
				logging.String(logging.FieldJobID, orphan.JobID),
				logging.Error(err))
			continue
		}
		report.Cleaned++
		logger.InfoContext(ctx, "orphaned ledger entry cleaned",
			logging.String(logging.FieldEventType, "recovery-cleaned"),
			logging.String(logging.FieldJobID, orphan.JobID))
	}

	return report, nil
}

func removeArtifact(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
