package orchestrator

import (
	"context"

	"albumvideo/internal/ledger"
	"albumvideo/internal/logging"
	"albumvideo/internal/report"
)

// CollectDiagnostics writes a diagnostics bundle. It never executes the
// encoder, so it stays available in diagnostics-only integrity mode.
func (o *Orchestrator) CollectDiagnostics(ctx context.Context, configPath string) (string, error) {
	bundle := &report.Diagnostics{
		SessionLog: logging.SessionLogPath(o.cfg.Paths.LogDir),
		ConfigPath: configPath,
		LedgerPath: o.store.Path(),
	}

	if result, err := o.gate.Recheck(ctx); err == nil {
		bundle.IntegrityMode = string(result.Mode)
		for _, record := range result.Records {
			bundle.Binaries = append(bundle.Binaries, report.Binary{
				Name:     record.Name,
				Path:     record.BinaryPath,
				SHA256:   record.ActualDigest,
				Verified: record.Verified,
				Bypassed: record.Bypassed,
			})
		}
	} else {
		bundle.IntegrityMode = "verification-failed"
	}

	if orphans, err := o.store.ListIncomplete(ctx); err == nil {
		bundle.OrphanEntries = len(orphans)
	}

	path, err := report.WriteDiagnostics(o.cfg.Paths.LogDir, bundle)
	if err != nil {
		return "", err
	}
	o.logger.Info("diagnostics bundle written", logging.String("path", path))
	return path, nil
}

// RecoveryReport re-exposes the ledger recovery outcome type for callers
// that surface startup results.
type RecoveryReport = ledger.RecoveryReport
