package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneArchivedLogs removes rotated session logs older than retentionDays.
// The active session log is never touched. Individual removal failures are
// logged and skipped.
func PruneArchivedLogs(logDir string, retentionDays int, logger *slog.Logger) {
	if strings.TrimSpace(logDir) == "" || retentionDays <= 0 {
		return
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		logger.Warn("failed to scan log directory", Error(err), String("log_dir", logDir))
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == SessionLogName || !strings.HasPrefix(name, "albumvideo-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(logDir, name)
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to prune archived log", Error(err), String("path", path))
			continue
		}
		logger.Debug("pruned archived log", String("path", path))
	}
}
