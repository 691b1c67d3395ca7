package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"albumvideo/internal/config"
	"albumvideo/internal/logging"
)

const lastExportDirKey = "last_export_dir"

// Store manages job ledger persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, logger: logger.With(logging.String(logging.FieldComponent, "ledger"))}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a live entry for a job that has committed past planning.
func (s *Store) Create(ctx context.Context, jobID, phase string, outputPaths []string) (*Entry, error) {
	now := time.Now().UTC()
	pathsJSON, err := json.Marshal(outputPaths)
	if err != nil {
		return nil, fmt.Errorf("marshal output paths: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO ledger_entries (
            job_id, schema_version, phase, output_paths, created_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, NULL)`,
		jobID,
		SchemaVersion,
		phase,
		string(pathsJSON),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	s.logger.InfoContext(ctx, "ledger entry created",
		logging.String(logging.FieldEventType, "ledger-created"),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldPhase, phase))
	return s.GetByJobID(ctx, jobID)
}

// UpdatePhase records a committed phase transition for a live entry.
func (s *Store) UpdatePhase(ctx context.Context, jobID, phase string) error {
	res, err := s.db.ExecContext(
		ctx,
		"UPDATE ledger_entries SET phase = ? WHERE job_id = ?",
		phase, jobID,
	)
	if err != nil {
		return fmt.Errorf("update ledger phase: %w", err)
	}
	return requireRow(res, jobID)
}

// SetOutputPaths replaces the recorded output artifact paths for a job.
// During encoding these point at temporary staging files; finalize swaps
// them for the exported locations.
func (s *Store) SetOutputPaths(ctx context.Context, jobID string, outputPaths []string) error {
	pathsJSON, err := json.Marshal(outputPaths)
	if err != nil {
		return fmt.Errorf("marshal output paths: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		"UPDATE ledger_entries SET output_paths = ? WHERE job_id = ?",
		string(pathsJSON), jobID,
	)
	if err != nil {
		return fmt.Errorf("update ledger output paths: %w", err)
	}
	return requireRow(res, jobID)
}

// MarkCompleted stamps the entry's completion timestamp. A completed
// entry is no longer an orphan candidate at startup.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		"UPDATE ledger_entries SET completed_at = ? WHERE job_id = ?",
		now.Format(time.RFC3339Nano), jobID,
	)
	if err != nil {
		return fmt.Errorf("mark ledger entry completed: %w", err)
	}
	if err := requireRow(res, jobID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "ledger entry completed",
		logging.String(logging.FieldEventType, "ledger-completed"),
		logging.String(logging.FieldJobID, jobID))
	return nil
}

// Delete removes an entry. Used by recovery after orphan cleanup and by
// terminal failure paths once their artifacts are gone.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM ledger_entries WHERE job_id = ?", jobID); err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	return nil
}

// GetByJobID fetches a single entry.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT job_id, schema_version, phase, output_paths, created_at, completed_at
         FROM ledger_entries WHERE job_id = ?`,
		jobID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListIncomplete returns every decodable entry lacking a completion
// timestamp. Entries with an unsupported schema version are logged and
// skipped rather than failing the scan.
func (s *Store) ListIncomplete(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT job_id, schema_version, phase, output_paths, created_at, completed_at
         FROM ledger_entries WHERE completed_at IS NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query incomplete entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable ledger entry", logging.Error(err))
			continue
		}
		if entry.SchemaVersion != SchemaVersion {
			s.logger.WarnContext(ctx, "skipping ledger entry with unsupported schema version",
				logging.String(logging.FieldJobID, entry.JobID),
				logging.Int("schema_version", entry.SchemaVersion))
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incomplete entries: %w", err)
	}
	return entries, nil
}

// LastExportDir returns the remembered export folder, empty when never set.
func (s *Store) LastExportDir(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM ledger_settings WHERE key = ?", lastExportDirKey)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read last export dir: %w", err)
	}
	return value, nil
}

// SetLastExportDir remembers the export folder chosen for the latest render.
func (s *Store) SetLastExportDir(ctx context.Context, dir string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ledger_settings (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastExportDirKey, dir,
	)
	if err != nil {
		return fmt.Errorf("store last export dir: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry       Entry
		pathsJSON   string
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&entry.JobID, &entry.SchemaVersion, &entry.Phase, &pathsJSON, &createdAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	if pathsJSON != "" {
		if err := json.Unmarshal([]byte(pathsJSON), &entry.OutputPaths); err != nil {
			return nil, fmt.Errorf("decode output paths for %s: %w", entry.JobID, err)
		}
	}
	parsedCreated, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", entry.JobID, err)
	}
	entry.CreatedAt = parsedCreated
	if completedAt.Valid {
		parsed, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at for %s: %w", entry.JobID, err)
		}
		entry.CompletedAt = &parsed
	}
	return &entry, nil
}

func requireRow(res sql.Result, jobID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no ledger entry for job %s", jobID)
	}
	return nil
}
