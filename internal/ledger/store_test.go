package ledger

import (
	"context"
	"testing"

	"albumvideo/internal/logging"
	"albumvideo/internal/testsupport"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(testsupport.NewConfig(t), logging.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndFetchEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry, err := store.Create(ctx, "job-1", "WARMING_UP", []string{"/tmp/a.mp4"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.JobID != "job-1" || entry.Phase != "WARMING_UP" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version = %d, want %d", entry.SchemaVersion, SchemaVersion)
	}
	if entry.Completed() {
		t.Fatal("new entry must not be completed")
	}
	if len(entry.OutputPaths) != 1 || entry.OutputPaths[0] != "/tmp/a.mp4" {
		t.Fatalf("output paths = %v", entry.OutputPaths)
	}
}

func TestPhaseAndOutputUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "job-1", "WARMING_UP", nil); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdatePhase(ctx, "job-1", "ENCODING"); err != nil {
		t.Fatalf("update phase: %v", err)
	}
	if err := store.SetOutputPaths(ctx, "job-1", []string{"/tmp/x.mp4", "/tmp/y.mp4"}); err != nil {
		t.Fatalf("set output paths: %v", err)
	}

	entry, err := store.GetByJobID(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Phase != "ENCODING" {
		t.Fatalf("phase = %s", entry.Phase)
	}
	if len(entry.OutputPaths) != 2 {
		t.Fatalf("output paths = %v", entry.OutputPaths)
	}

	if err := store.UpdatePhase(ctx, "missing", "ENCODING"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestMarkCompletedRemovesFromIncompleteScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "job-1", "ENCODING", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, "job-2", "ENCODING", nil); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkCompleted(ctx, "job-1"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	incomplete, err := store.ListIncomplete(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(incomplete) != 1 || incomplete[0].JobID != "job-2" {
		t.Fatalf("incomplete = %+v", incomplete)
	}

	entry, err := store.GetByJobID(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Completed() {
		t.Fatal("entry not completed")
	}
}

func TestUnsupportedSchemaVersionSkippedNotFatal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "job-old", "ENCODING", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.ExecContext(ctx,
		"UPDATE ledger_entries SET schema_version = 99 WHERE job_id = ?", "job-old"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, "job-new", "ENCODING", nil); err != nil {
		t.Fatal(err)
	}

	incomplete, err := store.ListIncomplete(ctx)
	if err != nil {
		t.Fatalf("scan must tolerate unknown versions: %v", err)
	}
	if len(incomplete) != 1 || incomplete[0].JobID != "job-new" {
		t.Fatalf("incomplete = %+v", incomplete)
	}
}

func TestGetByJobIDMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	entry, err := store.GetByJobID(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatalf("entry = %+v, want nil", entry)
	}
}

func TestLastExportDirRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir, err := store.LastExportDir(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dir != "" {
		t.Fatalf("unset value = %q", dir)
	}

	if err := store.SetLastExportDir(ctx, "/exports/one"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetLastExportDir(ctx, "/exports/two"); err != nil {
		t.Fatal(err)
	}
	dir, err = store.LastExportDir(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/exports/two" {
		t.Fatalf("last export dir = %q", dir)
	}
}
