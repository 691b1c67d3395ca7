package ledger

import "time"

// SchemaVersion stamps every entry written by this build. Readers skip
// entries carrying a version they do not understand instead of failing
// the whole scan.
const SchemaVersion = 1

// Entry is one persisted job lifecycle record. At most one live entry
// exists per job. An entry with no CompletedAt found at startup is an
// orphan left behind by an unclean shutdown.
type Entry struct {
	JobID         string
	SchemaVersion int
	Phase         string
	OutputPaths   []string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Completed reports whether the entry has been stamped complete.
func (e *Entry) Completed() bool {
	return e != nil && e.CompletedAt != nil
}
