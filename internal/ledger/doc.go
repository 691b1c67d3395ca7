// Package ledger persists job lifecycle records in SQLite so the renderer
// can restore a clean state after an unclean shutdown. Entries are
// schema-stamped; readers skip versions they do not understand. Startup
// recovery removes orphaned entries and their partial output artifacts
// before any new render is accepted.
package ledger
