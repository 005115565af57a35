// Package store manages session persistence backed by SQLite.
//
// It owns the session status state machine, the audio track inventory, and
// the transcript and summary records produced by the processing pipeline.
// Rows are keyed by UUID and timestamps are stored as RFC 3339 strings so the
// database stays portable and inspectable with the sqlite3 shell.
package store
