// Package database is the durable store for video and user records,
// backed by SQLite in WAL mode.
//
// Video status updates are guarded at the SQL layer: a record can only
// move uploaded -> processing -> completed/failed, progress can never
// decrease, and terminal records reject further pipeline writes. The
// guards make the store safe against out-of-order writes even though the
// pipeline is the single writer for any given record.
package database
