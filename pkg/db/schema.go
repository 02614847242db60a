// Package db provides SQLite storage for sync run history and metadata.
package db

import "context"

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Sync runs table
-- One row per tricount-sync invocation that reached the import stage
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL,              -- RFC 3339
    finished_at TEXT NOT NULL,             -- RFC 3339
    registry_title TEXT NOT NULL DEFAULT '',
    imported INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    errored INTEGER NOT NULL DEFAULT 0,
    pruned INTEGER NOT NULL DEFAULT 0,
    reconcile_pages INTEGER NOT NULL DEFAULT 0,
    reconcile_partial INTEGER NOT NULL DEFAULT 0,
    dry_run INTEGER NOT NULL DEFAULT 0,
    abort_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started
    ON sync_runs(started_at);

-- Run outcomes table
-- Terminal outcome of every record processed in a run
CREATE TABLE IF NOT EXISTS run_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
    external_id TEXT NOT NULL,             -- resolved identity, '' when missing
    description TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,                 -- 'imported', 'skipped' or 'errored'
    reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_run_outcomes_run
    ON run_outcomes(run_id);

CREATE INDEX IF NOT EXISTS idx_run_outcomes_external_id
    ON run_outcomes(external_id);

-- Sync metadata table
-- Stores key-value metadata about sync operations
CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(ctx context.Context, conn *Connection) error {
	if _, err := conn.Exec(ctx, Schema); err != nil {
		return err
	}
	return nil
}
