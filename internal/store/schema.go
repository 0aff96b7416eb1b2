package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS windows (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id      TEXT NOT NULL,
		window_start TEXT NOT NULL,
		window_end   TEXT NOT NULL,
		CHECK (window_end >= window_start)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_windows_post ON windows(post_id, window_end)`,

	`CREATE TABLE IF NOT EXISTS samples (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		window_id   INTEGER NOT NULL REFERENCES windows(id),
		likes       INTEGER NOT NULL,
		comments    INTEGER NOT NULL,
		reposts     INTEGER NOT NULL,
		views       INTEGER NOT NULL,
		captured_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_samples_window ON samples(window_id, captured_at)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}

	return nil
}
