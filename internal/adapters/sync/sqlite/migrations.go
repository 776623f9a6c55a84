package sqlite

import (
	"database/sql"
	"fmt"
)

// migration is one versioned schema change.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations lists every schema change in the order it is applied.
var migrations = []migration{
	{1, "create_kv_store_table", createKVStoreTable},
	{2, "create_queued_writes_table", createQueuedWritesTable},
	{3, "create_queued_writes_indices", createQueuedWritesIndices},
}

// SchemaVersion is the version of the newest migration.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// applyMigrations applies all database migrations in order.
func applyMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		// Each migration and its bookkeeping row commit together.
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("could not begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("could not commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// createMigrationsTable creates the migrations tracking table.
func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// isMigrationApplied checks if a migration has been applied.
func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Migration SQL statements

const createKVStoreTable = `
CREATE TABLE kv_store (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// seq is the replay order. enqueued_at_ms only drives expiry.
const createQueuedWritesTable = `
CREATE TABLE queued_writes (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	method TEXT NOT NULL,
	target_url TEXT NOT NULL,
	body TEXT,
	enqueued_at_ms INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
);
`

const createQueuedWritesIndices = `
CREATE INDEX idx_queued_writes_enqueued_at ON queued_writes(enqueued_at_ms);
`
