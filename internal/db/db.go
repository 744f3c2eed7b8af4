// Package db provides the database connection and schema for the capture
// ledger.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	dsn := dbPath + "?_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = dbPath
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Cycle ledger - append-only history of device events.
	// A cycle logs several rows (started, then completed or failed).
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cycle_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			cycle_id TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_type_ts ON cycle_ledger(event_type, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_cycle ON cycle_ledger(cycle_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create cycle_ledger table: %w", err)
	}

	// Only one terminal row per cycle: the first writer wins
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_cycle_terminal
		ON cycle_ledger(cycle_id)
		WHERE cycle_id IS NOT NULL AND cycle_id != ''
			AND event_type IN ('cycle_completed', 'cycle_failed');
	`)
	if err != nil {
		return fmt.Errorf("failed to create idx_ledger_cycle_terminal index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
