// Package storage persists clipboard history in sqlite.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbFile = "clipkeeper.db"

type DB struct {
	conn *sql.DB
}

// Open opens the history database in configDir and initializes the schema
func Open(configDir string) (*DB, error) {
	return OpenPath(filepath.Join(configDir, dbFile))
}

// OpenPath opens the database file at dbPath
func OpenPath(dbPath string) (*DB, error) {
	// Capture and the web handlers write from different goroutines
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the database schema
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clipboard_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_type TEXT NOT NULL,
		content BLOB NOT NULL,

		-- Unix milliseconds; bumped when the same content is captured again
		created_at INTEGER NOT NULL,
		is_favorite BOOLEAN NOT NULL DEFAULT 0,

		-- sha256 hex of content; NULL for images and rows from before hashing
		content_hash TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_clipboard_items_created_at ON clipboard_items(created_at);
	CREATE INDEX IF NOT EXISTS idx_clipboard_items_hash ON clipboard_items(content_hash);
	CREATE INDEX IF NOT EXISTS idx_clipboard_items_favorite ON clipboard_items(is_favorite);
	`

	_, err := db.conn.Exec(schema)
	return err
}
