package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var sqliteQueries = queries{
	schema: []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS directory_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			set_name TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			UNIQUE (set_name, entry_key)
		)`,
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			handle TEXT NOT NULL,
			bot_user_id INTEGER NOT NULL,
			owner_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	},
	exists: `SELECT EXISTS (SELECT 1 FROM directory_entries WHERE set_name = ? AND entry_key = ?)`,
	insert: `INSERT INTO directory_entries (set_name, entry_key) VALUES (?, ?) ON CONFLICT DO NOTHING`,
	list:   `SELECT entry_key FROM directory_entries WHERE set_name = ? ORDER BY seq`,
	insertTenant: `
		INSERT INTO tenants (id, token, handle, bot_user_id, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
	listTenants: `
		SELECT id, token, handle, bot_user_id, owner_id, created_at
		FROM tenants
		ORDER BY created_at`,
}

// NewSQLiteDirectory opens (or creates) the database file at path.
func NewSQLiteDirectory(path string) (*SQLDirectory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	dir, err := newSQLDirectory(db, sqliteQueries)
	if err != nil {
		db.Close()
		return nil, err
	}
	return dir, nil
}
