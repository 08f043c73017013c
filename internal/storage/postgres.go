// internal/storage/postgres.go
package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var postgresQueries = queries{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS directory_entries (
			seq BIGSERIAL PRIMARY KEY,
			set_name TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			UNIQUE (set_name, entry_key)
		)`,
		`CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			handle TEXT NOT NULL,
			bot_user_id BIGINT NOT NULL,
			owner_id BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	},
	exists: `SELECT EXISTS (SELECT 1 FROM directory_entries WHERE set_name = $1 AND entry_key = $2)`,
	insert: `INSERT INTO directory_entries (set_name, entry_key) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
	list:   `SELECT entry_key FROM directory_entries WHERE set_name = $1 ORDER BY seq`,
	insertTenant: `
		INSERT INTO tenants (id, token, handle, bot_user_id, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
	listTenants: `
		SELECT id::text, token, handle, bot_user_id, owner_id, created_at
		FROM tenants
		ORDER BY created_at`,
}

// NewPostgresDirectory connects to dsn and creates the schema if needed.
func NewPostgresDirectory(dsn string) (*SQLDirectory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	dir, err := newSQLDirectory(db, postgresQueries)
	if err != nil {
		db.Close()
		return nil, err
	}
	return dir, nil
}
