package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clonebot/internal/model"
)

// queries holds the dialect-specific statements of a SQL directory.
type queries struct {
	schema       []string
	exists       string
	insert       string
	list         string
	insertTenant string
	listTenants  string
}

// SQLDirectory is the database/sql backed Directory shared by the postgres
// and sqlite drivers. Timestamps are stored as unix nanoseconds.
type SQLDirectory struct {
	DB *sql.DB
	q  queries
}

func newSQLDirectory(db *sql.DB, q queries) (*SQLDirectory, error) {
	for _, stmt := range q.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLDirectory{DB: db, q: q}, nil
}

func (s *SQLDirectory) Exists(ctx context.Context, set model.Set, key string) (bool, error) {
	if err := checkSet(set); err != nil {
		return false, err
	}
	var found bool
	if err := s.DB.QueryRowContext(ctx, s.q.exists, string(set), key).Scan(&found); err != nil {
		return false, fmt.Errorf("exists %s: %w", set, err)
	}
	return found, nil
}

func (s *SQLDirectory) Insert(ctx context.Context, set model.Set, key string) error {
	if err := checkSet(set); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, s.q.insert, string(set), key); err != nil {
		return fmt.Errorf("insert into %s: %w", set, err)
	}
	return nil
}

func (s *SQLDirectory) List(ctx context.Context, set model.Set) ([]string, error) {
	if err := checkSet(set); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, s.q.list, string(set))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", set, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLDirectory) RegisterTenant(ctx context.Context, t model.Tenant) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q.insertTenant,
		t.ID.String(), t.Token, t.Handle, t.BotUserID, t.OwnerID, t.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert tenant %s: %w", t.Handle, err)
	}
	if _, err := tx.ExecContext(ctx, s.q.insert, string(model.SetTokens), t.Token); err != nil {
		return fmt.Errorf("insert into %s: %w", model.SetTokens, err)
	}
	if _, err := tx.ExecContext(ctx, s.q.insert, string(model.SetBots), t.Handle); err != nil {
		return fmt.Errorf("insert into %s: %w", model.SetBots, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit register: %w", err)
	}
	return nil
}

func (s *SQLDirectory) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.DB.QueryContext(ctx, s.q.listTenants)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var (
			t       model.Tenant
			id      string
			created int64
		)
		if err := rows.Scan(&id, &t.Token, &t.Handle, &t.BotUserID, &t.OwnerID, &created); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("tenant %s has invalid id: %w", t.Handle, err)
		}
		t.CreatedAt = time.Unix(0, created).UTC()
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *SQLDirectory) Close() error {
	if err := s.DB.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
