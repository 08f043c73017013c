// Package storage implements the tenant directory: durable key sets for
// users, tokens and bot handles plus the registered tenant records.
package storage

import (
	"context"
	"errors"
	"fmt"

	"clonebot/internal/model"
)

var (
	ErrUnknownSet     = errors.New("unknown directory set")
	ErrUnknownDriver  = errors.New("unknown directory driver")
	ErrAlreadyPresent = errors.New("tenant already registered")
)

// Directory is safe for concurrent use. It offers no compare-and-set:
// callers that need check-then-insert semantics serialize on their own.
type Directory interface {
	Exists(ctx context.Context, set model.Set, key string) (bool, error)
	// Insert adds key to set. Inserting a present key is a no-op.
	Insert(ctx context.Context, set model.Set, key string) error
	// List returns the keys of set in insertion order.
	List(ctx context.Context, set model.Set) ([]string, error)
	// RegisterTenant adds t.Token to tokens, t.Handle to bots and stores the
	// record, all in one commit.
	RegisterTenant(ctx context.Context, t model.Tenant) error
	ListTenants(ctx context.Context) ([]model.Tenant, error)
	Close() error
}

// Open returns the directory backend named by driver.
func Open(driver, url string) (Directory, error) {
	switch driver {
	case "memory":
		return NewMemoryDirectory(), nil
	case "sqlite":
		return NewSQLiteDirectory(url)
	case "postgres":
		return NewPostgresDirectory(url)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}

func checkSet(set model.Set) error {
	if !set.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSet, set)
	}
	return nil
}
