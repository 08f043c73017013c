package storage

import (
	"context"
	"fmt"
	"sync"

	"clonebot/internal/model"
)

type orderedSet struct {
	keys  []string
	index map[string]struct{}
}

// MemoryDirectory keeps everything in process memory. It is used by tests
// and by the "memory" driver for throwaway deployments.
type MemoryDirectory struct {
	mu      sync.RWMutex
	sets    map[model.Set]*orderedSet
	tenants []model.Tenant
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{sets: make(map[model.Set]*orderedSet)}
}

func (d *MemoryDirectory) Exists(ctx context.Context, set model.Set, key string) (bool, error) {
	if err := checkSet(set); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sets[set]
	if !ok {
		return false, nil
	}
	_, ok = s.index[key]
	return ok, nil
}

func (d *MemoryDirectory) Insert(ctx context.Context, set model.Set, key string) error {
	if err := checkSet(set); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.insertLocked(set, key)
	return nil
}

func (d *MemoryDirectory) insertLocked(set model.Set, key string) {
	s, ok := d.sets[set]
	if !ok {
		s = &orderedSet{index: make(map[string]struct{})}
		d.sets[set] = s
	}
	if _, dup := s.index[key]; dup {
		return
	}
	s.index[key] = struct{}{}
	s.keys = append(s.keys, key)
}

func (d *MemoryDirectory) List(ctx context.Context, set model.Set) ([]string, error) {
	if err := checkSet(set); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sets[set]
	if !ok {
		return []string{}, nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out, nil
}

func (d *MemoryDirectory) RegisterTenant(ctx context.Context, t model.Tenant) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.tenants {
		if existing.Token == t.Token {
			return fmt.Errorf("%w: %s", ErrAlreadyPresent, t.Handle)
		}
	}
	d.insertLocked(model.SetTokens, t.Token)
	d.insertLocked(model.SetBots, t.Handle)
	d.tenants = append(d.tenants, t)
	return nil
}

func (d *MemoryDirectory) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]model.Tenant, len(d.tenants))
	copy(out, d.tenants)
	return out, nil
}

func (d *MemoryDirectory) Close() error { return nil }
