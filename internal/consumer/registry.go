package consumer

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"clonebot/internal/metrics"
	"clonebot/internal/model"
	"clonebot/internal/platform"
	"clonebot/internal/worker"
)

var ErrAlreadyAdopted = errors.New("session already adopted for token")

// HandlerFactory builds the update handler for an adopted tenant session.
type HandlerFactory func(t model.Tenant, session platform.Session) worker.Handler

// Registry is the long-lived owner of every running tenant session, keyed by
// credential token. Sessions enter it only through Adopt.
type Registry struct {
	workers int
	factory HandlerFactory
	logger  *zap.Logger

	mu        sync.RWMutex
	consumers map[string]*Consumer
}

func NewRegistry(workers int, factory HandlerFactory, logger *zap.Logger) *Registry {
	return &Registry{
		workers:   workers,
		factory:   factory,
		logger:    logger.Named("runtime"),
		consumers: make(map[string]*Consumer),
	}
}

// Adopt takes ownership of session and starts consuming its updates.
// The caller must not use session afterwards.
func (r *Registry) Adopt(t model.Tenant, session platform.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.consumers[t.Token]; exists {
		return ErrAlreadyAdopted
	}

	pool := worker.NewWorkerPool(t.Handle, r.workers, r.factory(t, session), r.logger)
	r.consumers[t.Token] = StartConsumer(t.Handle, session, pool, r.logger)
	metrics.TenantsRunning.Set(float64(len(r.consumers)))

	r.logger.Info("tenant adopted", zap.String("tenant", t.Handle), zap.Int("running", len(r.consumers)))
	return nil
}

// Release stops the session adopted for token. It reports whether one was
// running.
func (r *Registry) Release(token string) bool {
	r.mu.Lock()
	c, exists := r.consumers[token]
	if exists {
		delete(r.consumers, token)
		metrics.TenantsRunning.Set(float64(len(r.consumers)))
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	c.Stop()
	return true
}

func (r *Registry) Running(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.consumers[token]
	return ok
}

// Tokens returns the tokens of all running sessions.
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]string, 0, len(r.consumers))
	for token := range r.consumers {
		tokens = append(tokens, token)
	}
	return tokens
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.consumers)
}

// ShutdownAll stops every running session.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	consumers := r.consumers
	r.consumers = make(map[string]*Consumer)
	metrics.TenantsRunning.Set(0)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()
	r.logger.Info("all tenants stopped", zap.Int("count", len(consumers)))
}
