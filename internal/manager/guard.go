package manager

import "sync"

// admissionGuard marks tokens with an admission in flight. A second request
// for a marked token is turned away instead of racing the first past the
// directory's duplicate check.
type admissionGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newAdmissionGuard() *admissionGuard {
	return &admissionGuard{inflight: make(map[string]struct{})}
}

// TryAcquire marks token and reports true, or reports false if it was
// already marked.
func (g *admissionGuard) TryAcquire(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[token]; busy {
		return false
	}
	g.inflight[token] = struct{}{}
	return true
}

func (g *admissionGuard) Release(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, token)
}
