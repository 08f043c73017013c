package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"clonebot/internal/model"
	"clonebot/internal/platform"
	"clonebot/internal/platform/platformtest"
	"clonebot/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu      sync.Mutex
	updates map[string][]int
}

func (r *recorder) factory(t model.Tenant, session platform.Session) worker.Handler {
	return func(ctx context.Context, u platform.Update) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.updates[t.Handle] = append(r.updates[t.Handle], u.UpdateID)
	}
}

func (r *recorder) count(handle string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates[handle])
}

func tenant(token, handle string) model.Tenant {
	return model.Tenant{ID: uuid.New(), Token: token, Handle: handle, CreatedAt: time.Now()}
}

func TestRegistryAdoptDeliversUpdates(t *testing.T) {
	rec := &recorder{updates: make(map[string][]int)}
	reg := NewRegistry(2, rec.factory, zap.NewNop())
	defer reg.ShutdownAll()

	session := platformtest.NewSession("b1", 1)
	require.NoError(t, reg.Adopt(tenant("1:a", "@b1"), session))

	session.Push(platform.Update{UpdateID: 1})
	session.Push(platform.Update{UpdateID: 2})

	assert.Eventually(t, func() bool { return rec.count("@b1") == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, reg.Running("1:a"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRejectsSecondAdoption(t *testing.T) {
	rec := &recorder{updates: make(map[string][]int)}
	reg := NewRegistry(1, rec.factory, zap.NewNop())
	defer reg.ShutdownAll()

	require.NoError(t, reg.Adopt(tenant("1:a", "@b1"), platformtest.NewSession("b1", 1)))

	second := platformtest.NewSession("b1", 1)
	assert.ErrorIs(t, reg.Adopt(tenant("1:a", "@b1"), second), ErrAlreadyAdopted)
	assert.False(t, second.Closed(), "rejected session stays with the caller")
	_ = second.Close()
}

func TestRegistryRelease(t *testing.T) {
	rec := &recorder{updates: make(map[string][]int)}
	reg := NewRegistry(1, rec.factory, zap.NewNop())

	session := platformtest.NewSession("b1", 1)
	require.NoError(t, reg.Adopt(tenant("1:a", "@b1"), session))

	assert.True(t, reg.Release("1:a"))
	assert.True(t, session.Closed())
	assert.False(t, reg.Release("1:a"))
	assert.Empty(t, reg.Tokens())
}

func TestRegistryShutdownAll(t *testing.T) {
	rec := &recorder{updates: make(map[string][]int)}
	reg := NewRegistry(1, rec.factory, zap.NewNop())

	sessions := []*platformtest.Session{
		platformtest.NewSession("b1", 1),
		platformtest.NewSession("b2", 2),
	}
	require.NoError(t, reg.Adopt(tenant("1:a", "@b1"), sessions[0]))
	require.NoError(t, reg.Adopt(tenant("2:b", "@b2"), sessions[1]))
	assert.ElementsMatch(t, []string{"1:a", "2:b"}, reg.Tokens())

	reg.ShutdownAll()

	assert.Equal(t, 0, reg.Len())
	for _, s := range sessions {
		assert.True(t, s.Closed())
	}
}

func TestConsumerExitsWhenSessionCloses(t *testing.T) {
	session := platformtest.NewSession("b1", 1)
	pool := worker.NewWorkerPool("b1", 1, func(context.Context, platform.Update) {}, zap.NewNop())
	c := StartConsumer("b1", session, pool, zap.NewNop())

	_ = session.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer did not exit")
	}
	c.Stop()
	c.Stop()
}
