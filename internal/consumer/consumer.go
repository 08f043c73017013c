// internal/consumer/consumer.go
package consumer

import (
	"sync"

	"go.uber.org/zap"

	"clonebot/internal/platform"
	"clonebot/internal/worker"
)

// Consumer drains one session's updates into its worker pool until stopped.
type Consumer struct {
	Name    string
	Session platform.Session
	Pool    *worker.WorkerPool

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// StartConsumer starts the pool and a goroutine forwarding session updates
// to it.
func StartConsumer(name string, session platform.Session, pool *worker.WorkerPool, logger *zap.Logger) *Consumer {
	c := &Consumer{
		Name:     name,
		Session:  session,
		Pool:     pool,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		logger:   logger.With(zap.String("consumer", name)),
	}

	pool.Start()
	go c.consumeLoop(session.Updates())

	c.logger.Info("started consumer")
	return c
}

// consumeLoop forwards updates until stopChan is closed or the session's
// delivery channel closes.
func (c *Consumer) consumeLoop(updates <-chan platform.Update) {
	defer close(c.doneChan)

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				c.logger.Info("delivery channel closed")
				return
			}
			if !c.Pool.Submit(u) {
				return
			}

		case <-c.stopChan:
			return
		}
	}
}

// Done is closed when the consume loop has exited.
func (c *Consumer) Done() <-chan struct{} {
	return c.doneChan
}

// Stop signals the consumer to stop, waits for in-flight updates and closes
// the session. It is safe to call more than once.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.Pool.Stop()
		<-c.doneChan
		if err := c.Session.Close(); err != nil {
			c.logger.Warn("closing session", zap.Error(err))
		}
		c.logger.Info("stopped consumer")
	})
}
