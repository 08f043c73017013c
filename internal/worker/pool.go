package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"clonebot/internal/metrics"
	"clonebot/internal/platform"
)

// Handler processes one update. It must not assume it runs alone: a pool
// calls it from several goroutines at once.
type Handler func(ctx context.Context, u platform.Update)

type WorkerPool struct {
	name    string
	handler Handler
	workers int
	logger  *zap.Logger

	jobs     chan platform.Update
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewWorkerPool(name string, workerCount int, handler Handler, logger *zap.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		name:    name,
		handler: handler,
		workers: workerCount,
		logger:  logger.With(zap.String("pool", name)),
		jobs:    make(chan platform.Update),
		stopCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (wp *WorkerPool) Start() {
	wp.logger.Debug("starting worker pool", zap.Int("workers", wp.workers))
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.run()
	}
}

// Submit blocks until a worker takes u. It returns false once the pool is
// stopped.
func (wp *WorkerPool) Submit(u platform.Update) bool {
	select {
	case <-wp.stopCh:
		return false
	default:
	}

	select {
	case wp.jobs <- u:
		return true
	case <-wp.stopCh:
		return false
	}
}

// Stop cancels in-flight handlers and waits for the workers to exit.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.stopCh)
		wp.cancel()
	})
	wp.wg.Wait()
}

func (wp *WorkerPool) run() {
	defer wp.wg.Done()

	metrics.WorkerActive.WithLabelValues(wp.name).Inc()
	defer metrics.WorkerActive.WithLabelValues(wp.name).Dec()

	for {
		select {
		case <-wp.stopCh:
			return
		case u := <-wp.jobs:
			wp.process(u)
		}
	}
}

func (wp *WorkerPool) process(u platform.Update) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.WithLabelValues(wp.name).Inc()
			wp.logger.Error("handler panicked",
				zap.Int("update_id", u.UpdateID),
				zap.Any("panic", r),
			)
		}
	}()

	wp.handler(wp.ctx, u)
	metrics.WorkerProcessed.WithLabelValues(wp.name).Inc()
}
