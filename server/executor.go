package server

import (
	"github.com/fzft/go-tcp-reactor/log"
	"go.uber.org/zap"
	"runtime"
	"sync"
	"sync/atomic"
)

// TaskExecutor runs read callbacks off the dispatch loop. Submit must not
// block: a saturated executor returns ErrPoolSaturated and the caller
// defers the work instead of stalling the loop.
type TaskExecutor interface {
	Submit(task func()) error
	Close()
}

// workerPool is the default TaskExecutor: a fixed set of goroutines
// feeding off one bounded channel.
type workerPool struct {
	tasks  chan func()
	stop   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

func newWorkerPool(workers, depth int) *workerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &workerPool{
		tasks: make(chan func(), depth),
		stop:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(task)
		case <-p.stop:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case task := <-p.tasks:
					p.run(task)
				default:
					return
				}
			}
		}
	}
}

func (p *workerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error("task panic", zap.Any("panic", r))
		}
	}()
	task()
}

func (p *workerPool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Close stops accepting tasks and releases the workers after they drain
// what was already queued. It does not wait for them.
func (p *workerPool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.stop)
	}
}
