package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/soyeahso/vox/internal/logging"
)

// ErrPoolStopped is returned when work is submitted after Stop.
var ErrPoolStopped = errors.New("pipeline: worker pool stopped")

// Pool is a bounded worker pool for slow external capability calls.
// It replaces spawning a fresh goroutine per voice turn: resource use is
// capped and shutdown joins deterministically.
type Pool struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
	log   *logging.Logger

	mu      sync.Mutex
	stopped bool
}

// NewPool starts size workers sharing a queue of queueLen pending tasks.
func NewPool(size, queueLen int, log *logging.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueLen <= 0 {
		queueLen = size * 2
	}
	p := &Pool{
		tasks: make(chan func(), queueLen),
		done:  make(chan struct{}),
		log:   log.Sub("workers"),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.done:
			// Drain queued tasks before exiting so submitted work
			// is never silently lost.
			for {
				select {
				case fn := <-p.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues a task, blocking while the queue is full.
// Returns ErrPoolStopped once the pool is shut down.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- fn:
		return nil
	case <-p.done:
		return ErrPoolStopped
	}
}

// Stop shuts the pool down and waits up to grace for workers to finish
// in-flight tasks. Returns false if the grace period expired and workers
// were abandoned.
func (p *Pool) Stop(grace time.Duration) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return true
	}
	p.stopped = true
	close(p.done)
	p.mu.Unlock()

	joined := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		return true
	case <-time.After(grace):
		p.log.Warn().Dur("grace", grace).Msg("worker pool join timed out, abandoning workers")
		return false
	}
}
