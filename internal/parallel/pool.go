// Package parallel runs frame tasks on a fixed set of worker goroutines.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when work is submitted to a closed pool.
var ErrPoolClosed = errors.New("parallel: pool closed")

// Task is a unit of frame work.
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	task Task
	done chan<- error
}

func (j job) run() {
	var err error
	if err = j.ctx.Err(); err == nil {
		err = j.task(j.ctx)
	}
	if j.done != nil {
		j.done <- err
	}
}

// WorkerPool runs tasks on a fixed number of goroutines. Each worker owns a
// queue and steals from the others when its own queue is empty.
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan job
	next    atomic.Uint32

	// mu orders enqueues before Close so no job lands after the final drain.
	mu      sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers. If workers
// is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan job, workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan job, queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case j := <-own:
			j.run()
			continue
		default:
		}
		if j, ok := p.steal(id); ok {
			j.run()
			continue
		}
		select {
		case j := <-own:
			j.run()
		case <-p.done:
			p.drain(own)
			return
		}
	}
}

// drain runs the jobs left in queue after Close.
func (p *WorkerPool) drain(queue chan job) {
	for {
		select {
		case j := <-queue:
			j.run()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) (job, bool) {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case j := <-p.queues[i]:
			return j, true
		default:
		}
	}
	return job{}, false
}

func (p *WorkerPool) enqueue(j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return ErrPoolClosed
	}
	q := p.queues[int(p.next.Add(1))%p.workers]
	select {
	case q <- j:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	}
}

// Go queues task and returns a channel that receives its result. A task
// whose context is done before it starts is not run and reports ctx.Err().
func (p *WorkerPool) Go(ctx context.Context, task Task) <-chan error {
	done := make(chan error, 1)
	if err := p.enqueue(job{ctx: ctx, task: task, done: done}); err != nil {
		done <- err
	}
	return done
}

// Close stops accepting work, runs queued tasks and stops the workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }

// QueuedWork returns the approximate number of queued tasks.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}
