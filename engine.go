package drawplan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gogpu/drawplan/batch"
	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/internal/parallel"
	"github.com/gogpu/drawplan/material"
)

// Engine batches frames. Frames are batched on a worker pool; up to the
// configured number of frames may be in flight between Submit and Retire,
// each in a different stage.
//
// Engine is safe for concurrent use.
type Engine struct {
	batcher  *batch.Batcher
	alloc    batch.Allocator
	registry *material.Registry
	lists    *command.ListPool
	pool     *parallel.WorkerPool
	inFlight *semaphore.Weighted

	nextID atomic.Uint64
}

// NewEngine creates an engine allocating frame buffers from alloc and
// resolving materials from the registry's current snapshot.
func NewEngine(alloc batch.Allocator, registry *material.Registry, opts ...EngineOption) *Engine {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		batcher:  batch.New(o.batch...),
		alloc:    alloc,
		registry: registry,
		lists:    command.NewListPool(),
		pool:     parallel.NewWorkerPool(o.workers),
		inFlight: semaphore.NewWeighted(int64(o.framesInFlight)),
	}
}

// NewFrame starts a frame against the registry's current material set.
// Material updates made after this call affect later frames only.
func (e *Engine) NewFrame() *Frame {
	return &Frame{
		id:     e.nextID.Add(1),
		engine: e,
		set:    e.registry.Current(),
		list:   e.lists.Get(),
	}
}

// Process batches f on the calling goroutine, waiting for its
// dependencies first.
func (e *Engine) Process(ctx context.Context, f *Frame) (*batch.Result, error) {
	if err := e.await(ctx, f); err != nil {
		f.finish(nil, err)
		return nil, err
	}
	return e.run(ctx, f)
}

// Submit schedules f for batching and returns once the frame holds an
// in-flight slot. Dependencies are awaited off the calling goroutine and
// batching runs on the worker pool; done, if not nil, is called with the
// outcome. The slot is held until the frame is retired.
func (e *Engine) Submit(ctx context.Context, f *Frame, done func(*Frame, error)) error {
	if err := e.inFlight.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("drawplan: frame %d: %w", f.id, err)
	}
	f.holdsSlot.Store(true)

	go func() {
		err := e.await(ctx, f)
		if err == nil {
			err = <-e.pool.Go(ctx, func(ctx context.Context) error {
				_, err := e.run(ctx, f)
				return err
			})
		}
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, ErrFrameInvalidated) {
				err = fmt.Errorf("%w: %w", ErrFrameInvalidated, err)
			}
			f.finish(nil, err)
		}
		if done != nil {
			done(f, err)
		}
	}()
	return nil
}

// Close stops the worker pool after queued frames finish.
func (e *Engine) Close() {
	e.pool.Close()
}

// await waits for all frame dependencies concurrently.
func (e *Engine) await(ctx context.Context, f *Frame) error {
	deps := f.dependencies()
	if len(deps) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range deps {
		g.Go(func() error { return d.Wait(gctx) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("drawplan: frame %d dependency: %w", f.id, err)
	}
	return nil
}

// run performs Planning through Ordered.
func (e *Engine) run(ctx context.Context, f *Frame) (*batch.Result, error) {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.Invalidated() {
		f.finish(nil, ErrFrameInvalidated)
		return nil, ErrFrameInvalidated
	}
	list, err := f.begin()
	if err != nil {
		return nil, err
	}
	res, err := e.batcher.RunStages(ctx, list, f.set, e.alloc, func(s batch.Stage) error {
		switch s {
		case batch.StageSizing:
			return f.advance(FramePlanning, FrameSizing)
		case batch.StageWriting:
			return f.advance(FrameSizing, FrameWriting)
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("drawplan: frame %d: %w", f.id, err)
		f.finish(nil, err)
		return nil, err
	}
	f.finish(res, nil)
	if err := f.advance(FrameWriting, FrameOrdered); err != nil {
		return nil, err
	}
	Logger().Debug("drawplan: frame ordered", "frame", f.id, "stat", res.Stat.String())
	return res, nil
}

// retire releases what a frame held.
func (e *Engine) retire(f *Frame, prev FrameState, res *batch.Result, list *command.List) {
	if res != nil && res.Buffers != nil {
		res.Buffers.Release()
	}
	if list != nil {
		e.lists.Put(list)
	}
	if f.holdsSlot.CompareAndSwap(true, false) {
		e.inFlight.Release(1)
	}
	Logger().Debug("drawplan: frame retired", "frame", f.id, "from", prev.String())
}
