package command

import (
	"context"
	"errors"
	"sync"
)

// ErrNotReady is returned by [VectorResult.Acquire] when the result has not
// been resolved and was created without waitOnReady.
var ErrNotReady = errors.New("command: deferred result not ready")

// DeferredResult is a tessellation result that may complete after the
// command referencing it was pushed.
type DeferredResult interface {
	// Ready reports whether the data has been produced.
	Ready() bool

	// WaitOnReady reports whether planning must wait for the data. When it
	// returns false and the result is not ready, the command is skipped.
	WaitOnReady() bool

	// Wait blocks until the result is ready or ctx is done.
	Wait(ctx context.Context) error

	// Acquire returns the produced data. The returned slice must not be
	// modified.
	Acquire(ctx context.Context) ([]InstanceVertexData, error)
}

// VectorResult is a [DeferredResult] backed by a slice of vertex blobs that
// a producer fills in with Resolve.
type VectorResult struct {
	waitOnReady bool
	ready       chan struct{}
	once        sync.Once

	mu   sync.RWMutex
	data []InstanceVertexData
}

// NewVectorResult creates an unresolved result.
func NewVectorResult(waitOnReady bool) *VectorResult {
	return &VectorResult{
		waitOnReady: waitOnReady,
		ready:       make(chan struct{}),
	}
}

// NewReadyResult creates a result that is already resolved with data.
func NewReadyResult(data []InstanceVertexData) *VectorResult {
	r := NewVectorResult(false)
	r.Resolve(data)
	return r
}

// Resolve publishes data and wakes waiters. Later calls replace the data;
// they do not affect frames that already acquired it.
func (r *VectorResult) Resolve(data []InstanceVertexData) {
	r.mu.Lock()
	r.data = data
	r.mu.Unlock()
	r.once.Do(func() { close(r.ready) })
}

// Ready implements [DeferredResult].
func (r *VectorResult) Ready() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// WaitOnReady implements [DeferredResult].
func (r *VectorResult) WaitOnReady() bool { return r.waitOnReady }

// Wait implements [DeferredResult].
func (r *VectorResult) Wait(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire implements [DeferredResult]. Results created with waitOnReady
// block until resolved; others fail fast with [ErrNotReady].
func (r *VectorResult) Acquire(ctx context.Context) ([]InstanceVertexData, error) {
	if r.waitOnReady {
		if err := r.Wait(ctx); err != nil {
			return nil, err
		}
	} else if !r.Ready() {
		return nil, ErrNotReady
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data, nil
}
