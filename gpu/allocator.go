package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/drawplan/batch"
)

// ErrNoDevice is returned when a provider does not expose a HAL device.
var ErrNoDevice = errors.New("gpu: no HAL device")

// AllocatorConfig configures an Allocator.
type AllocatorConfig struct {
	// MaxMemoryMB is the frame buffer budget in megabytes.
	// Defaults to DefaultMaxMemoryMB if <= 0.
	MaxMemoryMB int

	// Label prefixes buffer labels. Defaults to "drawplan".
	Label string
}

// Allocator implements batch.Allocator with pooled hal buffers. Regions are
// written in host memory and uploaded to their buffer on Flush.
//
// Allocator is safe for concurrent use.
type Allocator struct {
	mem   *MemoryManager
	queue hal.Queue
	label string

	mu     sync.Mutex
	closed bool
}

// NewAllocator creates an allocator on device, uploading through queue.
func NewAllocator(device hal.Device, queue hal.Queue, cfg AllocatorConfig) *Allocator {
	label := cfg.Label
	if label == "" {
		label = "drawplan"
	}
	return &Allocator{
		mem:   NewMemoryManager(device, MemoryConfig{MaxMemoryMB: cfg.MaxMemoryMB}),
		queue: queue,
		label: label,
	}
}

// NewAllocatorFromProvider creates an allocator sharing the device of a
// gogpu device provider. Besides gpucontext.DeviceProvider the provider must
// implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue.
func NewAllocatorFromProvider(provider gpucontext.DeviceProvider, cfg AllocatorConfig) (*Allocator, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrNoDevice)
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoDevice)
	}
	return NewAllocator(device, queue, cfg), nil
}

// Allocate implements batch.Allocator. The returned region is a
// *BufferRegion.
func (a *Allocator) Allocate(kind batch.BufferKind, size uint64) (batch.Region, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrAllocatorClosed
	}
	if size == 0 {
		return nil, fmt.Errorf("%s buffer of size 0: %w", kind, batch.ErrAllocation)
	}

	b, err := a.mem.acquire(kind, size, a.label+"_"+kind.String())
	if err != nil {
		return nil, err
	}
	return &BufferRegion{
		alloc:  a,
		pooled: b,
		data:   make([]byte, size),
	}, nil
}

// Release returns the buffers of a result to the pool. The result must no
// longer be recorded.
func (a *Allocator) Release(res *batch.Result) {
	if res == nil || res.Buffers == nil {
		return
	}
	res.Buffers.Release()
}

// Stats returns memory statistics of the buffer pool.
func (a *Allocator) Stats() MemoryStats {
	return a.mem.Stats()
}

// SetBudget updates the buffer pool budget.
func (a *Allocator) SetBudget(megabytes int) error {
	return a.mem.SetBudget(megabytes)
}

// Close destroys pooled buffers. Regions still held are destroyed when
// released.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.mem.Close()
}

// BufferRegion is a batch.Region backed by a hal buffer.
type BufferRegion struct {
	alloc  *Allocator
	pooled *pooledBuffer
	data   []byte

	released bool
}

// Bytes implements batch.Region.
func (r *BufferRegion) Bytes() []byte { return r.data }

// Flush uploads the written bytes to the buffer.
func (r *BufferRegion) Flush() error {
	if r.released {
		return fmt.Errorf("gpu: flush of released %s region", r.pooled.kind)
	}
	r.alloc.queue.WriteBuffer(r.pooled.buffer, 0, r.data)
	return nil
}

// Buffer returns the hal buffer holding the region.
func (r *BufferRegion) Buffer() hal.Buffer { return r.pooled.buffer }

// Kind returns the buffer role.
func (r *BufferRegion) Kind() batch.BufferKind { return r.pooled.kind }

// Size returns the region size in bytes. The buffer may be larger.
func (r *BufferRegion) Size() uint64 { return uint64(len(r.data)) }

// Release returns the buffer to the pool. Release is idempotent.
func (r *BufferRegion) Release() {
	if r.released {
		return
	}
	r.released = true
	r.alloc.mem.release(r.pooled)
}
