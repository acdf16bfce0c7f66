package batch

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrAllocation is returned when a frame buffer cannot be allocated. It is
// frame-fatal: no spans are produced.
var ErrAllocation = errors.New("batch: buffer allocation failed")

// BufferKind is the role of a frame buffer.
type BufferKind uint8

// Buffer kinds.
const (
	BufferVertex BufferKind = iota
	BufferIndex
	BufferTransform
)

// String returns the buffer kind name.
func (k BufferKind) String() string {
	switch k {
	case BufferVertex:
		return "vertex"
	case BufferIndex:
		return "index"
	case BufferTransform:
		return "transform"
	default:
		return fmt.Sprintf("BufferKind(%d)", k)
	}
}

// Region is a writable, zero-initialized byte region backing one frame
// buffer. Flush publishes the written bytes to the consumer.
type Region interface {
	Bytes() []byte
	Flush() error
}

// Allocator provides frame buffer regions of exact byte sizes.
type Allocator interface {
	Allocate(kind BufferKind, size uint64) (Region, error)
}

// HostAllocator allocates regions in host memory. It is used for CPU-side
// consumers, tests and as staging for GPU uploads.
type HostAllocator struct {
	allocated atomic.Uint64
}

// NewHostAllocator creates a host allocator.
func NewHostAllocator() *HostAllocator {
	return &HostAllocator{}
}

// Allocate implements [Allocator].
func (a *HostAllocator) Allocate(kind BufferKind, size uint64) (Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("%s buffer of size 0: %w", kind, ErrAllocation)
	}
	a.allocated.Add(size)
	return &HostRegion{Kind: kind, data: make([]byte, size)}, nil
}

// Allocated returns the total bytes handed out.
func (a *HostAllocator) Allocated() uint64 {
	return a.allocated.Load()
}

// HostRegion is a host memory [Region].
type HostRegion struct {
	Kind BufferKind
	data []byte
}

// Bytes implements [Region].
func (r *HostRegion) Bytes() []byte { return r.data }

// Flush implements [Region]. Host regions need no flush.
func (r *HostRegion) Flush() error { return nil }

// Buffers are the three regions of one frame.
type Buffers struct {
	Vertexes   Region
	Indexes    Region
	Transforms Region
}

// releaser is implemented by regions that return memory to a pool.
type releaser interface {
	Release()
}

// AllocateBuffers allocates the regions for totals. Allocation failures are
// wrapped with [ErrAllocation]; regions allocated before the failure are
// released.
func AllocateBuffers(alloc Allocator, totals Totals) (*Buffers, error) {
	vb, ib, tb := totals.Bytes()

	b := &Buffers{}
	var err error
	if b.Vertexes, err = alloc.Allocate(BufferVertex, vb); err != nil {
		return nil, wrapAllocation(BufferVertex, vb, err)
	}
	if b.Indexes, err = alloc.Allocate(BufferIndex, ib); err != nil {
		b.Release()
		return nil, wrapAllocation(BufferIndex, ib, err)
	}
	if b.Transforms, err = alloc.Allocate(BufferTransform, tb); err != nil {
		b.Release()
		return nil, wrapAllocation(BufferTransform, tb, err)
	}
	return b, nil
}

// Release returns pooled regions to their allocator. Regions without a
// Release method are left to the garbage collector.
func (b *Buffers) Release() {
	for _, r := range []Region{b.Vertexes, b.Indexes, b.Transforms} {
		if rel, ok := r.(releaser); ok {
			rel.Release()
		}
	}
}

func wrapAllocation(kind BufferKind, size uint64, err error) error {
	if errors.Is(err, ErrAllocation) {
		return err
	}
	return fmt.Errorf("%w: %s buffer (%d bytes): %w", ErrAllocation, kind, size, err)
}

// Target returns a write target over the three regions.
func (b *Buffers) Target() *WriteTarget {
	return NewWriteTarget(b.Vertexes.Bytes(), b.Indexes.Bytes(), b.Transforms.Bytes())
}

// Flush flushes all regions.
func (b *Buffers) Flush() error {
	for _, r := range []Region{b.Vertexes, b.Indexes, b.Transforms} {
		if err := r.Flush(); err != nil {
			return fmt.Errorf("batch: flush: %w", err)
		}
	}
	return nil
}
