package gpu

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/drawplan/batch"
)

// Memory management errors.
var (
	// ErrMemoryBudgetExceeded is returned when allocation would exceed budget.
	ErrMemoryBudgetExceeded = errors.New("gpu: memory budget exceeded")

	// ErrAllocatorClosed is returned when operating on a closed allocator or
	// memory manager.
	ErrAllocatorClosed = errors.New("gpu: allocator closed")
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default frame buffer budget (64 MB).
	DefaultMaxMemoryMB = 64

	// MinMemoryMB is the minimum allowed memory budget (1 MB).
	MinMemoryMB = 1

	// bufferAlignment is the size granularity of pooled buffers.
	bufferAlignment = 256
)

// MemoryStats contains frame buffer memory statistics.
type MemoryStats struct {
	// TotalBytes is the memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the size of all live buffers, in use or idle.
	UsedBytes uint64

	// InUse and Idle count buffers held by frames and buffers waiting
	// for reuse.
	InUse int
	Idle  int

	// Reused is the number of allocations served from the idle pool.
	Reused uint64

	// EvictionCount is the number of idle buffers destroyed to make room.
	EvictionCount uint64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%d/%d KB, %d in use, %d idle, %d reused, %d evictions]",
		s.UsedBytes/1024, s.TotalBytes/1024, s.InUse, s.Idle, s.Reused, s.EvictionCount)
}

// pooledBuffer is a hal buffer tracked by the memory manager.
type pooledBuffer struct {
	buffer   hal.Buffer
	kind     batch.BufferKind
	size     uint64
	lastUsed time.Time
	element  *list.Element // position in the idle list, nil while in use
}

// MemoryManager pools frame buffers and enforces a budget. Released buffers
// stay alive for reuse by later frames and are destroyed least recently
// used first when a new allocation does not fit.
//
// MemoryManager is safe for concurrent use.
type MemoryManager struct {
	mu sync.Mutex

	device hal.Device

	budgetBytes uint64
	usedBytes   uint64

	// idle is the LRU list of reusable buffers (front = most recently
	// released).
	idle  *list.List
	inUse map[*pooledBuffer]struct{}

	reused        uint64
	evictionCount uint64

	closed bool
}

// MemoryConfig holds configuration for creating a MemoryManager.
type MemoryConfig struct {
	// MaxMemoryMB is the budget in megabytes.
	// Defaults to DefaultMaxMemoryMB if <= 0.
	MaxMemoryMB int
}

// NewMemoryManager creates a memory manager creating buffers on device.
func NewMemoryManager(device hal.Device, config MemoryConfig) *MemoryManager {
	maxMB := config.MaxMemoryMB
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}

	//nolint:gosec // G115: maxMB is bounded by MinMemoryMB minimum
	return &MemoryManager{
		device:      device,
		budgetBytes: uint64(maxMB) * 1024 * 1024,
		idle:        list.New(),
		inUse:       make(map[*pooledBuffer]struct{}),
	}
}

func usageFor(kind batch.BufferKind) gputypes.BufferUsage {
	switch kind {
	case batch.BufferIndex:
		return gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	default:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	}
}

func alignSize(size uint64) uint64 {
	return (size + bufferAlignment - 1) &^ (bufferAlignment - 1)
}

// acquire returns a buffer of kind holding at least size bytes. An idle
// buffer is reused when one fits without wasting more than half of it.
func (m *MemoryManager) acquire(kind batch.BufferKind, size uint64, label string) (*pooledBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrAllocatorClosed
	}

	required := alignSize(size)
	if required > m.budgetBytes {
		return nil, fmt.Errorf("%w: %s buffer of %d KB exceeds total budget %d KB",
			ErrMemoryBudgetExceeded, kind, required/1024, m.budgetBytes/1024)
	}

	if b := m.takeIdleLocked(kind, required); b != nil {
		m.reused++
		return b, nil
	}

	if err := m.evictIfNeeded(required); err != nil {
		return nil, err
	}

	buf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  required,
		Usage: usageFor(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}

	b := &pooledBuffer{buffer: buf, kind: kind, size: required, lastUsed: time.Now()}
	m.inUse[b] = struct{}{}
	m.usedBytes += required
	return b, nil
}

// takeIdleLocked removes and returns the best fitting idle buffer. Caller
// must hold mu.
func (m *MemoryManager) takeIdleLocked(kind batch.BufferKind, required uint64) *pooledBuffer {
	var best *pooledBuffer
	for e := m.idle.Front(); e != nil; e = e.Next() {
		b, ok := e.Value.(*pooledBuffer)
		if !ok || b.kind != kind || b.size < required || b.size > 2*required {
			continue
		}
		if best == nil || b.size < best.size {
			best = b
		}
	}
	if best == nil {
		return nil
	}
	m.idle.Remove(best.element)
	best.element = nil
	best.lastUsed = time.Now()
	m.inUse[best] = struct{}{}
	return best
}

// release returns a buffer to the idle pool.
func (m *MemoryManager) release(b *pooledBuffer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inUse[b]; !ok {
		return
	}
	delete(m.inUse, b)
	if m.closed {
		m.device.DestroyBuffer(b.buffer)
		m.usedBytes -= b.size
		return
	}
	b.lastUsed = time.Now()
	b.element = m.idle.PushFront(b)
}

// evictIfNeeded destroys idle buffers until requested bytes fit the budget.
// Caller must hold mu.
func (m *MemoryManager) evictIfNeeded(requested uint64) error {
	for m.usedBytes+requested > m.budgetBytes && m.idle.Len() > 0 {
		elem := m.idle.Back()
		m.idle.Remove(elem)
		b, ok := elem.Value.(*pooledBuffer)
		if !ok {
			continue
		}
		m.device.DestroyBuffer(b.buffer)
		m.usedBytes -= b.size
		m.evictionCount++
	}

	if m.usedBytes+requested > m.budgetBytes {
		return fmt.Errorf("%w: need %d bytes, have %d bytes available",
			ErrMemoryBudgetExceeded, requested, m.budgetBytes-m.usedBytes)
	}
	return nil
}

// Stats returns current memory usage statistics.
func (m *MemoryManager) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoryStats{
		TotalBytes:    m.budgetBytes,
		UsedBytes:     m.usedBytes,
		InUse:         len(m.inUse),
		Idle:          m.idle.Len(),
		Reused:        m.reused,
		EvictionCount: m.evictionCount,
	}
}

// SetBudget updates the memory budget, evicting idle buffers if the new
// budget is below current usage.
func (m *MemoryManager) SetBudget(megabytes int) error {
	if megabytes < MinMemoryMB {
		megabytes = MinMemoryMB
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAllocatorClosed
	}

	//nolint:gosec // G115: megabytes bounded by MinMemoryMB minimum
	m.budgetBytes = uint64(megabytes) * 1024 * 1024
	return m.evictIfNeeded(0)
}

// Close destroys idle buffers. Buffers still in use are destroyed when
// released.
func (m *MemoryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	for e := m.idle.Front(); e != nil; e = e.Next() {
		if b, ok := e.Value.(*pooledBuffer); ok {
			m.device.DestroyBuffer(b.buffer)
			m.usedBytes -= b.size
		}
	}
	m.idle.Init()
	m.closed = true
}
