package gpu

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/drawplan/batch"
	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/material"
)

// =============================================================================
// Test Helpers
// =============================================================================

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// countingDevice wraps a hal.Device and counts buffer lifetimes.
type countingDevice struct {
	hal.Device

	created   atomic.Int32
	destroyed atomic.Int32
	usages    []gputypes.BufferUsage
}

func (d *countingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.created.Add(1)
	d.usages = append(d.usages, desc.Usage)
	return d.Device.CreateBuffer(desc)
}

func (d *countingDevice) DestroyBuffer(b hal.Buffer) {
	d.destroyed.Add(1)
	d.Device.DestroyBuffer(b)
}

// stubDevice implements gpucontext.Device.
type stubDevice struct{}

func (stubDevice) Poll(bool) {}
func (stubDevice) Destroy()  {}

// plainProvider implements gpucontext.DeviceProvider without HAL access.
type plainProvider struct{}

func (plainProvider) Device() gpucontext.Device             { return stubDevice{} }
func (plainProvider) Queue() gpucontext.Queue               { return nil }
func (plainProvider) Adapter() gpucontext.Adapter           { return nil }
func (plainProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

// provider is a device provider exposing HAL values.
type provider struct {
	plainProvider
	device any
	queue  any
}

func (p provider) HalDevice() any { return p.device }
func (p provider) HalQueue() any  { return p.queue }

func quadList() *command.List {
	l := command.NewList()
	c := mgl32.Vec4{1, 1, 1, 1}
	data := &command.VertexData{
		Vertices: []command.Vertex{
			{Pos: mgl32.Vec4{0, 0, 0, 1}, Color: c},
			{Pos: mgl32.Vec4{0, 1, 0, 1}, Color: c},
			{Pos: mgl32.Vec4{1, 1, 0, 1}, Color: c},
			{Pos: mgl32.Vec4{1, 0, 0, 1}, Color: c},
		},
		Indexes: []uint32{0, 1, 2, 0, 2, 3},
	}
	l.PushVertexArray(data, mgl32.Ident4(), command.Info{Material: 1, ZPath: command.ZPath{0}})
	l.PushVertexArray(data, mgl32.Ident4(), command.Info{Material: 2, ZPath: command.ZPath{1}})
	return l
}

func testSet() *material.Set {
	return material.NewSet(
		&material.Material{ID: 1, Pipeline: &material.Pipeline{Name: "solid", Solid: true}},
		&material.Material{ID: 2, Pipeline: &material.Pipeline{Name: "alpha", Order: 1}},
	)
}

// =============================================================================
// MemoryManager Tests
// =============================================================================

func TestAlignSize(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{1, 256},
		{256, 256},
		{257, 512},
		{1000, 1024},
	}
	for _, tt := range tests {
		if got := alignSize(tt.in); got != tt.want {
			t.Errorf("alignSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestUsageFor(t *testing.T) {
	if got := usageFor(batch.BufferIndex); got&gputypes.BufferUsageIndex == 0 {
		t.Errorf("index usage = %v, missing Index", got)
	}
	for _, k := range []batch.BufferKind{batch.BufferVertex, batch.BufferTransform} {
		if got := usageFor(k); got&gputypes.BufferUsageStorage == 0 || got&gputypes.BufferUsageCopyDst == 0 {
			t.Errorf("%s usage = %v, want Storage|CopyDst", k, got)
		}
	}
}

func TestMemoryManagerReuse(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}

	m := NewMemoryManager(dev, MemoryConfig{MaxMemoryMB: 1})
	b1, err := m.acquire(batch.BufferVertex, 1000, "v")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	m.release(b1)

	// Same kind, fitting size: reused.
	b2, err := m.acquire(batch.BufferVertex, 900, "v")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if b2 != b1 {
		t.Error("expected idle buffer to be reused")
	}
	m.release(b2)

	// Different kind: new buffer.
	b3, err := m.acquire(batch.BufferIndex, 900, "i")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if b3 == b1 {
		t.Error("buffer reused across kinds")
	}

	// Much smaller request does not take the large buffer.
	b4, err := m.acquire(batch.BufferVertex, 100, "v")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if b4 == b1 {
		t.Error("buffer reused with more than half wasted")
	}

	stats := m.Stats()
	if stats.Reused != 1 {
		t.Errorf("Reused = %d, want 1", stats.Reused)
	}
	if stats.InUse != 2 || stats.Idle != 1 {
		t.Errorf("InUse/Idle = %d/%d, want 2/1", stats.InUse, stats.Idle)
	}
	if got := dev.created.Load(); got != 3 {
		t.Errorf("created = %d, want 3", got)
	}
}

func TestMemoryManagerEviction(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}

	m := NewMemoryManager(dev, MemoryConfig{MaxMemoryMB: 1})
	const half = 512 * 1024

	a, err := m.acquire(batch.BufferVertex, half, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	b, err := m.acquire(batch.BufferIndex, half, "b")
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}

	// Budget is full and nothing is idle.
	if _, err := m.acquire(batch.BufferTransform, 256, "c"); !errors.Is(err, ErrMemoryBudgetExceeded) {
		t.Fatalf("acquire over budget: err = %v, want ErrMemoryBudgetExceeded", err)
	}

	m.release(a)
	m.release(b)

	// A transform buffer cannot reuse either; the least recently released
	// buffer (a) is evicted.
	if _, err := m.acquire(batch.BufferTransform, half, "c"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	stats := m.Stats()
	if stats.EvictionCount != 1 {
		t.Errorf("EvictionCount = %d, want 1", stats.EvictionCount)
	}
	if stats.UsedBytes != 2*half {
		t.Errorf("UsedBytes = %d, want %d", stats.UsedBytes, 2*half)
	}
	if got := dev.destroyed.Load(); got != 1 {
		t.Errorf("destroyed = %d, want 1", got)
	}
}

func TestMemoryManagerOversized(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	m := NewMemoryManager(device, MemoryConfig{MaxMemoryMB: 1})
	if _, err := m.acquire(batch.BufferVertex, 2*1024*1024, "big"); !errors.Is(err, ErrMemoryBudgetExceeded) {
		t.Errorf("err = %v, want ErrMemoryBudgetExceeded", err)
	}
}

func TestMemoryManagerSetBudget(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	m := NewMemoryManager(device, MemoryConfig{MaxMemoryMB: 4})
	b, err := m.acquire(batch.BufferVertex, 2*1024*1024, "v")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	m.release(b)

	if err := m.SetBudget(1); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	stats := m.Stats()
	if stats.Idle != 0 || stats.UsedBytes != 0 {
		t.Errorf("after shrink: %s", stats)
	}
	if stats.TotalBytes != 1024*1024 {
		t.Errorf("TotalBytes = %d, want 1 MB", stats.TotalBytes)
	}
}

func TestMemoryManagerClose(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}

	m := NewMemoryManager(dev, MemoryConfig{})
	idle, _ := m.acquire(batch.BufferVertex, 256, "idle")
	held, _ := m.acquire(batch.BufferVertex, 256, "held")
	m.release(idle)

	m.Close()
	if got := dev.destroyed.Load(); got != 1 {
		t.Errorf("destroyed after Close = %d, want 1", got)
	}
	m.release(held)
	if got := dev.destroyed.Load(); got != 2 {
		t.Errorf("destroyed after release = %d, want 2", got)
	}
	if _, err := m.acquire(batch.BufferVertex, 256, "x"); !errors.Is(err, ErrAllocatorClosed) {
		t.Errorf("acquire after Close: err = %v, want ErrAllocatorClosed", err)
	}
	if err := m.SetBudget(8); !errors.Is(err, ErrAllocatorClosed) {
		t.Errorf("SetBudget after Close: err = %v, want ErrAllocatorClosed", err)
	}
}

// =============================================================================
// Allocator Tests
// =============================================================================

func TestAllocatorRun(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	alloc := NewAllocator(device, queue, AllocatorConfig{})
	defer alloc.Close()

	res, err := batch.New().Run(context.Background(), quadList(), testSet(), alloc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	vb, ib, tb := res.Totals.Bytes()
	for _, tt := range []struct {
		region batch.Region
		kind   batch.BufferKind
		size   uint64
	}{
		{res.Buffers.Vertexes, batch.BufferVertex, vb},
		{res.Buffers.Indexes, batch.BufferIndex, ib},
		{res.Buffers.Transforms, batch.BufferTransform, tb},
	} {
		br, ok := tt.region.(*BufferRegion)
		if !ok {
			t.Fatalf("%s region is %T, want *BufferRegion", tt.kind, tt.region)
		}
		if br.Kind() != tt.kind || br.Size() != tt.size {
			t.Errorf("%s region: kind=%s size=%d, want size %d", tt.kind, br.Kind(), br.Size(), tt.size)
		}
		if br.Buffer() == nil {
			t.Errorf("%s region has no buffer", tt.kind)
		}
	}
	if got := alloc.Stats().InUse; got != 3 {
		t.Errorf("InUse = %d, want 3", got)
	}

	alloc.Release(res)
	alloc.Release(res)
	if got := alloc.Stats(); got.InUse != 0 || got.Idle != 3 {
		t.Errorf("after Release: %s", got)
	}

	// The next frame reuses the pooled buffers.
	if _, err := batch.New().Run(context.Background(), quadList(), testSet(), alloc); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := alloc.Stats().Reused; got != 3 {
		t.Errorf("Reused = %d, want 3", got)
	}
}

func TestAllocatorBudgetFailure(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	alloc := NewAllocator(device, queue, AllocatorConfig{MaxMemoryMB: 1})
	defer alloc.Close()

	l := command.NewList()
	verts := make([]command.Vertex, 40000)
	idx := make([]uint32, 3)
	l.PushVertexArray(&command.VertexData{Vertices: verts, Indexes: idx}, mgl32.Ident4(),
		command.Info{Material: 1, ZPath: command.ZPath{0}})

	_, err := batch.New().Run(context.Background(), l, testSet(), alloc)
	if !errors.Is(err, batch.ErrAllocation) {
		t.Fatalf("err = %v, want ErrAllocation", err)
	}
	if !errors.Is(err, ErrMemoryBudgetExceeded) {
		t.Errorf("err = %v, want wrapped ErrMemoryBudgetExceeded", err)
	}
}

func TestAllocatorClosed(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	alloc := NewAllocator(device, queue, AllocatorConfig{})
	alloc.Close()
	alloc.Close()
	if _, err := alloc.Allocate(batch.BufferVertex, 64); !errors.Is(err, ErrAllocatorClosed) {
		t.Errorf("err = %v, want ErrAllocatorClosed", err)
	}
}

func TestAllocatorZeroSize(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	alloc := NewAllocator(device, queue, AllocatorConfig{})
	defer alloc.Close()
	if _, err := alloc.Allocate(batch.BufferIndex, 0); !errors.Is(err, batch.ErrAllocation) {
		t.Errorf("err = %v, want ErrAllocation", err)
	}
}

func TestBufferRegionFlushAfterRelease(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	alloc := NewAllocator(device, queue, AllocatorConfig{})
	defer alloc.Close()

	r, err := alloc.Allocate(batch.BufferVertex, 48)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := r.Flush(); err != nil {
		t.Errorf("Flush: %v", err)
	}
	br := r.(*BufferRegion)
	br.Release()
	if err := br.Flush(); err == nil {
		t.Error("Flush after Release should fail")
	}
}

func TestNewAllocatorFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
		wantErr  bool
	}{
		{"valid", provider{device: device, queue: queue}, false},
		{"nil provider", nil, true},
		{"no HAL access", plainProvider{}, true},
		{"bad device", provider{device: "device", queue: queue}, true},
		{"bad queue", provider{device: device, queue: 42}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAllocatorFromProvider(tt.provider, AllocatorConfig{})
			if tt.wantErr {
				if !errors.Is(err, ErrNoDevice) {
					t.Errorf("err = %v, want ErrNoDevice", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			a.Close()
		})
	}
}
