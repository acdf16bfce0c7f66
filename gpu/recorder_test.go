package gpu

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/drawplan/batch"
	"github.com/gogpu/drawplan/command"
)

// =============================================================================
// Fakes
// =============================================================================

type fakePipeline struct{ name string }

func (*fakePipeline) Destroy() {}

type fakeGroup struct{ name string }

func (*fakeGroup) Destroy() {}

type fakeBindings struct {
	pipelines map[command.MaterialID]hal.RenderPipeline
	groups    map[command.MaterialID]hal.BindGroup
}

func (b *fakeBindings) Pipeline(id command.MaterialID) (hal.RenderPipeline, bool) {
	p, ok := b.pipelines[id]
	return p, ok
}

func (b *fakeBindings) BindGroup(id command.MaterialID) (hal.BindGroup, bool) {
	g, ok := b.groups[id]
	return g, ok
}

// fakePass records calls as strings.
type fakePass struct {
	calls []string
}

func (p *fakePass) SetPipeline(pipeline hal.RenderPipeline) {
	p.calls = append(p.calls, "pipeline "+pipeline.(*fakePipeline).name)
}

func (p *fakePass) SetBindGroup(index uint32, group hal.BindGroup, _ []uint32) {
	name := "frame"
	if g, ok := group.(*fakeGroup); ok {
		name = g.name
	}
	p.calls = append(p.calls, fmt.Sprintf("group %d %s", index, name))
}

func (p *fakePass) SetIndexBuffer(_ hal.Buffer, format gputypes.IndexFormat, _ uint64) {
	if format != gputypes.IndexFormatUint32 {
		p.calls = append(p.calls, "index bad-format")
		return
	}
	p.calls = append(p.calls, "index")
}

func (p *fakePass) SetScissorRect(x, y, w, h uint32) {
	p.calls = append(p.calls, fmt.Sprintf("scissor %d %d %d %d", x, y, w, h))
}

func (p *fakePass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, _ int32, _ uint32) {
	p.calls = append(p.calls, fmt.Sprintf("draw %d %d %d", indexCount, instanceCount, firstIndex))
}

type fakeParticles struct {
	systems []command.ParticleSystemID
	err     error
}

func (f *fakeParticles) DrawParticles(_ PassEncoder, span batch.VertexSpan) error {
	f.systems = append(f.systems, span.ParticleSystem)
	return f.err
}

func equalCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

func TestClampScissor(t *testing.T) {
	tests := []struct {
		name       string
		rect       command.Rect
		x, y, w, h uint32
	}{
		{"inside", command.Rect{X: 10, Y: 20, Width: 30, Height: 40}, 10, 20, 30, 40},
		{"negative origin", command.Rect{X: -10, Y: -5, Width: 30, Height: 10}, 0, 0, 20, 5},
		{"past edge", command.Rect{X: 90, Y: 90, Width: 30, Height: 30}, 90, 90, 10, 10},
		{"outside", command.Rect{X: 200, Y: 0, Width: 10, Height: 10}, 100, 0, 0, 10},
		{"fully negative", command.Rect{X: -50, Y: 0, Width: 10, Height: 10}, 0, 0, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, w, h := clampScissor(tt.rect, 100, 100)
			if x != tt.x || y != tt.y || w != tt.w || h != tt.h {
				t.Errorf("clampScissor = (%d,%d,%d,%d), want (%d,%d,%d,%d)",
					x, y, w, h, tt.x, tt.y, tt.w, tt.h)
			}
		})
	}
}

func TestRecorderRecord(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	alloc := NewAllocator(device, queue, AllocatorConfig{})
	defer alloc.Close()

	l := quadList()
	clipped := l.AddState(command.DrawState{
		ScissorEnabled: true,
		Scissor:        command.Rect{X: -4, Y: 8, Width: 20, Height: 20},
	})
	c := mgl32.Vec4{1, 1, 1, 1}
	l.PushVertexArray(&command.VertexData{
		Vertices: []command.Vertex{{Color: c}, {Color: c}, {Color: c}},
		Indexes:  []uint32{0, 1, 2},
	}, mgl32.Ident4(), command.Info{Material: 2, ZPath: command.ZPath{2}, State: clipped})

	res, err := batch.New().Run(context.Background(), l, testSet(), alloc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	solid := &fakePipeline{"solid"}
	bindings := &fakeBindings{
		pipelines: map[command.MaterialID]hal.RenderPipeline{1: solid, 2: &fakePipeline{"alpha"}},
		groups:    map[command.MaterialID]hal.BindGroup{1: &fakeGroup{"m1"}, 2: &fakeGroup{"m2"}},
	}
	pass := &fakePass{}
	rec := NewRecorder(bindings, nil, 64, 32)

	stat, err := rec.Record(pass, res, nil)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Index 0..5 is the initial quad; the solid quad follows, then the
	// alpha quad and the clipped triangle.
	equalCalls(t, pass.calls, []string{
		"group 0 frame",
		"index",
		"pipeline solid",
		"group 1 m1",
		"scissor 0 0 64 32",
		"draw 6 1 6",
		"pipeline alpha",
		"group 1 m2",
		"draw 6 1 12",
		"scissor 0 8 16 20",
		"draw 3 1 18",
	})
	if stat.DrawCalls != 3 || stat.PipelineBinds != 2 || stat.BindGroupBinds != 2 {
		t.Errorf("stat = %+v", stat)
	}
}

func TestRecorderMissingPipeline(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	alloc := NewAllocator(device, queue, AllocatorConfig{})
	defer alloc.Close()

	res, err := batch.New().Run(context.Background(), quadList(), testSet(), alloc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	bindings := &fakeBindings{
		pipelines: map[command.MaterialID]hal.RenderPipeline{2: &fakePipeline{"alpha"}},
		groups:    map[command.MaterialID]hal.BindGroup{1: &fakeGroup{"m1"}, 2: &fakeGroup{"m2"}},
	}
	pass := &fakePass{}
	stat, err := NewRecorder(bindings, nil, 8, 8).Record(pass, res, nil)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if stat.Skipped != 1 || stat.DrawCalls != 1 {
		t.Errorf("stat = %+v, want 1 skipped and 1 draw", stat)
	}
}

func TestRecorderMissingBindGroup(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	alloc := NewAllocator(device, queue, AllocatorConfig{})
	defer alloc.Close()

	res, err := batch.New().Run(context.Background(), quadList(), testSet(), alloc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	bindings := &fakeBindings{
		pipelines: map[command.MaterialID]hal.RenderPipeline{1: &fakePipeline{"solid"}, 2: &fakePipeline{"alpha"}},
		groups:    map[command.MaterialID]hal.BindGroup{1: &fakeGroup{"m1"}},
	}
	pass := &fakePass{}
	stat, err := NewRecorder(bindings, nil, 8, 8).Record(pass, res, nil)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if stat.Skipped != 1 || stat.DrawCalls != 1 {
		t.Errorf("stat = %+v, want 1 skipped and 1 draw", stat)
	}
	// Material 2 must not draw with material 1's resources.
	equalCalls(t, pass.calls, []string{
		"group 0 frame",
		"index",
		"pipeline solid",
		"group 1 m1",
		"scissor 0 0 8 8",
		"draw 6 1 6",
	})
}

func TestRecorderParticles(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	alloc := NewAllocator(device, queue, AllocatorConfig{})
	defer alloc.Close()

	l := quadList()
	l.PushParticleEmitter(7, mgl32.Ident4(), command.Info{Material: 2, ZPath: command.ZPath{3}})
	res, err := batch.New().Run(context.Background(), l, testSet(), alloc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	bindings := &fakeBindings{
		pipelines: map[command.MaterialID]hal.RenderPipeline{1: &fakePipeline{"solid"}, 2: &fakePipeline{"alpha"}},
		groups:    map[command.MaterialID]hal.BindGroup{1: &fakeGroup{"m1"}, 2: &fakeGroup{"m2"}},
	}

	t.Run("drawer", func(t *testing.T) {
		drawer := &fakeParticles{}
		stat, err := NewRecorder(bindings, drawer, 8, 8).Record(&fakePass{}, res, nil)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if len(drawer.systems) != 1 || drawer.systems[0] != 7 {
			t.Errorf("particle systems = %v, want [7]", drawer.systems)
		}
		if stat.DrawCalls != 3 {
			t.Errorf("DrawCalls = %d, want 3", stat.DrawCalls)
		}
	})

	t.Run("no drawer", func(t *testing.T) {
		stat, err := NewRecorder(bindings, nil, 8, 8).Record(&fakePass{}, res, nil)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if stat.Skipped != 1 {
			t.Errorf("Skipped = %d, want 1", stat.Skipped)
		}
	})

	t.Run("drawer error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := NewRecorder(bindings, &fakeParticles{err: boom}, 8, 8).Record(&fakePass{}, res, nil)
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})
}

func TestRecorderHostResult(t *testing.T) {
	res, err := batch.New().Run(context.Background(), quadList(), testSet(), batch.NewHostAllocator())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err = NewRecorder(&fakeBindings{}, nil, 8, 8).Record(&fakePass{}, res, nil)
	if !errors.Is(err, ErrNoIndexBuffer) {
		t.Errorf("err = %v, want ErrNoIndexBuffer", err)
	}
}

func TestRecorderEmptyResult(t *testing.T) {
	res, err := batch.New().Run(context.Background(), command.NewList(), testSet(), batch.NewHostAllocator())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	pass := &fakePass{}
	if _, err := NewRecorder(&fakeBindings{}, nil, 8, 8).Record(pass, res, nil); err != nil {
		t.Errorf("Record(empty) = %v", err)
	}
	if len(pass.calls) != 0 {
		t.Errorf("calls = %q, want none", pass.calls)
	}
}
