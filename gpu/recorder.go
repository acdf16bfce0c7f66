package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/drawplan/batch"
	"github.com/gogpu/drawplan/command"
)

// ErrNoIndexBuffer is returned when a result was not allocated by an
// [Allocator] and its index region has no hal buffer.
var ErrNoIndexBuffer = errors.New("gpu: result has no hal index buffer")

// Bind group slots used by the recorder.
const (
	// FrameGroup holds the frame's vertex and transform storage buffers.
	FrameGroup = 0

	// MaterialGroup holds per-material resources.
	MaterialGroup = 1
)

// PassEncoder is the subset of hal.RenderPassEncoder the recorder uses.
type PassEncoder interface {
	SetPipeline(pipeline hal.RenderPipeline)
	SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32)
	SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64)
	SetScissorRect(x, y, width, height uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
}

// Bindings resolves the GPU objects of a material.
type Bindings interface {
	Pipeline(id command.MaterialID) (hal.RenderPipeline, bool)
	BindGroup(id command.MaterialID) (hal.BindGroup, bool)
}

// ParticleDrawer records particle spans. Particle geometry is produced by a
// simulation the batcher does not own.
type ParticleDrawer interface {
	DrawParticles(pass PassEncoder, span batch.VertexSpan) error
}

// RecordStat counts what a Record call emitted.
type RecordStat struct {
	DrawCalls      int
	PipelineBinds  int
	BindGroupBinds int
	Skipped        int
}

// Recorder replays the spans of a batch result into a render pass.
type Recorder struct {
	bindings  Bindings
	particles ParticleDrawer

	width, height uint32
}

// NewRecorder creates a recorder for a viewport of width x height pixels.
// particles may be nil, in which case particle spans are skipped.
func NewRecorder(bindings Bindings, particles ParticleDrawer, width, height uint32) *Recorder {
	return &Recorder{bindings: bindings, particles: particles, width: width, height: height}
}

// Resize updates the viewport used for disabled and clamped scissors.
func (r *Recorder) Resize(width, height uint32) {
	r.width, r.height = width, height
}

// Record emits the draw calls of res. Pipelines and bind groups are bound
// only when they change between consecutive spans. Spans whose material has
// no pipeline or no bind group are skipped.
func (r *Recorder) Record(pass PassEncoder, res *batch.Result, frameGroup hal.BindGroup) (RecordStat, error) {
	var stat RecordStat
	if res == nil || res.Empty() {
		return stat, nil
	}
	if res.Buffers == nil {
		return stat, ErrNoIndexBuffer
	}
	idx, ok := res.Buffers.Indexes.(*BufferRegion)
	if !ok {
		return stat, ErrNoIndexBuffer
	}

	pass.SetBindGroup(FrameGroup, frameGroup, nil)
	pass.SetIndexBuffer(idx.Buffer(), gputypes.IndexFormatUint32, 0)

	var (
		pipeline    hal.RenderPipeline
		group       hal.BindGroup
		state       command.StateID
		stateBound  bool
		material    command.MaterialID
		materialSet bool
	)
	for _, span := range res.Spans {
		if !materialSet || span.Material != material {
			p, ok := r.bindings.Pipeline(span.Material)
			if !ok {
				slogger().Warn("gpu: no pipeline for material", "material", span.Material)
				stat.Skipped++
				continue
			}
			g, ok := r.bindings.BindGroup(span.Material)
			if !ok {
				slogger().Warn("gpu: no bind group for material", "material", span.Material)
				stat.Skipped++
				continue
			}
			if p != pipeline {
				pass.SetPipeline(p)
				pipeline = p
				stat.PipelineBinds++
			}
			if g != group {
				pass.SetBindGroup(MaterialGroup, g, nil)
				group = g
				stat.BindGroupBinds++
			}
			material, materialSet = span.Material, true
		}

		if !stateBound || span.State != state {
			ds, _ := res.State(span.State)
			r.setScissor(pass, ds)
			state, stateBound = span.State, true
		}

		if span.Kind == batch.SpanParticles {
			if r.particles == nil {
				stat.Skipped++
				continue
			}
			if err := r.particles.DrawParticles(pass, span); err != nil {
				return stat, fmt.Errorf("gpu: particles %d: %w", span.ParticleSystem, err)
			}
			stat.DrawCalls++
			continue
		}

		pass.DrawIndexed(span.IndexCount, span.InstanceCount, span.FirstIndex, 0, span.FirstInstance)
		stat.DrawCalls++
	}
	return stat, nil
}

func (r *Recorder) setScissor(pass PassEncoder, ds command.DrawState) {
	if !ds.ScissorEnabled {
		pass.SetScissorRect(0, 0, r.width, r.height)
		return
	}
	x, y, w, h := clampScissor(ds.Scissor, r.width, r.height)
	pass.SetScissorRect(x, y, w, h)
}

// clampScissor clips rect to the viewport. Negative origins shrink the
// rectangle.
func clampScissor(rect command.Rect, width, height uint32) (x, y, w, h uint32) {
	x0, y0 := int64(rect.X), int64(rect.Y)
	x1, y1 := x0+int64(rect.Width), y0+int64(rect.Height)
	x0 = min(max(x0, 0), int64(width))
	y0 = min(max(y0, 0), int64(height))
	x1 = min(max(x1, x0), int64(width))
	y1 = min(max(y1, y0), int64(height))
	//nolint:gosec // G115: values clamped to [0, viewport]
	return uint32(x0), uint32(y0), uint32(x1 - x0), uint32(y1 - y0)
}
