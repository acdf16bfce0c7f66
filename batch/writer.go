package batch

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"

	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/material"
)

// Writer serializes a plan into a [WriteTarget] in a single forward pass.
type Writer struct {
	opts options
}

// NewWriter creates a writer with the given options.
func NewWriter(opts ...Option) *Writer {
	return &Writer{opts: newOptions(opts)}
}

// QuantizeDepth round-trips v through a 16-bit float so host values match
// the half-float comparisons of the shadow shaders.
func QuantizeDepth(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}

// packMaterial builds the vertex material word: the low 16 bits of the
// material id and the transform index in the high 16 bits.
func packMaterial(id command.MaterialID, transform uint32) uint32 {
	return uint32(id)&0xFFFF | transform<<16
}

// Write serializes p in the order o into t and records the span of every
// draw block. The target must be sized to p.Totals(); any mismatch panics.
func (w *Writer) Write(p *Plan, o *DrawOrder, t *WriteTarget) {
	w.writeInitial(t)
	for _, g := range p.gradients {
		w.writeGradient(t, g)
	}

	for i := range o.blocks {
		b := &o.blocks[i]
		b.span = o.baseSpan(b)
		switch b.kind {
		case blockInstanced:
			w.writeInstanced(p, t, b)
		case blockPacked:
			w.writePacked(p, t, b)
		case blockParticle:
			w.writeParticle(p, t, b)
		}
	}

	t.mustBeFull(p.Totals())
	o.written = true
}

// writeInitial writes the full-screen quad with UVs rotated to match the
// surface transform.
func (w *Writer) writeInitial(t *WriteTarget) {
	identity := command.IdentityTransform()
	t.putTransform(&identity)

	uv := [4]mgl32.Vec2{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	switch w.opts.surfaceTransform {
	case TransformRotate90:
		uv = [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	case TransformRotate180:
		uv = [4]mgl32.Vec2{{1, 1}, {1, 0}, {0, 0}, {0, 1}}
	case TransformRotate270:
		uv = [4]mgl32.Vec2{{1, 0}, {0, 0}, {0, 1}, {1, 1}}
	}
	pos := [4]mgl32.Vec4{{-1, -1, 0, 1}, {-1, 1, 0, 1}, {1, 1, 0, 1}, {1, -1, 0, 1}}
	for i := range pos {
		t.putVertex(&command.Vertex{Pos: pos[i], Color: mgl32.Vec4{1, 1, 1, 1}, Tex: uv[i]})
	}
	for _, idx := range [initialIndexes]uint32{0, 2, 1, 0, 3, 2} {
		t.putIndex(idx)
	}
}

// writeGradient writes the endpoint vertices followed by one vertex per
// stop. Endpoints and axis are in surface space. The first endpoint carries
// the axis direction as (cos, sin), the second carries (length, 1/length).
func (w *Writer) writeGradient(t *WriteTarget, g *gradientPlan) {
	grad := g.gradient
	start := w.opts.surfaceTransform.Rotate(grad.Start)
	end := w.opts.surfaceTransform.Rotate(grad.End)
	axis := end.Sub(start)
	length := axis.Len()
	angle := math.Atan2(float64(axis[1]), float64(axis[0]))
	var inv float32
	if length > 0 {
		inv = 1 / length
	}

	first := grad.Stops[0].Color
	last := grad.Stops[len(grad.Stops)-1].Color
	t.putVertex(&command.Vertex{
		Pos:   mgl32.Vec4{start[0], start[1], 0, 1},
		Color: first,
		Tex:   mgl32.Vec2{float32(math.Cos(angle)), float32(math.Sin(angle))},
	})
	t.putVertex(&command.Vertex{
		Pos:   mgl32.Vec4{end[0], end[1], 0, 1},
		Color: last,
		Tex:   mgl32.Vec2{length, inv},
	})
	for _, s := range grad.Stops {
		t.putVertex(&command.Vertex{Color: s.Color, Tex: mgl32.Vec2{s.Position, 0}})
	}
}

// writeTransform writes one instance transform with its path depth and
// quantized shadow depth.
func (w *Writer) writeTransform(p *Plan, t *WriteTarget, m mgl32.Mat4, zpath command.ZPath, depth float32) uint32 {
	td := command.TransformData{Transform: m}
	td.Offset[2] = p.pathDepth(zpath)
	if depth > 0 {
		v := QuantizeDepth(depth)
		td.Shadow = mgl32.Vec4{v, v, v, 1}
	}
	return t.putTransform(&td)
}

// writeVertexes writes the blob's vertices tagged with the transform index
// and its indexes rebased to the first written vertex.
func (w *Writer) writeVertexes(t *WriteTarget, m *material.Material, n *VertexDataPlanInfo, transform uint32) {
	n.VertexOffset = t.vertexCursor
	n.IndexOffset = t.indexCursor

	atlas := m.Atlas
	if w.opts.gpuIndexedAtlases {
		atlas = nil
	}
	word := packMaterial(m.ID, transform)
	missing := 0
	for i := range n.Data.Vertices {
		v := n.Data.Vertices[i]
		v.Material = word
		if atlas != nil {
			if a, ok := atlas.Lookup(v.Object); ok {
				v.Pos[0] += a.Pos[0]
				v.Pos[1] += a.Pos[1]
				v.Tex = a.Tex
			} else {
				v.Tex = atlas.FallbackTex(v.Object)
				missing++
			}
		}
		t.putVertex(&v)
	}
	if missing > 0 {
		slogger().Debug("batch: atlas objects not found", "material", m.ID, "count", missing)
	}

	for _, idx := range n.Data.Indexes {
		t.putIndex(idx + n.VertexOffset)
	}
	n.written = true
}

func (w *Writer) writeInstanced(p *Plan, t *WriteTarget, b *drawBlock) {
	n := b.node
	n.TransformOffset = t.transformCursor
	for _, inst := range n.instances {
		w.writeTransform(p, t, inst.transform, inst.zpath, inst.depth)
	}
	w.writeVertexes(t, b.material.Material, n, n.TransformOffset)

	b.span.FirstIndex = n.IndexOffset
	b.span.IndexCount = n.IndexCount()
	b.span.InstanceCount = n.InstanceCount()
	b.span.VertexOffset = n.VertexOffset
	b.span.VertexCount = n.VertexCount()
}

func (w *Writer) writePacked(p *Plan, t *WriteTarget, b *drawBlock) {
	b.span.FirstIndex = t.indexCursor
	b.span.VertexOffset = t.vertexCursor
	b.span.InstanceCount = 1
	for n := range b.state.Packed() {
		inst := n.instances[0]
		n.TransformOffset = w.writeTransform(p, t, inst.transform, inst.zpath, inst.depth)
		w.writeVertexes(t, b.material.Material, n, n.TransformOffset)
		b.span.IndexCount += n.IndexCount()
		b.span.VertexCount += n.VertexCount()
	}
}

func (w *Writer) writeParticle(p *Plan, t *WriteTarget, b *drawBlock) {
	pp := b.particle
	pp.transformOffset = w.writeTransform(p, t, pp.transform, pp.zpath, 0)
	b.span.Kind = SpanParticles
	b.span.FirstInstance = pp.transformOffset
	b.span.ParticleSystem = pp.system
}
