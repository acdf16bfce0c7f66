package batch

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/drawplan/command"
)

// WriteTarget is the destination of one frame's serialized data: three byte
// regions with forward-only cursors. Writing past the end of a region is a
// planning bug and panics.
type WriteTarget struct {
	vertexes   []byte
	indexes    []byte
	transforms []byte

	vertexCursor    uint32
	indexCursor     uint32
	transformCursor uint32
}

// NewWriteTarget creates a target over the given regions.
func NewWriteTarget(vertexes, indexes, transforms []byte) *WriteTarget {
	return &WriteTarget{vertexes: vertexes, indexes: indexes, transforms: transforms}
}

// Vertexes returns the number of vertices written.
func (t *WriteTarget) Vertexes() uint32 { return t.vertexCursor }

// Indexes returns the number of indexes written.
func (t *WriteTarget) Indexes() uint32 { return t.indexCursor }

// Transforms returns the number of transforms written.
func (t *WriteTarget) Transforms() uint32 { return t.transformCursor }

func putFloat(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}

func putVec4(b []byte, v mgl32.Vec4) {
	putFloat(b[0:], v[0])
	putFloat(b[4:], v[1])
	putFloat(b[8:], v[2])
	putFloat(b[12:], v[3])
}

func (t *WriteTarget) reserve(buf []byte, cursor uint32, stride int, what string) []byte {
	off := int(cursor) * stride
	if off+stride > len(buf) {
		panic(fmt.Sprintf("batch: %s buffer overflow at element %d (capacity %d)",
			what, cursor, len(buf)/stride))
	}
	return buf[off : off+stride]
}

// putVertex writes v and returns its vertex index.
func (t *WriteTarget) putVertex(v *command.Vertex) uint32 {
	b := t.reserve(t.vertexes, t.vertexCursor, command.VertexStride, "vertex")
	putVec4(b[0:], v.Pos)
	putVec4(b[16:], v.Color)
	putFloat(b[32:], v.Tex[0])
	putFloat(b[36:], v.Tex[1])
	binary.LittleEndian.PutUint32(b[40:], v.Object)
	binary.LittleEndian.PutUint32(b[44:], v.Material)
	idx := t.vertexCursor
	t.vertexCursor++
	return idx
}

func (t *WriteTarget) putIndex(i uint32) {
	b := t.reserve(t.indexes, t.indexCursor, command.IndexStride, "index")
	binary.LittleEndian.PutUint32(b, i)
	t.indexCursor++
}

// putTransform writes td and returns its transform index.
func (t *WriteTarget) putTransform(td *command.TransformData) uint32 {
	b := t.reserve(t.transforms, t.transformCursor, command.TransformStride, "transform")
	for i, f := range td.Transform {
		putFloat(b[4*i:], f)
	}
	putVec4(b[64:], td.Offset)
	putVec4(b[80:], td.Shadow)
	idx := t.transformCursor
	t.transformCursor++
	return idx
}

// mustBeFull panics unless exactly totals elements were written.
func (t *WriteTarget) mustBeFull(totals Totals) {
	if t.vertexCursor != totals.Vertexes || t.indexCursor != totals.Indexes || t.transformCursor != totals.Transforms {
		panic(fmt.Sprintf("batch: wrote %d/%d/%d elements, planned %d/%d/%d",
			t.vertexCursor, t.indexCursor, t.transformCursor,
			totals.Vertexes, totals.Indexes, totals.Transforms))
	}
}

// DecodeVertex reads the vertex at index i of a serialized vertex buffer.
func DecodeVertex(buf []byte, i uint32) command.Vertex {
	b := buf[int(i)*command.VertexStride:]
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	return command.Vertex{
		Pos:      mgl32.Vec4{f(0), f(4), f(8), f(12)},
		Color:    mgl32.Vec4{f(16), f(20), f(24), f(28)},
		Tex:      mgl32.Vec2{f(32), f(36)},
		Object:   binary.LittleEndian.Uint32(b[40:]),
		Material: binary.LittleEndian.Uint32(b[44:]),
	}
}

// DecodeIndex reads the index at position i of a serialized index buffer.
func DecodeIndex(buf []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(buf[int(i)*command.IndexStride:])
}

// DecodeTransform reads the transform at index i of a serialized transform
// buffer.
func DecodeTransform(buf []byte, i uint32) command.TransformData {
	b := buf[int(i)*command.TransformStride:]
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	var td command.TransformData
	for j := range td.Transform {
		td.Transform[j] = f(4 * j)
	}
	td.Offset = mgl32.Vec4{f(64), f(68), f(72), f(76)}
	td.Shadow = mgl32.Vec4{f(80), f(84), f(88), f(92)}
	return td
}
