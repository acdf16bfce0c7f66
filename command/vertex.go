package command

import "github.com/go-gl/mathgl/mgl32"

// VertexStride is the byte size of one serialized [Vertex]:
//
//	pos      (vec4<f32>) = 16 bytes
//	color    (vec4<f32>) = 16 bytes
//	tex      (vec2<f32>) =  8 bytes
//	object   (u32)       =  4 bytes
//	material (u32)       =  4 bytes
//
// Total = 48 bytes per vertex.
const VertexStride = 48

// TransformStride is the byte size of one serialized [TransformData]:
//
//	transform (mat4x4<f32>) = 64 bytes
//	offset    (vec4<f32>)   = 16 bytes
//	shadow    (vec4<f32>)   = 16 bytes
//
// Total = 96 bytes per transform.
const TransformStride = 96

// IndexStride is the byte size of one index (u32).
const IndexStride = 4

// Vertex is a single vertex as consumed by the 2D material shaders.
type Vertex struct {
	Pos   mgl32.Vec4
	Color mgl32.Vec4
	Tex   mgl32.Vec2

	// Object is a logical atlas object id. For atlas-backed materials the
	// writer replaces it with a concrete atlas position and UV.
	Object uint32

	// Material is filled by the writer with the packed material id and
	// transform index. Values set by the producer are overwritten.
	Material uint32
}

// VertexData is an immutable vertex and index blob.
type VertexData struct {
	Vertices []Vertex
	Indexes  []uint32
}

// Empty reports whether the blob has nothing to draw.
func (d *VertexData) Empty() bool {
	return d == nil || len(d.Vertices) == 0 || len(d.Indexes) == 0
}

// TransformData is a per-instance transform record.
type TransformData struct {
	Transform mgl32.Mat4

	// Offset carries the per-frame path depth in its Z component.
	Offset mgl32.Vec4

	// Shadow carries the quantized shadow depth value as (v, v, v, 1).
	Shadow mgl32.Vec4
}

// NewTransformData returns a transform record with the given model-view
// matrix and zero offset and shadow.
func NewTransformData(m mgl32.Mat4) TransformData {
	return TransformData{Transform: m}
}

// IdentityTransform returns a transform record with the identity matrix.
func IdentityTransform() TransformData {
	return TransformData{Transform: mgl32.Ident4()}
}

// InstanceVertexData pairs a vertex blob with the transforms it is drawn at.
//
// The index buffer of Data is laid out as fill indexes, then stroke indexes,
// then SdfIndexes trailing indexes used only by the shadow SDF pass.
type InstanceVertexData struct {
	Data      *VertexData
	Instances []TransformData

	FillIndexes   uint32
	StrokeIndexes uint32
	SdfIndexes    uint32
}

// SolidIndexCount returns the number of leading non-SDF indexes.
func (d *InstanceVertexData) SolidIndexCount() uint32 {
	n := uint32(len(d.Data.Indexes)) //nolint:gosec // index counts fit uint32
	if d.SdfIndexes >= n {
		return 0
	}
	return n - d.SdfIndexes
}
