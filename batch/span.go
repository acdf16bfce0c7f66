package batch

import (
	"fmt"

	"github.com/gogpu/drawplan/command"
)

// Tier is a draw ordering class. Tiers are emitted in declaration order.
type Tier uint8

// Draw tiers.
const (
	TierSolid Tier = iota
	TierSurface
	TierTransparent

	tierCount
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierSolid:
		return "Solid"
	case TierSurface:
		return "Surface"
	case TierTransparent:
		return "Transparent"
	default:
		return fmt.Sprintf("Tier(%d)", t)
	}
}

// SpanKind distinguishes indexed geometry draws from particle draws.
type SpanKind uint8

// Span kinds.
const (
	SpanGeometry SpanKind = iota
	SpanParticles
)

// VertexSpan describes one draw call. Spans are immutable once produced.
//
// Geometry spans draw IndexCount indexes starting at FirstIndex with
// InstanceCount instances. Indexes are absolute, so base vertex is always 0.
// The first transform of an instanced draw is encoded in the vertices, and
// FirstInstance is 0.
//
// Particle spans carry no index data. FirstInstance is the index of the
// emitter transform and ParticleSystem names the simulated system.
type VertexSpan struct {
	Kind     SpanKind
	Material command.MaterialID

	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32

	// VertexOffset and VertexCount describe the vertex range the span reads.
	VertexOffset uint32
	VertexCount  uint32

	FirstInstance uint32
	State         command.StateID

	// GradientOffset is the first gradient vertex of the span's draw state.
	// GradientCount is zero when the state has no gradient.
	GradientOffset uint32
	GradientCount  uint32

	OutlineOffset  uint32
	ParticleSystem command.ParticleSystemID
}

// String returns a short description for logs.
func (s VertexSpan) String() string {
	if s.Kind == SpanParticles {
		return fmt.Sprintf("Span(particles mat=%d state=%d system=%d transform=%d)",
			s.Material, s.State, s.ParticleSystem, s.FirstInstance)
	}
	return fmt.Sprintf("Span(mat=%d state=%d idx=%d+%d inst=%d)",
		s.Material, s.State, s.FirstIndex, s.IndexCount, s.InstanceCount)
}
