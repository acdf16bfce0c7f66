package command

import "github.com/go-gl/mathgl/mgl32"

// StateID identifies a [DrawState] in a frame's state table.
type StateID uint32

// NoState is the implicit default draw state: no scissor, no gradient.
const NoState StateID = 0

// Rect is a pixel rectangle.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// GradientStop is one color stop of a linear gradient.
type GradientStop struct {
	// Position along the gradient axis in [0, 1].
	Position float32
	Color    mgl32.Vec4
}

// Gradient is a linear gradient evaluated by the shading stage.
// Start and End are in frame coordinates.
type Gradient struct {
	Start mgl32.Vec2
	End   mgl32.Vec2
	Stops []GradientStop
}

// VertexCount returns the number of gradient vertex slots the state reserves:
// two endpoints plus one per stop.
func (g *Gradient) VertexCount() uint32 {
	if g == nil {
		return 0
	}
	return uint32(len(g.Stops)) + 2 //nolint:gosec // stop counts are small
}

// DrawState is dynamic state shared by a group of commands.
type DrawState struct {
	// Scissor restricts drawing when ScissorEnabled is set.
	Scissor        Rect
	ScissorEnabled bool

	// OutlineOffset is an opaque offset into an external outline table,
	// forwarded to every span drawn with this state.
	OutlineOffset uint32

	// Gradient is optional.
	Gradient *Gradient
}
