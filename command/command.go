package command

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// MaterialID identifies a material in a material set.
type MaterialID uint32

// ParticleSystemID identifies an externally simulated particle system.
type ParticleSystemID uint64

// Kind is the type tag of a [Command].
type Kind uint8

// Command kinds.
const (
	KindVertexArray Kind = iota
	KindDeferred
	KindParticleEmitter
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindVertexArray:
		return "VertexArray"
	case KindDeferred:
		return "Deferred"
	case KindParticleEmitter:
		return "ParticleEmitter"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// RenderingLevel declares how a command interacts with depth.
type RenderingLevel uint8

// Rendering levels.
const (
	// LevelDefault is treated as transparent for non-solid pipelines.
	LevelDefault RenderingLevel = iota

	// LevelSolid marks opaque geometry. The material's pipeline decides the
	// tier: solid pipelines draw in the solid tier, others in the
	// transparent tier.
	LevelSolid

	// LevelSurface draws in the surface tier for non-solid pipelines.
	LevelSurface

	// LevelTransparent draws in submission (z-path) order.
	LevelTransparent
)

// String returns the level name.
func (l RenderingLevel) String() string {
	switch l {
	case LevelDefault:
		return "Default"
	case LevelSolid:
		return "Solid"
	case LevelSurface:
		return "Surface"
	case LevelTransparent:
		return "Transparent"
	default:
		return fmt.Sprintf("RenderingLevel(%d)", l)
	}
}

// Flags modify how a command is accounted.
type Flags uint16

const (
	// FlagDoNotCount excludes the command from draw statistics. The command
	// is still drawn. Used for debug overlays.
	FlagDoNotCount Flags = 1 << iota
)

// Info is the routing information every command carries.
type Info struct {
	Material MaterialID
	State    StateID
	ZPath    ZPath
	Level    RenderingLevel

	// Depth is the shadow depth value. Values > 0 mark the command as a
	// shadow caster.
	Depth float32

	Flags Flags
}

// Command is one entry of a [List]. Which payload fields are meaningful
// depends on Kind.
type Command struct {
	Kind Kind
	Info Info

	// KindVertexArray.
	Vertexes []InstanceVertexData

	// KindDeferred.
	Deferred   DeferredResult
	View       mgl32.Mat4
	Model      mgl32.Mat4
	Normalized bool

	// KindParticleEmitter.
	ParticleSystem ParticleSystemID
	Transform      mgl32.Mat4

	next *Command
}

// release drops references held by the command so the arena slot does not
// keep vertex data alive.
func (c *Command) release() {
	*c = Command{}
}
