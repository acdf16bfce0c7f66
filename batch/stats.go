package batch

import (
	"fmt"
	"time"
)

// DrawStat summarizes one batched frame. Commands flagged
// command.FlagDoNotCount are excluded from Vertexes and Triangles.
type DrawStat struct {
	Vertexes  uint32
	Triangles uint32
	ZPaths    uint32
	DrawCalls uint32

	// Materials is the size of the material set the frame resolved against.
	Materials uint32

	SolidCmds       uint32
	SurfaceCmds     uint32
	TransparentCmds uint32
	ShadowSolidCmds uint32
	ShadowSdfCmds   uint32

	VertexInputTime time.Duration
}

// String returns a compact single-line summary.
func (s DrawStat) String() string {
	return fmt.Sprintf("vertexes=%d triangles=%d zpaths=%d calls=%d materials=%d solid=%d surface=%d transparent=%d shadow=%d/%d time=%s",
		s.Vertexes, s.Triangles, s.ZPaths, s.DrawCalls, s.Materials,
		s.SolidCmds, s.SurfaceCmds, s.TransparentCmds,
		s.ShadowSolidCmds, s.ShadowSdfCmds, s.VertexInputTime)
}

//nolint:gosec // counts fit uint32
func newDrawStat(p *Plan, o *DrawOrder, shadowSolid, shadowSdf int, elapsed time.Duration) DrawStat {
	return DrawStat{
		Vertexes:        p.countedVertexes,
		Triangles:       p.countedTriangles,
		ZPaths:          uint32(p.depths.Len()),
		DrawCalls:       uint32(o.Len()),
		Materials:       uint32(p.materialCount),
		SolidCmds:       uint32(o.TierLen(TierSolid)),
		SurfaceCmds:     uint32(o.TierLen(TierSurface)),
		TransparentCmds: uint32(o.TierLen(TierTransparent)),
		ShadowSolidCmds: uint32(shadowSolid),
		ShadowSdfCmds:   uint32(shadowSdf),
		VertexInputTime: elapsed,
	}
}
