// Package material provides the material registry the batching engine
// resolves command materials against.
//
// A [Set] is an immutable snapshot; the [Registry] publishes new snapshots
// atomically so a frame in flight keeps the set it started with.
package material

import (
	"cmp"
	"fmt"

	"github.com/gogpu/drawplan/command"
)

// Pipeline describes the render pipeline a material draws with. Materials
// sharing one *Pipeline are drawn with a single pipeline bind.
type Pipeline struct {
	// Name is used in logs and debug output.
	Name string

	// Solid pipelines write depth. Their commands always go to the solid
	// tier regardless of the command's rendering level.
	Solid bool

	// Order is the ordering key used to cluster pipeline switches. Lower
	// values draw first within a tier.
	Order int
}

// Compare orders pipelines by Order, then Name. Distinct pipelines with
// equal Order and Name compare equal.
func (p *Pipeline) Compare(o *Pipeline) int {
	switch {
	case p == o:
		return 0
	case p == nil:
		return -1
	case o == nil:
		return 1
	}
	if c := cmp.Compare(p.Order, o.Order); c != 0 {
		return c
	}
	return cmp.Compare(p.Name, o.Name)
}

// ImageID identifies an image bound by a material.
type ImageID uint64

// Material is a pipeline plus the images it samples.
type Material struct {
	ID       command.MaterialID
	Pipeline *Pipeline

	// LayoutIndex selects the descriptor set layout the material's images
	// are bound through.
	LayoutIndex uint32

	Images []ImageID

	// Atlas is set for atlas-backed materials (glyphs, sprite sheets).
	Atlas *Atlas
}

// Solid reports whether the material draws with a depth-writing pipeline.
func (m *Material) Solid() bool {
	return m.Pipeline != nil && m.Pipeline.Solid
}

// Compare orders materials by pipeline, layout index, then id.
func (m *Material) Compare(o *Material) int {
	if c := m.Pipeline.Compare(o.Pipeline); c != 0 {
		return c
	}
	if c := cmp.Compare(m.LayoutIndex, o.LayoutIndex); c != 0 {
		return c
	}
	return cmp.Compare(m.ID, o.ID)
}

// String returns a short description for logs.
func (m *Material) String() string {
	name := "<nil>"
	if m.Pipeline != nil {
		name = m.Pipeline.Name
	}
	return fmt.Sprintf("Material(%d %s layout=%d)", m.ID, name, m.LayoutIndex)
}
