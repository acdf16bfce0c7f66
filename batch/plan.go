package batch

import (
	"cmp"
	"encoding/binary"
	"iter"
	"maps"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/material"
)

// Size of the full-screen quad every frame starts with.
const (
	initialVertexes   = 4
	initialIndexes    = 6
	initialTransforms = 1
)

// planInstance is one transform a vertex blob is drawn at.
type planInstance struct {
	transform mgl32.Mat4
	zpath     command.ZPath
	depth     float32
}

// VertexDataPlanInfo is one vertex blob in the write plan together with the
// transforms it is drawn at. Offsets are zero until the writer places the
// blob.
type VertexDataPlanInfo struct {
	Data *command.VertexData

	FillIndexes   uint32
	StrokeIndexes uint32
	SdfIndexes    uint32

	instances []planInstance
	caster    bool
	counted   bool
	next      *VertexDataPlanInfo

	// VertexOffset is the index of the blob's first vertex in the frame
	// vertex buffer.
	VertexOffset uint32

	// IndexOffset is the position of the blob's first index.
	IndexOffset uint32

	// TransformOffset is the index of the blob's first transform.
	TransformOffset uint32

	written bool
}

// Instanced reports whether the blob is drawn with GPU instancing.
func (n *VertexDataPlanInfo) Instanced() bool { return len(n.instances) > 1 }

// InstanceCount returns the number of transforms the blob is drawn at.
func (n *VertexDataPlanInfo) InstanceCount() uint32 {
	return uint32(len(n.instances)) //nolint:gosec // instance counts fit uint32
}

// ShadowCaster reports whether the blob was pushed with a shadow depth.
func (n *VertexDataPlanInfo) ShadowCaster() bool { return n.caster }

// IndexCount returns the number of indexes of the blob.
func (n *VertexDataPlanInfo) IndexCount() uint32 {
	return uint32(len(n.Data.Indexes)) //nolint:gosec // index counts fit uint32
}

// VertexCount returns the number of vertices of the blob.
func (n *VertexDataPlanInfo) VertexCount() uint32 {
	return uint32(len(n.Data.Vertices)) //nolint:gosec // vertex counts fit uint32
}

// SolidIndexCount returns the number of leading non-SDF indexes.
func (n *VertexDataPlanInfo) SolidIndexCount() uint32 {
	total := n.IndexCount()
	if n.SdfIndexes >= total {
		return 0
	}
	return total - n.SdfIndexes
}

// particlePlan is a particle emitter routed to a state.
type particlePlan struct {
	system    command.ParticleSystemID
	transform mgl32.Mat4
	zpath     command.ZPath

	transformOffset uint32
}

// mergeKey identifies blobs that can share one instanced draw.
type mergeKey struct {
	data   *command.VertexData
	sdf    uint32
	caster bool
}

// StatePlanInfo holds the blobs of one material drawn with one draw state.
// Every blob is in exactly one of the instanced or packed lists once the
// plan is finalized.
type StatePlanInfo struct {
	State command.StateID

	instanced, instancedTail *VertexDataPlanInfo
	packed, packedTail       *VertexDataPlanInfo
	particles                []*particlePlan

	pending []*VertexDataPlanInfo
	merge   map[mergeKey]*VertexDataPlanInfo
}

// Instanced iterates the blobs drawn with instancing.
func (s *StatePlanInfo) Instanced() iter.Seq[*VertexDataPlanInfo] {
	return walk(s.instanced)
}

// Packed iterates the blobs drawn as one contiguous run.
func (s *StatePlanInfo) Packed() iter.Seq[*VertexDataPlanInfo] {
	return walk(s.packed)
}

func walk(head *VertexDataPlanInfo) iter.Seq[*VertexDataPlanInfo] {
	return func(yield func(*VertexDataPlanInfo) bool) {
		for n := head; n != nil; n = n.next {
			if !yield(n) {
				return
			}
		}
	}
}

// finalize links pending blobs into the instanced and packed lists in
// insertion order.
func (s *StatePlanInfo) finalize() {
	for _, n := range s.pending {
		if n.Instanced() {
			if s.instancedTail == nil {
				s.instanced = n
			} else {
				s.instancedTail.next = n
			}
			s.instancedTail = n
		} else {
			if s.packedTail == nil {
				s.packed = n
			} else {
				s.packedTail.next = n
			}
			s.packedTail = n
		}
	}
	s.pending = nil
	s.merge = nil
}

// MaterialWritePlan accumulates the commands of one material within a tier.
type MaterialWritePlan struct {
	Material *material.Material

	Vertexes   uint32
	Indexes    uint32
	Transforms uint32

	states map[command.StateID]*StatePlanInfo
	order  []*StatePlanInfo
}

// States iterates state plans in ascending state id order.
func (p *MaterialWritePlan) States() iter.Seq[*StatePlanInfo] {
	return slices.Values(p.order)
}

func (p *MaterialWritePlan) finalize() {
	p.order = p.order[:0]
	for _, id := range slices.Sorted(maps.Keys(p.states)) {
		s := p.states[id]
		s.finalize()
		p.order = append(p.order, s)
	}
}

// materialPlans is the per-material plan map of one tier.
type materialPlans map[command.MaterialID]*MaterialWritePlan

// sorted returns the plans ordered by pipeline, layout index and id.
// Distinct pipelines that compare equal are kept contiguous, ordered by the
// lowest material id drawing with each.
func (m materialPlans) sorted() []*MaterialWritePlan {
	plans := slices.Collect(maps.Values(m))
	rank := make(map[*material.Pipeline]command.MaterialID, len(plans))
	for _, p := range plans {
		if r, ok := rank[p.Material.Pipeline]; !ok || p.Material.ID < r {
			rank[p.Material.Pipeline] = p.Material.ID
		}
	}
	slices.SortFunc(plans, func(a, b *MaterialWritePlan) int {
		pa, pb := a.Material.Pipeline, b.Material.Pipeline
		if c := pa.Compare(pb); c != 0 {
			return c
		}
		if c := cmp.Compare(rank[pa], rank[pb]); c != 0 {
			return c
		}
		return a.Material.Compare(b.Material)
	})
	return plans
}

// zBucket is the transparent plan of one z-path.
type zBucket struct {
	path      command.ZPath
	materials materialPlans
	sorted    []*MaterialWritePlan
}

func pathKey(p command.ZPath) string {
	p = p.Trim()
	b := make([]byte, 2*len(p))
	for i, z := range p {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(z)) //nolint:gosec // bit pattern of int16
	}
	return string(b)
}

// gradientPlan reserves the gradient vertex slots of one draw state.
type gradientPlan struct {
	state    command.StateID
	gradient *command.Gradient
	offset   uint32
}

func (g *gradientPlan) count() uint32 { return g.gradient.VertexCount() }

// Totals are buffer sizes in elements.
type Totals struct {
	Vertexes   uint32
	Indexes    uint32
	Transforms uint32
}

// Bytes returns the byte sizes of the vertex, index and transform buffers.
func (t Totals) Bytes() (vertexes, indexes, transforms uint64) {
	return uint64(t.Vertexes) * command.VertexStride,
		uint64(t.Indexes) * command.IndexStride,
		uint64(t.Transforms) * command.TransformStride
}

// Plan is the classified, sized write plan of one frame. It is built by a
// [Builder] and read by the writer and the optimizer; it is not modified
// after Build returns except for the offsets the writer records.
type Plan struct {
	solid       materialPlans
	surface     materialPlans
	transparent map[string]*zBucket

	solidSorted       []*MaterialWritePlan
	surfaceSorted     []*MaterialWritePlan
	transparentSorted []*zBucket

	depths PathDepths
	states map[command.StateID]command.DrawState

	gradients       []*gradientPlan
	gradientByState map[command.StateID]*gradientPlan

	// Content sizes, excluding the initial quad and gradient vertices.
	vertexes   uint32
	indexes    uint32
	transforms uint32

	gradientVertexes uint32
	particles        int
	blobs            int

	countedVertexes  uint32
	countedTriangles uint32
	materialCount    int
}

func newPlan() *Plan {
	return &Plan{
		solid:           make(materialPlans),
		surface:         make(materialPlans),
		transparent:     make(map[string]*zBucket),
		states:          make(map[command.StateID]command.DrawState),
		gradientByState: make(map[command.StateID]*gradientPlan),
	}
}

// Empty reports whether the frame has nothing to draw.
func (p *Plan) Empty() bool {
	return p.blobs == 0 && p.particles == 0
}

// Totals returns the buffer sizes, including the initial quad and the
// gradient vertices. Writing the plan fills exactly these sizes.
func (p *Plan) Totals() Totals {
	return Totals{
		Vertexes:   initialVertexes + p.gradientVertexes + p.vertexes,
		Indexes:    initialIndexes + p.indexes,
		Transforms: initialTransforms + p.transforms,
	}
}

// Depths returns the frame's path depth table.
func (p *Plan) Depths() *PathDepths { return &p.depths }

// State returns the draw state used by the plan under id.
func (p *Plan) State(id command.StateID) (command.DrawState, bool) {
	s, ok := p.states[id]
	return s, ok
}

// pathDepth returns the depth of path, or 0 for unknown paths.
func (p *Plan) pathDepth(path command.ZPath) float32 {
	d, _ := p.depths.Depth(path)
	return d
}

// tiers iterates the sorted material plans in draw order along with their
// tier.
func (p *Plan) tiers() iter.Seq2[Tier, *MaterialWritePlan] {
	return func(yield func(Tier, *MaterialWritePlan) bool) {
		for _, m := range p.solidSorted {
			if !yield(TierSolid, m) {
				return
			}
		}
		for _, m := range p.surfaceSorted {
			if !yield(TierSurface, m) {
				return
			}
		}
		for _, b := range p.transparentSorted {
			for _, m := range b.sorted {
				if !yield(TierTransparent, m) {
					return
				}
			}
		}
	}
}

// plansFor returns the material plan map a command is routed to.
func (p *Plan) plansFor(m *material.Material, info *command.Info) materialPlans {
	switch {
	case m.Solid():
		return p.solid
	case info.Level == command.LevelSurface:
		return p.surface
	}
	key := pathKey(info.ZPath)
	b, ok := p.transparent[key]
	if !ok {
		b = &zBucket{path: info.ZPath.Clone(), materials: make(materialPlans)}
		p.transparent[key] = b
	}
	return b.materials
}

// statePlan returns the state plan a command is routed to, creating the
// material and state plans on first use.
func (p *Plan) statePlan(list *command.List, m *material.Material, info *command.Info) (*MaterialWritePlan, *StatePlanInfo) {
	plans := p.plansFor(m, info)
	mp, ok := plans[m.ID]
	if !ok {
		mp = &MaterialWritePlan{
			Material: m,
			states:   make(map[command.StateID]*StatePlanInfo),
		}
		plans[m.ID] = mp
	}

	sp, ok := mp.states[info.State]
	if !ok {
		sp = &StatePlanInfo{State: info.State}
		mp.states[info.State] = sp
		p.useState(list, info.State)
	}
	p.depths.add(info.ZPath)
	return mp, sp
}

// useState records a draw state and reserves its gradient slots once.
func (p *Plan) useState(list *command.List, id command.StateID) {
	if _, ok := p.states[id]; ok {
		return
	}
	s, _ := list.State(id)
	p.states[id] = s
	if s.Gradient == nil || len(s.Gradient.Stops) == 0 {
		return
	}
	g := &gradientPlan{state: id, gradient: s.Gradient}
	p.gradients = append(p.gradients, g)
	p.gradientByState[id] = g
	p.gradientVertexes += g.count()
}

// finalize sorts every level of the plan, assigns path depths and gradient
// offsets.
func (p *Plan) finalize() {
	p.depths.finalize()

	p.solidSorted = p.solid.sorted()
	p.surfaceSorted = p.surface.sorted()
	for _, m := range p.solidSorted {
		m.finalize()
	}
	for _, m := range p.surfaceSorted {
		m.finalize()
	}

	p.transparentSorted = slices.Collect(maps.Values(p.transparent))
	slices.SortFunc(p.transparentSorted, func(a, b *zBucket) int {
		return a.path.Compare(b.path)
	})
	for _, b := range p.transparentSorted {
		b.sorted = b.materials.sorted()
		for _, m := range b.sorted {
			m.finalize()
		}
	}

	slices.SortFunc(p.gradients, func(a, b *gradientPlan) int {
		return cmp.Compare(a.state, b.state)
	})
	offset := uint32(initialVertexes)
	for _, g := range p.gradients {
		g.offset = offset
		offset += g.count()
	}
}
