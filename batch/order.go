package batch

import "github.com/gogpu/drawplan/command"

type blockKind uint8

const (
	blockInstanced blockKind = iota
	blockPacked
	blockParticle
)

// drawBlock is one future draw call: an instanced blob, the packed run of a
// state, or a particle emitter. The writer fills span as it places data.
type drawBlock struct {
	tier     Tier
	kind     blockKind
	material *MaterialWritePlan
	state    *StatePlanInfo
	node     *VertexDataPlanInfo
	particle *particlePlan

	span VertexSpan
}

// DrawOrder is the optimized draw sequence of a plan. The writer serializes
// data in exactly this order, so spans of one state and kind cover
// contiguous buffer ranges.
type DrawOrder struct {
	plan       *Plan
	blocks     []drawBlock
	tierBlocks [tierCount]int
	written    bool
}

// Optimize computes the draw order of p.
//
// Tiers are emitted solid, surface, then transparent by ascending z-path.
// Within a tier materials are sorted by pipeline ordering key, layout index
// and id so pipeline and descriptor switches cluster. Within a material all
// instanced blobs come first (states ascending), then one packed run per
// state, then particle emitters.
func Optimize(p *Plan) *DrawOrder {
	o := &DrawOrder{plan: p}
	for tier, mp := range p.tiers() {
		start := len(o.blocks)
		for sp := range mp.States() {
			for n := range sp.Instanced() {
				o.blocks = append(o.blocks, drawBlock{
					tier: tier, kind: blockInstanced, material: mp, state: sp, node: n,
				})
			}
		}
		for sp := range mp.States() {
			if sp.packed != nil {
				o.blocks = append(o.blocks, drawBlock{
					tier: tier, kind: blockPacked, material: mp, state: sp,
				})
			}
		}
		for sp := range mp.States() {
			for _, pp := range sp.particles {
				o.blocks = append(o.blocks, drawBlock{
					tier: tier, kind: blockParticle, material: mp, state: sp, particle: pp,
				})
			}
		}
		o.tierBlocks[tier] += len(o.blocks) - start
	}
	return o
}

// Len returns the number of draw calls.
func (o *DrawOrder) Len() int { return len(o.blocks) }

// TierLen returns the number of draw calls of one tier.
func (o *DrawOrder) TierLen(t Tier) int {
	if t >= tierCount {
		return 0
	}
	return o.tierBlocks[t]
}

// Spans returns the ordered draw spans. It panics if the plan was not
// written, since span offsets are only known after writing.
func (o *DrawOrder) Spans() []VertexSpan {
	o.mustBeWritten()
	spans := make([]VertexSpan, len(o.blocks))
	for i := range o.blocks {
		spans[i] = o.blocks[i].span
	}
	return spans
}

func (o *DrawOrder) mustBeWritten() {
	if !o.written {
		panic("batch: draw order read before the plan was written")
	}
}

// baseSpan returns a span with the routing fields of b filled in.
func (o *DrawOrder) baseSpan(b *drawBlock) VertexSpan {
	s := VertexSpan{
		Material: b.material.Material.ID,
		State:    b.state.State,
	}
	if ds, ok := o.plan.states[b.state.State]; ok {
		s.OutlineOffset = ds.OutlineOffset
	}
	if g, ok := o.plan.gradientByState[b.state.State]; ok {
		s.GradientOffset = g.offset
		s.GradientCount = g.count()
	}
	return s
}

// StateOf returns the draw state referenced by a span.
func (o *DrawOrder) StateOf(id command.StateID) (command.DrawState, bool) {
	return o.plan.State(id)
}
