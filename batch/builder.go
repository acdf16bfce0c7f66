package batch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/material"
)

// Builder classifies a command list into a [Plan] and computes the buffer
// totals. A Builder holds only configuration and is safe for concurrent use.
type Builder struct {
	opts options
}

// NewBuilder creates a builder with the given options.
func NewBuilder(opts ...Option) *Builder {
	return &Builder{opts: newOptions(opts)}
}

// buildState is the per-call scratch of Build.
type buildState struct {
	b    *Builder
	plan *Plan
	list *command.List
	set  *material.Set

	dropped int
	skipped int
}

// Build walks list in append order and returns the finalized plan.
//
// Commands whose material is not in set are dropped with a warning.
// Deferred results that do not wait on ready and are not ready yet are
// skipped for this frame. Build fails only if ctx is done while waiting on a
// deferred result.
func (b *Builder) Build(ctx context.Context, list *command.List, set *material.Set) (*Plan, error) {
	st := &buildState{b: b, plan: newPlan(), list: list, set: set}
	st.plan.materialCount = set.Len()

	for c := range list.All() {
		var err error
		switch c.Kind {
		case command.KindVertexArray:
			st.pushVertexArray(c)
		case command.KindDeferred:
			err = st.pushDeferred(ctx, c)
		case command.KindParticleEmitter:
			st.pushParticleEmitter(c)
		}
		if err != nil {
			return nil, err
		}
	}

	st.plan.finalize()

	slogger().Debug("batch: plan built",
		"commands", list.Len(),
		"vertexes", st.plan.vertexes,
		"indexes", st.plan.indexes,
		"transforms", st.plan.transforms,
		"gradientVertexes", st.plan.gradientVertexes,
		"zPaths", st.plan.depths.Len(),
		"dropped", st.dropped,
		"skipped", st.skipped,
	)
	return st.plan, nil
}

func (st *buildState) resolve(c *command.Command) (*material.Material, bool) {
	m, ok := st.set.Resolve(c.Info.Material)
	if !ok || m == nil {
		st.dropped++
		slogger().Warn("batch: unknown material, command dropped",
			"material", c.Info.Material, "kind", c.Kind)
		return nil, false
	}
	return m, true
}

func (st *buildState) pushVertexArray(c *command.Command) {
	m, ok := st.resolve(c)
	if !ok {
		return
	}
	for i := range c.Vertexes {
		st.pushBlob(m, c, &c.Vertexes[i], nil)
	}
}

func (st *buildState) pushDeferred(ctx context.Context, c *command.Command) error {
	m, ok := st.resolve(c)
	if !ok || c.Deferred == nil {
		return nil
	}
	if !c.Deferred.WaitOnReady() && !c.Deferred.Ready() {
		st.skipped++
		return nil
	}

	data, err := c.Deferred.Acquire(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("batch: acquire deferred result: %w", ctxErr)
		}
		if !errors.Is(err, command.ErrNotReady) {
			slogger().Warn("batch: deferred result failed, command skipped",
				"material", c.Info.Material, "err", err)
		}
		st.skipped++
		return nil
	}

	compose := func(inst mgl32.Mat4) mgl32.Mat4 {
		return c.View.Mul4(c.Model).Mul4(inst)
	}
	if c.Normalized {
		compose = func(inst mgl32.Mat4) mgl32.Mat4 {
			mv := c.Model.Mul4(inst)
			pinned := mgl32.Ident4()
			pinned[12] = float32(math.Floor(float64(mv[12])))
			pinned[13] = float32(math.Floor(float64(mv[13])))
			pinned[14] = float32(math.Floor(float64(mv[14])))
			return c.View.Mul4(pinned)
		}
	}
	for i := range data {
		st.pushBlob(m, c, &data[i], compose)
	}
	return nil
}

func (st *buildState) pushParticleEmitter(c *command.Command) {
	m, ok := st.resolve(c)
	if !ok {
		return
	}
	mp, sp := st.plan.statePlan(st.list, m, &c.Info)
	sp.particles = append(sp.particles, &particlePlan{
		system:    c.ParticleSystem,
		transform: c.Transform,
		zpath:     c.Info.ZPath,
	})
	mp.Transforms++
	st.plan.transforms++
	st.plan.particles++
}

// pushBlob routes one vertex blob into the plan. compose, if set, maps the
// blob's own instance transforms to frame transforms.
func (st *buildState) pushBlob(m *material.Material, c *command.Command, d *command.InstanceVertexData, compose func(mgl32.Mat4) mgl32.Mat4) {
	if d.Data.Empty() {
		return
	}
	if len(d.Instances) == 0 {
		panic(fmt.Sprintf("batch: vertex data for material %d has no transforms", c.Info.Material))
	}

	mp, sp := st.plan.statePlan(st.list, m, &c.Info)
	caster := c.Info.Depth > 0
	counted := c.Info.Flags&command.FlagDoNotCount == 0

	var node *VertexDataPlanInfo
	key := mergeKey{data: d.Data, sdf: d.SdfIndexes, caster: caster}
	if st.b.opts.instanceMerging {
		node = sp.merge[key]
	}
	if node == nil {
		node = &VertexDataPlanInfo{
			Data:          d.Data,
			FillIndexes:   d.FillIndexes,
			StrokeIndexes: d.StrokeIndexes,
			SdfIndexes:    d.SdfIndexes,
			caster:        caster,
		}
		sp.pending = append(sp.pending, node)
		if st.b.opts.instanceMerging {
			if sp.merge == nil {
				sp.merge = make(map[mergeKey]*VertexDataPlanInfo)
			}
			sp.merge[key] = node
		}

		mp.Vertexes += node.VertexCount()
		mp.Indexes += node.IndexCount()
		st.plan.vertexes += node.VertexCount()
		st.plan.indexes += node.IndexCount()
		st.plan.blobs++
	}
	if counted && !node.counted {
		node.counted = true
		st.plan.countedVertexes += node.VertexCount()
	}

	for _, inst := range d.Instances {
		t := inst.Transform
		if compose != nil {
			t = compose(t)
		}
		node.instances = append(node.instances, planInstance{
			transform: t,
			zpath:     c.Info.ZPath,
			depth:     c.Info.Depth,
		})
	}

	n := uint32(len(d.Instances)) //nolint:gosec // instance counts fit uint32
	mp.Transforms += n
	st.plan.transforms += n
	if counted {
		st.plan.countedTriangles += n * (node.IndexCount() / 3)
	}
}
