package batch

// ShadowSpans returns the spans of the shadow passes: solid spans cover the
// non-SDF indexes of every shadow-casting blob, SDF spans cover the trailing
// SDF indexes. Adjacent contiguous single-instance ranges with the same
// material and state are merged. Spans follow draw order.
func (o *DrawOrder) ShadowSpans() (solid, sdf []VertexSpan) {
	o.mustBeWritten()
	for i := range o.blocks {
		b := &o.blocks[i]
		switch b.kind {
		case blockInstanced:
			solid, sdf = o.appendShadow(solid, sdf, b, b.node)
		case blockPacked:
			for n := range b.state.Packed() {
				solid, sdf = o.appendShadow(solid, sdf, b, n)
			}
		}
	}
	return solid, sdf
}

func (o *DrawOrder) appendShadow(solid, sdf []VertexSpan, b *drawBlock, n *VertexDataPlanInfo) ([]VertexSpan, []VertexSpan) {
	if !n.ShadowCaster() || !n.written {
		return solid, sdf
	}
	base := o.baseSpan(b)
	base.InstanceCount = n.InstanceCount()
	base.VertexOffset = n.VertexOffset
	base.VertexCount = n.VertexCount()

	if c := n.SolidIndexCount(); c > 0 {
		s := base
		s.FirstIndex = n.IndexOffset
		s.IndexCount = c
		solid = appendMerged(solid, s)
	}
	if n.SdfIndexes > 0 && n.SdfIndexes <= n.IndexCount() {
		s := base
		s.FirstIndex = n.IndexOffset + n.SolidIndexCount()
		s.IndexCount = n.SdfIndexes
		sdf = appendMerged(sdf, s)
	}
	return solid, sdf
}

// appendMerged appends s, extending the last span instead when s continues
// it directly.
func appendMerged(spans []VertexSpan, s VertexSpan) []VertexSpan {
	if len(spans) > 0 {
		last := &spans[len(spans)-1]
		if last.Material == s.Material && last.State == s.State &&
			last.InstanceCount == 1 && s.InstanceCount == 1 &&
			last.FirstIndex+last.IndexCount == s.FirstIndex &&
			last.VertexOffset+last.VertexCount == s.VertexOffset {
			last.IndexCount += s.IndexCount
			last.VertexCount += s.VertexCount
			return spans
		}
	}
	return append(spans, s)
}
