// Package batch turns a frame's command list into merged vertex, index and
// transform buffers plus an ordered list of draw spans.
//
// Batching runs in four steps:
//
//	plan, err := batch.NewBuilder().Build(ctx, list, set) // classify, size
//	order := batch.Optimize(plan)                          // draw order
//	buffers, err := batch.AllocateBuffers(alloc, plan.Totals())
//	batch.NewWriter().Write(plan, order, buffers.Target())  // serialize
//	spans := order.Spans()
//
// [Batcher] runs the same steps in one call.
//
// # Tiers
//
// Commands whose material pipeline writes depth go to the solid tier and may
// be reordered freely. Commands at [command.LevelSurface] go to the surface
// tier. Everything else is transparent and drawn in ascending z-path order.
// Spans are emitted solid first, then surface, then transparent.
//
// # Buffer layout
//
// Every frame begins with a full-screen quad (four vertices, six indexes and
// an identity transform), followed by gradient vertices, followed by draw
// data in span order. Indexes are absolute, so draws use base vertex 0.
// All values are little endian.
package batch
