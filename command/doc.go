// Package command holds the per-frame draw command stream consumed by the
// batching engine.
//
// Scene nodes append commands to a [List] during traversal. A list owns an
// arena of [Command] values that is recycled when the frame retires, and it
// also owns the frame's [DrawState] table that command infos refer to by
// [StateID].
//
// Three command kinds exist:
//   - vertex arrays: immutable [VertexData] blobs with one or more transforms
//   - deferred results: tessellations produced asynchronously (see [DeferredResult])
//   - particle emitters: references to externally simulated particle systems
//
// Vertex data is shared by reference and must not be modified once pushed.
package command
