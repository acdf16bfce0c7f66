// Package drawplan batches a frame's draw commands into merged vertex, index
// and transform buffers plus an ordered list of indexed draw calls.
//
// # Overview
//
// Scene nodes append commands to a frame's [command.List]. The engine
// resolves each command's material against an immutable [material.Set],
// plans buffer sizes, writes the buffers in one forward pass and emits the
// draw spans tier by tier: solid, surface, then transparent in z-path order.
//
// # Quick Start
//
//	registry := material.NewRegistry()
//	registry.Add(&material.Material{ID: 1, Pipeline: &material.Pipeline{Name: "solid", Solid: true}})
//
//	engine := drawplan.NewEngine(batch.NewHostAllocator(), registry)
//	defer engine.Close()
//
//	frame := engine.NewFrame()
//	list, _ := frame.Commands()
//	list.PushVertexArray(data, mgl32.Ident4(), command.Info{Material: 1})
//
//	res, err := engine.Process(ctx, frame)
//	if err != nil {
//	    return err
//	}
//	for _, span := range res.Spans {
//	    // issue one draw per span
//	}
//	frame.Retire()
//
// # Frame Lifecycle
//
// A [Frame] moves through Empty, Collecting, Planning, Sizing, Writing,
// Ordered, Submitted and Retired. [Engine.Submit] runs the batching stages
// on a worker pool after the frame's dependencies resolved, so consecutive
// frames overlap. A frame holds an in-flight slot until it is retired.
//
// # GPU Integration
//
// Package gpu provides a batch.Allocator backed by wgpu HAL buffers and a
// recorder that replays spans into a render pass.
//
// # Logging
//
// Nothing is logged by default. [SetLogger] enables logging for this
// package and its sub-packages.
package drawplan
