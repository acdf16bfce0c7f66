// Package gpu connects batching results to a wgpu HAL device.
//
// [Allocator] implements batch.Allocator on top of hal buffers. Frame
// buffers are pooled by a [MemoryManager] that enforces a memory budget and
// evicts idle buffers least recently used first. [Recorder] replays the
// spans of a batch.Result into a render pass.
//
// Devices are injected either directly or via a gpucontext.DeviceProvider
// that also exposes HalDevice() any and HalQueue() any.
package gpu
