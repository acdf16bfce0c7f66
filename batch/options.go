package batch

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// SurfaceTransform is the pre-rotation applied by the presentation surface.
type SurfaceTransform uint8

// Surface transforms.
const (
	TransformIdentity SurfaceTransform = iota
	TransformRotate90
	TransformRotate180
	TransformRotate270
)

// String returns the transform name.
func (t SurfaceTransform) String() string {
	switch t {
	case TransformIdentity:
		return "Identity"
	case TransformRotate90:
		return "Rotate90"
	case TransformRotate180:
		return "Rotate180"
	case TransformRotate270:
		return "Rotate270"
	default:
		return fmt.Sprintf("SurfaceTransform(%d)", t)
	}
}

// Rotate maps a frame-space position or direction into surface space.
func (t SurfaceTransform) Rotate(v mgl32.Vec2) mgl32.Vec2 {
	switch t {
	case TransformRotate90:
		return mgl32.Vec2{-v[1], v[0]}
	case TransformRotate180:
		return mgl32.Vec2{-v[0], -v[1]}
	case TransformRotate270:
		return mgl32.Vec2{v[1], -v[0]}
	default:
		return v
	}
}

// Option configures a [Builder], [Writer] or [Batcher].
//
// Example:
//
//	b := batch.New(
//	    batch.WithSurfaceTransform(batch.TransformRotate90),
//	    batch.WithGPUIndexedAtlases(device.SupportsIndexedBuffers()),
//	)
type Option func(*options)

// options holds batching configuration.
type options struct {
	instanceMerging   bool
	gpuIndexedAtlases bool
	surfaceTransform  SurfaceTransform
}

// defaultOptions returns the default batching options.
func defaultOptions() options {
	return options{
		instanceMerging: true,
	}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithInstanceMerging controls whether blobs that share the same vertex data
// within one material and draw state are merged into a single instanced
// draw. Enabled by default.
func WithInstanceMerging(enabled bool) Option {
	return func(o *options) {
		o.instanceMerging = enabled
	}
}

// WithGPUIndexedAtlases declares that the device resolves atlas objects in
// the shader, so the writer leaves vertex object ids untouched.
func WithGPUIndexedAtlases(enabled bool) Option {
	return func(o *options) {
		o.gpuIndexedAtlases = enabled
	}
}

// WithSurfaceTransform sets the surface pre-rotation used for the
// full-screen quad UVs and gradient axes.
func WithSurfaceTransform(t SurfaceTransform) Option {
	return func(o *options) {
		o.surfaceTransform = t
	}
}
