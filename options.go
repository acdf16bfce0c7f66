package drawplan

import "github.com/gogpu/drawplan/batch"

// DefaultFramesInFlight is the number of frames that may be between Submit
// and Retire at once.
const DefaultFramesInFlight = 2

// EngineOption configures an Engine during creation.
//
// Example:
//
//	e := drawplan.NewEngine(alloc, registry,
//	    drawplan.WithFramesInFlight(3),
//	    drawplan.WithBuilderOptions(batch.WithSurfaceTransform(batch.TransformRotate90)),
//	)
type EngineOption func(*engineOptions)

type engineOptions struct {
	workers        int
	framesInFlight int
	batch          []batch.Option
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		workers:        0, // GOMAXPROCS
		framesInFlight: DefaultFramesInFlight,
	}
}

// WithWorkers sets the number of batching workers. Zero or negative uses
// GOMAXPROCS.
func WithWorkers(n int) EngineOption {
	return func(o *engineOptions) {
		o.workers = n
	}
}

// WithFramesInFlight bounds the number of frames submitted and not yet
// retired. Values below 1 are treated as 1.
func WithFramesInFlight(n int) EngineOption {
	return func(o *engineOptions) {
		o.framesInFlight = max(n, 1)
	}
}

// WithBuilderOptions passes options to the batcher.
func WithBuilderOptions(opts ...batch.Option) EngineOption {
	return func(o *engineOptions) {
		o.batch = append(o.batch, opts...)
	}
}
