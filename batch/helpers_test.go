package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/material"
)

const (
	matSolid   command.MaterialID = 1
	matAlpha   command.MaterialID = 2
	matAlphaL1 command.MaterialID = 3
	matAtlas   command.MaterialID = 4
	matOverlay command.MaterialID = 6
)

var (
	solidPipeline   = &material.Pipeline{Name: "solid", Solid: true}
	alphaPipeline   = &material.Pipeline{Name: "alpha", Order: 1}
	overlayPipeline = &material.Pipeline{Name: "overlay", Order: 2}
)

func testSet(extra ...*material.Material) *material.Set {
	mats := []*material.Material{
		{ID: matSolid, Pipeline: solidPipeline},
		{ID: matAlpha, Pipeline: alphaPipeline},
		{ID: matAlphaL1, Pipeline: alphaPipeline, LayoutIndex: 1},
		{ID: matOverlay, Pipeline: overlayPipeline},
	}
	return material.NewSet(append(mats, extra...)...)
}

// quad returns a unit rectangle whose vertex colors carry marker in the red
// channel.
func quad(marker float32) *command.VertexData {
	c := mgl32.Vec4{marker, 1, 1, 1}
	return &command.VertexData{
		Vertices: []command.Vertex{
			{Pos: mgl32.Vec4{0, 0, 0, 1}, Color: c, Object: 0},
			{Pos: mgl32.Vec4{0, 1, 0, 1}, Color: c, Object: 1},
			{Pos: mgl32.Vec4{1, 1, 0, 1}, Color: c, Object: 2},
			{Pos: mgl32.Vec4{1, 0, 0, 1}, Color: c, Object: 3},
		},
		Indexes: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func run(t *testing.T, list *command.List, set *material.Set, opts ...Option) *Result {
	t.Helper()
	r, err := New(opts...).Run(context.Background(), list, set, NewHostAllocator())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return r
}

func vertexBytes(r *Result) []byte    { return r.Buffers.Vertexes.Bytes() }
func indexBytes(r *Result) []byte     { return r.Buffers.Indexes.Bytes() }
func transformBytes(r *Result) []byte { return r.Buffers.Transforms.Bytes() }

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

// failingAllocator fails the n-th allocation (0-based).
type failingAllocator struct {
	host    *HostAllocator
	n       int
	calls   int
	regions []*releasingRegion
}

var errOutOfMemory = errors.New("out of memory")

func (a *failingAllocator) Allocate(kind BufferKind, size uint64) (Region, error) {
	defer func() { a.calls++ }()
	if a.calls == a.n {
		return nil, errOutOfMemory
	}
	r, err := a.host.Allocate(kind, size)
	if err != nil {
		return nil, err
	}
	reg := &releasingRegion{Region: r}
	a.regions = append(a.regions, reg)
	return reg, nil
}

// releasingRegion records whether it was released.
type releasingRegion struct {
	Region
	released bool
}

func (r *releasingRegion) Release() { r.released = true }
