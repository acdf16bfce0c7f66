// Command drawplan-demo batches a synthetic scene and prints the resulting
// draw spans.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/drawplan"
	"github.com/gogpu/drawplan/batch"
	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/gpu"
	"github.com/gogpu/drawplan/material"
)

const (
	matBackground command.MaterialID = 1
	matSprites    command.MaterialID = 2
	matShapes     command.MaterialID = 3
)

func main() {
	var (
		sprites  = flag.Int("sprites", 64, "number of instanced sprites")
		shapes   = flag.Int("shapes", 8, "number of deferred vector shapes")
		rotate   = flag.Int("rotate", 0, "surface rotation in degrees (0, 90, 180, 270)")
		merge    = flag.Bool("merge", true, "merge repeated vertex data into instanced draws")
		useGPU   = flag.Bool("gpu", false, "allocate frame buffers on the noop HAL device")
		frames   = flag.Int("frames", 3, "number of frames to batch")
		verbose  = flag.Bool("v", false, "enable debug logging")
		showSpan = flag.Bool("spans", false, "print every span")
	)
	flag.Parse()

	if *verbose {
		drawplan.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	transform, ok := surfaceTransform(*rotate)
	if !ok {
		log.Fatalf("Unsupported rotation %d", *rotate)
	}

	alloc, cleanup := allocator(*useGPU)
	defer cleanup()

	registry := material.NewRegistry()
	registry.Add(demoMaterials()...)

	engine := drawplan.NewEngine(alloc, registry,
		drawplan.WithBuilderOptions(
			batch.WithInstanceMerging(*merge),
			batch.WithSurfaceTransform(transform),
		),
	)
	defer engine.Close()

	quad := spriteQuad()
	ctx := context.Background()
	for i := range *frames {
		f := engine.NewFrame()
		list, err := f.Commands()
		if err != nil {
			log.Fatalf("Frame %d: %v", f.ID(), err)
		}
		buildScene(list, quad, *sprites, *shapes, float32(i))

		done := make(chan error, 1)
		if err := engine.Submit(ctx, f, func(_ *drawplan.Frame, err error) { done <- err }); err != nil {
			log.Fatalf("Submit frame %d: %v", f.ID(), err)
		}
		if err := <-done; err != nil {
			log.Fatalf("Frame %d failed: %v", f.ID(), err)
		}

		err = f.Record(func(res *batch.Result) error {
			log.Printf("Frame %d: %s\n", f.ID(), res.Stat)
			if *showSpan {
				for _, s := range res.Spans {
					log.Printf("  %s\n", s)
				}
			}
			return nil
		})
		if err != nil {
			log.Fatalf("Record frame %d: %v", f.ID(), err)
		}
		f.Retire()
	}
}

func surfaceTransform(degrees int) (batch.SurfaceTransform, bool) {
	switch degrees {
	case 0:
		return batch.TransformIdentity, true
	case 90:
		return batch.TransformRotate90, true
	case 180:
		return batch.TransformRotate180, true
	case 270:
		return batch.TransformRotate270, true
	default:
		return 0, false
	}
}

func allocator(useGPU bool) (batch.Allocator, func()) {
	if !useGPU {
		return batch.NewHostAllocator(), func() {}
	}
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		log.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		log.Fatal("No adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		log.Fatalf("Open adapter: %v", err)
	}
	alloc := gpu.NewAllocator(openDev.Device, openDev.Queue, gpu.AllocatorConfig{Label: "demo"})
	return alloc, func() {
		log.Printf("%s\n", alloc.Stats())
		alloc.Close()
		openDev.Device.Destroy()
		instance.Destroy()
	}
}

func demoMaterials() []*material.Material {
	atlas := material.NewAtlasBuilder(256, 256, material.DefaultShelfPadding)
	for i := range 4 {
		//nolint:gosec // G115: sprite index is small
		if _, err := atlas.Add(uint16(i), 32, 32, mgl32.Vec2{0, 0}); err != nil {
			log.Fatalf("Atlas: %v", err)
		}
	}
	return []*material.Material{
		{ID: matBackground, Pipeline: &material.Pipeline{Name: "background", Solid: true}},
		{ID: matSprites, Pipeline: &material.Pipeline{Name: "sprites", Order: 1}, Atlas: atlas.Build()},
		{ID: matShapes, Pipeline: &material.Pipeline{Name: "vector", Order: 2}},
	}
}

func spriteQuad() *command.VertexData {
	white := mgl32.Vec4{1, 1, 1, 1}
	return &command.VertexData{
		Vertices: []command.Vertex{
			{Pos: mgl32.Vec4{0, 0, 0, 1}, Color: white, Object: material.ObjectID(0, material.AnchorBottomLeft)},
			{Pos: mgl32.Vec4{0, 32, 0, 1}, Color: white, Object: material.ObjectID(0, material.AnchorTopLeft)},
			{Pos: mgl32.Vec4{32, 32, 0, 1}, Color: white, Object: material.ObjectID(0, material.AnchorTopRight)},
			{Pos: mgl32.Vec4{32, 0, 0, 1}, Color: white, Object: material.ObjectID(0, material.AnchorBottomRight)},
		},
		Indexes: []uint32{0, 2, 1, 0, 3, 2},
	}
}

// buildScene appends a background, a sprite field sharing one quad and a
// set of deferred shapes resolved on another goroutine.
func buildScene(list *command.List, quad *command.VertexData, sprites, shapes int, t float32) {
	gradient := list.AddState(command.DrawState{
		Gradient: &command.Gradient{
			Start: mgl32.Vec2{0, 0},
			End:   mgl32.Vec2{0, 600},
			Stops: []command.GradientStop{
				{Position: 0, Color: mgl32.Vec4{0.1, 0.2, 0.4, 1}},
				{Position: 1, Color: mgl32.Vec4{0.5, 0.5, 0.6, 1}},
			},
		},
	})
	list.PushVertexArray(quad, mgl32.Scale3D(25, 19, 1), command.Info{
		Material: matBackground,
		State:    gradient,
		Level:    command.LevelSolid,
		Flags:    command.FlagDoNotCount,
	})

	for i := range sprites {
		x := float32(i%16) * 48
		y := float32(i/16) * 48
		list.PushVertexArray(quad, mgl32.Translate3D(x, y+t, 0), command.Info{
			Material: matSprites,
			ZPath:    command.ZPath{1},
			Depth:    0.25,
		})
	}

	for i := range shapes {
		res := command.NewVectorResult(true)
		list.PushDeferred(res, mgl32.Ident4(), mgl32.Translate3D(float32(i)*64, 400, 0), i%2 == 0,
			command.Info{Material: matShapes, ZPath: command.ZPath{2, command.ZOrder(i)}})
		go func() {
			time.Sleep(time.Millisecond)
			res.Resolve([]command.InstanceVertexData{{
				Data:      polygon(6+i, 24),
				Instances: []command.TransformData{command.IdentityTransform()},
			}})
		}()
	}
}

// polygon returns a regular polygon fan.
func polygon(sides int, radius float32) *command.VertexData {
	color := mgl32.Vec4{1, 0.6, 0.1, 0.9}
	d := &command.VertexData{Vertices: []command.Vertex{{Pos: mgl32.Vec4{0, 0, 0, 1}, Color: color}}}
	for i := range sides {
		a := 2 * math.Pi * float64(i) / float64(sides)
		d.Vertices = append(d.Vertices, command.Vertex{
			Pos:   mgl32.Vec4{radius * float32(math.Cos(a)), radius * float32(math.Sin(a)), 0, 1},
			Color: color,
		})
		//nolint:gosec // G115: vertex counts are small
		next := uint32(i+1)%uint32(sides) + 1
		//nolint:gosec // G115: vertex counts are small
		d.Indexes = append(d.Indexes, 0, uint32(i+1), next)
	}
	return d
}
