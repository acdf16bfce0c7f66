package material

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Atlas-related errors.
var (
	// ErrAtlasFull is returned when the atlas cannot fit the requested region.
	ErrAtlasFull = errors.New("material: atlas is full")

	// ErrInvalidRegion is returned for non-positive region sizes.
	ErrInvalidRegion = errors.New("material: invalid atlas region size")
)

// Default atlas settings.
const (
	// DefaultAtlasSize is the default atlas dimension (1024x1024).
	DefaultAtlasSize = 1024

	// MinAtlasSize is the minimum atlas dimension.
	MinAtlasSize = 64

	// DefaultShelfPadding is the padding between packed regions.
	DefaultShelfPadding = 1
)

// Anchor selects one corner of an atlas sprite. It is stored in bits 16-17
// of a vertex object id.
type Anchor uint32

// Sprite corners.
const (
	AnchorBottomLeft Anchor = iota
	AnchorTopLeft
	AnchorTopRight
	AnchorBottomRight
)

const anchorShift = 16

// ObjectID builds a vertex object id from a sprite id and a corner.
func ObjectID(sprite uint16, a Anchor) uint32 {
	return uint32(sprite) | (uint32(a)&0x3)<<anchorShift
}

// AnchorOf extracts the corner encoded in a vertex object id.
func AnchorOf(object uint32) Anchor {
	return Anchor((object >> anchorShift) & 0x3)
}

// AtlasValue is the remap target of one atlas object: a position offset
// added to the vertex and the UV it samples.
type AtlasValue struct {
	Pos mgl32.Vec2
	Tex mgl32.Vec2
}

// Region is a rectangle inside an atlas image, in pixels.
type Region struct {
	X, Y          int
	Width, Height int
}

// IsValid returns true if the region has valid dimensions.
func (r Region) IsValid() bool {
	return r.Width > 0 && r.Height > 0
}

// String returns a string representation of the region.
func (r Region) String() string {
	return fmt.Sprintf("Region(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Atlas maps vertex object ids to atlas positions and UVs. An Atlas is
// immutable once built.
type Atlas struct {
	width, height int
	objects       map[uint32]AtlasValue
}

// NewAtlas creates an atlas from an explicit object table.
func NewAtlas(width, height int, objects map[uint32]AtlasValue) *Atlas {
	return &Atlas{width: width, height: height, objects: objects}
}

// Extent returns the atlas image size in pixels.
func (a *Atlas) Extent() (width, height int) {
	return a.width, a.height
}

// Lookup returns the value registered for object.
func (a *Atlas) Lookup(object uint32) (AtlasValue, bool) {
	v, ok := a.objects[object]
	return v, ok
}

// Len returns the number of registered objects.
func (a *Atlas) Len() int { return len(a.objects) }

// FallbackTex returns the UV used for an object missing from the atlas: the
// matching corner of the top-right texel, which is expected to be blank.
func (a *Atlas) FallbackTex(object uint32) mgl32.Vec2 {
	sx := 1 / float32(max(a.width, 1))
	sy := 1 / float32(max(a.height, 1))
	switch AnchorOf(object) {
	case AnchorTopLeft:
		return mgl32.Vec2{1 - sx, sy}
	case AnchorTopRight:
		return mgl32.Vec2{1, sy}
	case AnchorBottomRight:
		return mgl32.Vec2{1, 0}
	default:
		return mgl32.Vec2{1 - sx, 0}
	}
}

// shelf is a horizontal strip in the shelf-packing algorithm.
type shelf struct {
	y      int // top of the strip
	height int // tallest item so far
	nextX  int // next free x
}

// AtlasBuilder packs sprite rectangles with a shelf allocator and records
// the four corner objects of each sprite.
//
// Each new rectangle is placed on the first shelf it fits on, or a new
// shelf is opened below the last one.
type AtlasBuilder struct {
	mu sync.Mutex

	width   int
	height  int
	padding int
	shelves []*shelf

	objects    map[uint32]AtlasValue
	allocCount int
	usedArea   int
}

// NewAtlasBuilder creates a builder for an atlas of the given size.
func NewAtlasBuilder(width, height, padding int) *AtlasBuilder {
	if width < MinAtlasSize {
		width = MinAtlasSize
	}
	if height < MinAtlasSize {
		height = MinAtlasSize
	}
	if padding < 0 {
		padding = 0
	}
	return &AtlasBuilder{
		width:   width,
		height:  height,
		padding: padding,
		shelves: make([]*shelf, 0, 16),
		objects: make(map[uint32]AtlasValue),
	}
}

// Add allocates a width x height region for sprite and registers its four
// corner objects. origin is the sprite's offset from the vertex position of
// its bottom-left corner, in frame units.
func (b *AtlasBuilder) Add(sprite uint16, width, height int, origin mgl32.Vec2) (Region, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if width <= 0 || height <= 0 {
		return Region{}, ErrInvalidRegion
	}
	r, ok := b.allocate(width, height)
	if !ok {
		return Region{}, fmt.Errorf("add sprite %d (%dx%d): %w", sprite, width, height, ErrAtlasFull)
	}

	fw, fh := float32(b.width), float32(b.height)
	u0, u1 := float32(r.X)/fw, float32(r.X+r.Width)/fw
	v0, v1 := float32(r.Y)/fh, float32(r.Y+r.Height)/fh
	w, h := float32(width), float32(height)

	corners := [4]AtlasValue{
		AnchorBottomLeft:  {Pos: origin, Tex: mgl32.Vec2{u0, v1}},
		AnchorTopLeft:     {Pos: origin.Add(mgl32.Vec2{0, h}), Tex: mgl32.Vec2{u0, v0}},
		AnchorTopRight:    {Pos: origin.Add(mgl32.Vec2{w, h}), Tex: mgl32.Vec2{u1, v0}},
		AnchorBottomRight: {Pos: origin.Add(mgl32.Vec2{w, 0}), Tex: mgl32.Vec2{u1, v1}},
	}
	for a, v := range corners {
		b.objects[ObjectID(sprite, Anchor(a))] = v //nolint:gosec // a < 4
	}
	return r, nil
}

func (b *AtlasBuilder) allocate(width, height int) (Region, bool) {
	pw := width + b.padding
	ph := height + b.padding
	if pw > b.width || ph > b.height {
		return Region{}, false
	}

	for _, s := range b.shelves {
		if s.nextX+pw > b.width {
			continue
		}
		// A shelf can only grow while it is empty.
		if ph > s.height && s.nextX > 0 {
			continue
		}
		r := Region{X: s.nextX, Y: s.y, Width: width, Height: height}
		s.nextX += pw
		s.height = max(s.height, ph)
		b.allocCount++
		b.usedArea += width * height
		return r, true
	}

	y := 0
	if n := len(b.shelves); n > 0 {
		y = b.shelves[n-1].y + b.shelves[n-1].height
	}
	if y+ph > b.height {
		return Region{}, false
	}
	b.shelves = append(b.shelves, &shelf{y: y, height: ph, nextX: pw})
	b.allocCount++
	b.usedArea += width * height
	return Region{X: 0, Y: y, Width: width, Height: height}, true
}

// Utilization returns the fraction of area used (0.0 to 1.0).
func (b *AtlasBuilder) Utilization() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.usedArea) / float64(b.width*b.height)
}

// AllocCount returns the number of successful allocations.
func (b *AtlasBuilder) AllocCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocCount
}

// Build returns an immutable atlas with the objects added so far.
func (b *AtlasBuilder) Build() *Atlas {
	b.mu.Lock()
	defer b.mu.Unlock()
	objects := make(map[uint32]AtlasValue, len(b.objects))
	for k, v := range b.objects {
		objects[k] = v
	}
	return NewAtlas(b.width, b.height, objects)
}
