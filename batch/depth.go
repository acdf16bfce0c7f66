package batch

import (
	"iter"
	"slices"

	"github.com/gogpu/drawplan/command"
)

// PathDepths maps every distinct z-path of a frame to its depth value.
//
// With n distinct paths sorted ascending, path i gets 1 - (i+1)/(n+1): the
// first path is deepest and every value lies strictly inside (0, 1).
type PathDepths struct {
	paths  []command.ZPath
	depths []float32
}

func comparePaths(a, b command.ZPath) int { return a.Compare(b) }

// add registers p if it is not known yet.
func (d *PathDepths) add(p command.ZPath) {
	i, found := slices.BinarySearchFunc(d.paths, p, comparePaths)
	if found {
		return
	}
	d.paths = slices.Insert(d.paths, i, p)
}

// finalize assigns depth values. It is called once after classification.
func (d *PathDepths) finalize() {
	d.depths = make([]float32, len(d.paths))
	scale := 1 / float32(len(d.paths)+1)
	for i := range d.paths {
		d.depths[i] = 1 - float32(i+1)*scale
	}
}

// Len returns the number of distinct paths.
func (d *PathDepths) Len() int { return len(d.paths) }

// Depth returns the depth assigned to p.
func (d *PathDepths) Depth(p command.ZPath) (float32, bool) {
	i, found := slices.BinarySearchFunc(d.paths, p, comparePaths)
	if !found || i >= len(d.depths) {
		return 0, false
	}
	return d.depths[i], true
}

// All iterates paths in ascending order with their depths.
func (d *PathDepths) All() iter.Seq2[command.ZPath, float32] {
	return func(yield func(command.ZPath, float32) bool) {
		for i, p := range d.paths {
			var v float32
			if i < len(d.depths) {
				v = d.depths[i]
			}
			if !yield(p, v) {
				return
			}
		}
	}
}
