package material

import (
	"iter"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/drawplan/command"
)

// Set is an immutable snapshot of materials keyed by id.
type Set struct {
	generation uint64
	materials  map[command.MaterialID]*Material
}

// NewSet creates a set with the given materials. Later entries replace
// earlier ones with the same id.
func NewSet(materials ...*Material) *Set {
	m := make(map[command.MaterialID]*Material, len(materials))
	for _, mat := range materials {
		if mat != nil {
			m[mat.ID] = mat
		}
	}
	return &Set{materials: m}
}

// Resolve returns the material registered under id.
func (s *Set) Resolve(id command.MaterialID) (*Material, bool) {
	if s == nil {
		return nil, false
	}
	m, ok := s.materials[id]
	return m, ok
}

// Len returns the number of materials.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.materials)
}

// Generation returns the registry generation that produced the set.
func (s *Set) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.generation
}

// All iterates materials in ascending id order.
func (s *Set) All() iter.Seq[*Material] {
	return func(yield func(*Material) bool) {
		if s == nil {
			return
		}
		for _, id := range slices.Sorted(maps.Keys(s.materials)) {
			if !yield(s.materials[id]) {
				return
			}
		}
	}
}

// Registry publishes material sets. Readers call Current without locking;
// writers are serialized and copy the current set before modifying it.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Set]
}

// NewRegistry creates a registry holding an empty set.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(NewSet())
	return r
}

// Current returns the latest published set.
func (r *Registry) Current() *Set {
	return r.current.Load()
}

// Update copies the current materials, lets fn modify the copy and
// publishes the result as a new set.
func (r *Registry) Update(fn func(materials map[command.MaterialID]*Material)) *Set {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	next := &Set{
		generation: old.generation + 1,
		materials:  maps.Clone(old.materials),
	}
	if next.materials == nil {
		next.materials = make(map[command.MaterialID]*Material)
	}
	fn(next.materials)
	r.current.Store(next)
	return next
}

// Add registers materials, replacing existing ids.
func (r *Registry) Add(materials ...*Material) *Set {
	return r.Update(func(m map[command.MaterialID]*Material) {
		for _, mat := range materials {
			if mat != nil {
				m[mat.ID] = mat
			}
		}
	})
}

// Remove unregisters the given ids.
func (r *Registry) Remove(ids ...command.MaterialID) *Set {
	return r.Update(func(m map[command.MaterialID]*Material) {
		for _, id := range ids {
			delete(m, id)
		}
	})
}
