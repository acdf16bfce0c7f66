package command

import (
	"iter"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// arenaChunkSize is the number of commands allocated per arena chunk.
const arenaChunkSize = 128

// arena hands out index-stable *Command slots. Chunks are never grown in
// place, so pointers stay valid until reset.
type arena struct {
	chunks [][]Command
	cur    int
}

func (a *arena) alloc() *Command {
	for a.cur < len(a.chunks) && len(a.chunks[a.cur]) == cap(a.chunks[a.cur]) {
		a.cur++
	}
	if a.cur == len(a.chunks) {
		a.chunks = append(a.chunks, make([]Command, 0, arenaChunkSize))
	}
	chunk := append(a.chunks[a.cur], Command{})
	a.chunks[a.cur] = chunk
	return &chunk[len(chunk)-1]
}

func (a *arena) reset() {
	for i, chunk := range a.chunks {
		for j := range chunk {
			chunk[j].release()
		}
		a.chunks[i] = chunk[:0]
	}
	a.cur = 0
}

// List is an append-only, arena-backed list of draw commands produced by one
// frame. A List is not safe for concurrent mutation; it is filled by the
// scene traversal and then read by the batching pipeline.
type List struct {
	arena  arena
	first  *Command
	last   *Command
	count  int
	states []DrawState

	released bool
}

// NewList creates an empty command list.
func NewList() *List {
	return &List{}
}

// AddState registers a draw state and returns its id. Ids start at 1;
// [NoState] is the implicit default.
func (l *List) AddState(s DrawState) StateID {
	l.states = append(l.states, s)
	return StateID(len(l.states)) //nolint:gosec // state counts fit uint32
}

// State returns the draw state registered under id. [NoState] and unknown
// ids return the zero state and false.
func (l *List) State(id StateID) (DrawState, bool) {
	if id == NoState || int(id) > len(l.states) {
		return DrawState{}, false
	}
	return l.states[id-1], true
}

// PushVertexArray appends a single vertex blob drawn at one transform.
func (l *List) PushVertexArray(data *VertexData, transform mgl32.Mat4, info Info) {
	l.PushInstances([]InstanceVertexData{{
		Data:      data,
		Instances: []TransformData{NewTransformData(transform)},
	}}, info)
}

// PushInstances appends vertex blobs with their instance transforms. The
// slice is retained by reference.
func (l *List) PushInstances(data []InstanceVertexData, info Info) {
	c := l.alloc(KindVertexArray, info)
	c.Vertexes = data
}

// PushDeferred appends a deferred tessellation result. The result's own
// instance transforms are composed with model and view when the frame is
// planned.
func (l *List) PushDeferred(res DeferredResult, view, model mgl32.Mat4, normalized bool, info Info) {
	c := l.alloc(KindDeferred, info)
	c.Deferred = res
	c.View = view
	c.Model = model
	c.Normalized = normalized
}

// PushParticleEmitter appends a particle emitter draw.
func (l *List) PushParticleEmitter(id ParticleSystemID, transform mgl32.Mat4, info Info) {
	c := l.alloc(KindParticleEmitter, info)
	c.ParticleSystem = id
	c.Transform = transform
}

func (l *List) alloc(kind Kind, info Info) *Command {
	if l.released {
		panic("command: push to released list")
	}
	c := l.arena.alloc()
	c.Kind = kind
	c.Info = info
	c.Info.ZPath = info.ZPath.Clone()
	if l.last == nil {
		l.first = c
	} else {
		l.last.next = c
	}
	l.last = c
	l.count++
	return c
}

// Len returns the number of commands.
func (l *List) Len() int { return l.count }

// Empty reports whether no command was pushed.
func (l *List) Empty() bool { return l.first == nil }

// All iterates commands in append order.
func (l *List) All() iter.Seq[*Command] {
	return func(yield func(*Command) bool) {
		for c := l.first; c != nil; c = c.next {
			if !yield(c) {
				return
			}
		}
	}
}

// DeferredResults returns the deferred results referenced by the list, in
// append order.
func (l *List) DeferredResults() []DeferredResult {
	var out []DeferredResult
	for c := range l.All() {
		if c.Kind == KindDeferred && c.Deferred != nil {
			out = append(out, c.Deferred)
		}
	}
	return out
}

// Released reports whether Release was called.
func (l *List) Released() bool { return l.released }

// Release drops every command and state. Commands obtained from the list
// must not be used afterwards.
func (l *List) Release() {
	l.reset()
	l.released = true
}

func (l *List) reset() {
	l.arena.reset()
	l.first = nil
	l.last = nil
	l.count = 0
	clear(l.states)
	l.states = l.states[:0]
	l.released = false
}

// ListPool recycles command lists between frames so the arena chunks are
// reused after warmup.
//
// Usage:
//
//	pool := NewListPool()
//	list := pool.Get()
//	defer pool.Put(list)
type ListPool struct {
	pool sync.Pool
}

// NewListPool creates a new list pool.
func NewListPool() *ListPool {
	return &ListPool{
		pool: sync.Pool{
			New: func() any {
				return NewList()
			},
		},
	}
}

// Get returns an empty list ready for use.
func (p *ListPool) Get() *List {
	l := p.pool.Get().(*List)
	l.reset()
	return l
}

// Put releases the list and returns it to the pool.
func (p *ListPool) Put(l *List) {
	if l == nil {
		return
	}
	l.Release()
	p.pool.Put(l)
}
