package drawplan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/drawplan/batch"
	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/material"
)

// Frame errors.
var (
	// ErrInvalidState is returned when a frame operation does not match the
	// frame's lifecycle state.
	ErrInvalidState = errors.New("drawplan: invalid frame state")

	// ErrFrameInvalidated is returned when a frame was invalidated before
	// its batching ran.
	ErrFrameInvalidated = errors.New("drawplan: frame invalidated")
)

// FrameState is the lifecycle state of a frame. States advance strictly in
// declaration order and are never re-entered.
type FrameState uint8

// Frame states.
const (
	FrameEmpty FrameState = iota
	FrameCollecting
	FramePlanning
	FrameSizing
	FrameWriting
	FrameOrdered
	FrameSubmitted
	FrameRetired
)

// String returns the state name.
func (s FrameState) String() string {
	switch s {
	case FrameEmpty:
		return "Empty"
	case FrameCollecting:
		return "Collecting"
	case FramePlanning:
		return "Planning"
	case FrameSizing:
		return "Sizing"
	case FrameWriting:
		return "Writing"
	case FrameOrdered:
		return "Ordered"
	case FrameSubmitted:
		return "Submitted"
	case FrameRetired:
		return "Retired"
	default:
		return fmt.Sprintf("FrameState(%d)", s)
	}
}

// Dependency is an asynchronous input a frame waits on before batching.
// command.DeferredResult implementations satisfy it.
type Dependency interface {
	Wait(ctx context.Context) error
}

// Frame is one frame's command list and batching result. A frame is owned by
// one producer while collecting; once submitted it must not be mutated.
type Frame struct {
	id     uint64
	engine *Engine
	set    *material.Set

	mu     sync.Mutex
	state  FrameState
	list   *command.List
	deps   []Dependency
	result *batch.Result
	err    error

	// runMu is held while the frame is batched; Retire waits for it.
	runMu sync.Mutex

	invalidated atomic.Bool
	holdsSlot   atomic.Bool
}

// ID returns the frame sequence number.
func (f *Frame) ID() uint64 { return f.id }

// Materials returns the material snapshot the frame batches against.
func (f *Frame) Materials() *material.Set { return f.set }

// State returns the current lifecycle state.
func (f *Frame) State() FrameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Commands returns the frame's command list and moves an empty frame to
// Collecting.
func (f *Frame) Commands() (*command.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case FrameEmpty:
		f.state = FrameCollecting
		return f.list, nil
	case FrameCollecting:
		return f.list, nil
	default:
		return nil, fmt.Errorf("%w: commands requested in %s", ErrInvalidState, f.state)
	}
}

// DependOn registers an external dependency. Batching starts only after all
// dependencies completed.
func (f *Frame) DependOn(dep Dependency) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state > FrameCollecting {
		return fmt.Errorf("%w: dependency added in %s", ErrInvalidState, f.state)
	}
	f.deps = append(f.deps, dep)
	return nil
}

// Invalidate drops the frame's pending batching. A frame invalidated before
// its batching starts touches no buffers.
func (f *Frame) Invalidate() {
	f.invalidated.Store(true)
}

// Invalidated reports whether Invalidate was called.
func (f *Frame) Invalidated() bool {
	return f.invalidated.Load()
}

// Result returns the batching result once the frame is Ordered or later.
func (f *Frame) Result() (*batch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.state < FrameOrdered || f.state == FrameRetired {
		return nil, fmt.Errorf("%w: result requested in %s", ErrInvalidState, f.state)
	}
	return f.result, nil
}

// Record hands the result to record and moves the frame to Submitted.
func (f *Frame) Record(record func(*batch.Result) error) error {
	f.mu.Lock()
	if f.state != FrameOrdered || f.err != nil {
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("%w: record in %s", ErrInvalidState, state)
	}
	res := f.result
	f.mu.Unlock()

	if err := record(res); err != nil {
		return err
	}
	return f.advance(FrameOrdered, FrameSubmitted)
}

// Retire releases the frame's command list and buffers. Retire is valid in
// any state and idempotent; Retired is terminal. Retiring a frame that is
// being batched waits for the batching to finish.
func (f *Frame) Retire() {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	f.mu.Lock()
	if f.state == FrameRetired {
		f.mu.Unlock()
		return
	}
	prev := f.state
	f.state = FrameRetired
	res, list := f.result, f.list
	f.result, f.list, f.deps = nil, nil, nil
	f.mu.Unlock()

	f.engine.retire(f, prev, res, list)
}

// advance moves the frame from one state to the next.
func (f *Frame) advance(from, to FrameState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidState, from, to, f.state)
	}
	f.state = to
	return nil
}

// begin moves the frame to Planning and returns what batching needs.
func (f *Frame) begin() (*command.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FrameEmpty {
		f.state = FrameCollecting
	}
	if f.state != FrameCollecting {
		return nil, fmt.Errorf("%w: batching started in %s", ErrInvalidState, f.state)
	}
	f.state = FramePlanning
	return f.list, nil
}

// dependencies returns the declared dependencies plus deferred results that
// wait on readiness.
func (f *Frame) dependencies() []Dependency {
	f.mu.Lock()
	defer f.mu.Unlock()
	deps := append([]Dependency(nil), f.deps...)
	if f.list != nil {
		for _, r := range f.list.DeferredResults() {
			if r.WaitOnReady() {
				deps = append(deps, r)
			}
		}
	}
	return deps
}

func (f *Frame) finish(res *batch.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = res, err
}
