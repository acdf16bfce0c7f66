package batch

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/gogpu/drawplan/command"
	"github.com/gogpu/drawplan/material"
)

// Result is the output of batching one frame.
type Result struct {
	// Buffers is nil for an empty frame.
	Buffers *Buffers
	Totals  Totals

	Spans            []VertexSpan
	ShadowSolidSpans []VertexSpan
	ShadowSdfSpans   []VertexSpan

	// States holds every draw state referenced by the spans. The command
	// list may be released while the result is still recorded.
	States map[command.StateID]command.DrawState

	Stat DrawStat
}

// Empty reports whether the frame produced no draw calls.
func (r *Result) Empty() bool { return len(r.Spans) == 0 }

// State returns the draw state of a span.
func (r *Result) State(id command.StateID) (command.DrawState, bool) {
	s, ok := r.States[id]
	return s, ok
}

// NewResult collects the spans and statistics of a written plan.
func NewResult(p *Plan, o *DrawOrder, bufs *Buffers, elapsed time.Duration) *Result {
	r := &Result{
		Buffers: bufs,
		Totals:  p.Totals(),
		States:  maps.Clone(p.states),
	}
	if o != nil && o.Len() > 0 {
		r.Spans = o.Spans()
		r.ShadowSolidSpans, r.ShadowSdfSpans = o.ShadowSpans()
		r.Stat = newDrawStat(p, o, len(r.ShadowSolidSpans), len(r.ShadowSdfSpans), elapsed)
	} else {
		r.Stat = newDrawStat(p, &DrawOrder{plan: p}, 0, 0, elapsed)
	}
	return r
}

// Batcher runs the builder, optimizer and writer for a frame.
type Batcher struct {
	builder *Builder
	writer  *Writer
}

// New creates a batcher. The options apply to both builder and writer.
func New(opts ...Option) *Batcher {
	return &Batcher{
		builder: NewBuilder(opts...),
		writer:  NewWriter(opts...),
	}
}

// Stage names a batching step that a [StageFunc] is told about before it
// starts.
type Stage uint8

// Batching stages after planning.
const (
	// StageSizing sorts the plan and allocates its buffers.
	StageSizing Stage = iota
	// StageWriting serializes the plan and flushes the buffers.
	StageWriting
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageSizing:
		return "Sizing"
	case StageWriting:
		return "Writing"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// StageFunc is called before each stage. A non-nil error stops batching and
// is returned by [Batcher.RunStages].
type StageFunc func(Stage) error

// Run batches list against set, allocating buffers from alloc. An empty
// frame allocates nothing and returns an empty result.
func (b *Batcher) Run(ctx context.Context, list *command.List, set *material.Set, alloc Allocator) (*Result, error) {
	return b.RunStages(ctx, list, set, alloc, nil)
}

// RunStages is Run with enter called before sizing and before writing.
// Buffers allocated before a failing stage are released.
func (b *Batcher) RunStages(ctx context.Context, list *command.List, set *material.Set, alloc Allocator, enter StageFunc) (*Result, error) {
	start := time.Now()

	plan, err := b.builder.Build(ctx, list, set)
	if err != nil {
		return nil, err
	}
	if err := enter.call(StageSizing); err != nil {
		return nil, err
	}

	var (
		order *DrawOrder
		bufs  *Buffers
	)
	if !plan.Empty() {
		order = Optimize(plan)
		bufs, err = AllocateBuffers(alloc, plan.Totals())
		if err != nil {
			slogger().Warn("batch: frame dropped", "err", err)
			return nil, err
		}
	}
	if err := enter.call(StageWriting); err != nil {
		if bufs != nil {
			bufs.Release()
		}
		return nil, err
	}

	if bufs != nil {
		b.writer.Write(plan, order, bufs.Target())
		if err := bufs.Flush(); err != nil {
			bufs.Release()
			return nil, err
		}
	}

	r := NewResult(plan, order, bufs, time.Since(start))
	if bufs != nil {
		slogger().Debug("batch: frame written", "stat", r.Stat.String())
	}
	return r, nil
}

func (f StageFunc) call(s Stage) error {
	if f == nil {
		return nil
	}
	return f(s)
}
