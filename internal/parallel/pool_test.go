package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero", 0, runtime.GOMAXPROCS(0)},
		{"negative", -5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()
			if pool.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", pool.Workers(), tt.want)
			}
			if !pool.IsRunning() {
				t.Error("pool should be running after creation")
			}
		})
	}
}

// =============================================================================
// Go Tests
// =============================================================================

// waitAll drains the result channels and returns the first error.
func waitAll(t *testing.T, results []<-chan error) error {
	t.Helper()
	var first error
	for _, r := range results {
		select {
		case err := <-r:
			if err != nil && first == nil {
				first = err
			}
		case <-time.After(2 * time.Second):
			t.Fatal("task did not complete")
		}
	}
	return first
}

func TestWorkerPool_Go(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	want := errors.New("result")
	err := waitAll(t, []<-chan error{pool.Go(context.Background(), func(context.Context) error { return want })})
	if !errors.Is(err, want) {
		t.Errorf("Go() result = %v, want %v", err, want)
	}
}

func TestWorkerPool_GoMany(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	results := make([]<-chan error, 100)
	for i := range results {
		results[i] = pool.Go(context.Background(), func(context.Context) error {
			counter.Add(1)
			return nil
		})
	}
	if err := waitAll(t, results); err != nil {
		t.Fatalf("Go() = %v", err)
	}
	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_GoCanceledContext(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	err := waitAll(t, []<-chan error{pool.Go(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Go() = %v, want context.Canceled", err)
	}
	if ran.Load() {
		t.Error("task ran with a canceled context")
	}
}

func TestWorkerPool_GoCanceledWhileQueued(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	release := make(chan struct{})
	busy := pool.Go(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued := pool.Go(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	cancel()
	close(release)

	if err := waitAll(t, []<-chan error{busy}); err != nil {
		t.Fatalf("busy task: %v", err)
	}
	if err := waitAll(t, []<-chan error{queued}); !errors.Is(err, context.Canceled) {
		t.Errorf("queued task = %v, want context.Canceled", err)
	}
	if ran.Load() {
		t.Error("task canceled while queued still ran")
	}
}

func TestWorkerPool_GoAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	if pool.IsRunning() {
		t.Error("pool still running after Close")
	}
	if err := <-pool.Go(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Go() after Close = %v, want ErrPoolClosed", err)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseRunsQueued(t *testing.T) {
	pool := NewWorkerPool(1)

	release := make(chan struct{})
	var counter atomic.Int64
	results := make([]<-chan error, 0, 5)
	results = append(results, pool.Go(context.Background(), func(context.Context) error {
		<-release
		counter.Add(1)
		return nil
	}))
	for range 4 {
		results = append(results, pool.Go(context.Background(), func(context.Context) error {
			counter.Add(1)
			return nil
		}))
	}
	close(release)
	pool.Close()
	pool.Close()

	for i, r := range results {
		if err := <-r; err != nil {
			t.Errorf("task %d: %v", i, err)
		}
	}
	if counter.Load() != 5 {
		t.Errorf("counter = %d, want 5", counter.Load())
	}
}

func TestWorkerPool_WorkStealing(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Task 0 is slow; idle workers steal the rest of its queue.
	var counter atomic.Int64
	results := make([]<-chan error, 16)
	for i := range results {
		results[i] = pool.Go(context.Background(), func(context.Context) error {
			if i == 0 {
				time.Sleep(20 * time.Millisecond)
			}
			counter.Add(1)
			return nil
		})
	}
	if err := waitAll(t, results); err != nil {
		t.Fatalf("Go() = %v", err)
	}
	if counter.Load() != 16 {
		t.Errorf("counter = %d, want 16", counter.Load())
	}
	if pool.QueuedWork() != 0 {
		t.Errorf("QueuedWork() = %d, want 0", pool.QueuedWork())
	}
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	before := runtime.NumGoroutine()
	for range 10 {
		pool := NewWorkerPool(4)
		<-pool.Go(context.Background(), func(context.Context) error { return nil })
		pool.Close()
	}
	time.Sleep(10 * time.Millisecond)
	if after := runtime.NumGoroutine(); after > before+2 {
		t.Errorf("goroutines: before=%d after=%d", before, after)
	}
}
