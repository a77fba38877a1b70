// Package batch runs an operation over a list of items in fixed-size
// concurrent batches.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Op processes a single item. A returned error marks the item failed.
type Op[T any] func(ctx context.Context, item T) error

// Stats summarises a Run. It is informational only.
type Stats struct {
	Batches   int
	Items     int
	Succeeded int
	Failed    int
}

// Engine processes items in contiguous batches of Size. Items within a batch
// run concurrently and the next batch starts only after every item of the
// current one has settled.
type Engine[T any] struct {
	size int
}

// New returns an engine with the given batch size. Sizes below 1 are treated
// as 1.
func New[T any](size int) *Engine[T] {
	if size < 1 {
		size = 1
	}
	return &Engine[T]{size: size}
}

// Size returns the effective batch size.
func (e *Engine[T]) Size() int {
	return e.size
}

// Run applies op to every item. Failures and panics are counted against the
// item and never stop the batch or the run. Run does not check ctx between
// batches; op receives ctx and decides for itself.
func (e *Engine[T]) Run(ctx context.Context, items []T, op Op[T]) Stats {
	stats := Stats{Items: len(items)}

	for start := 0; start < len(items); start += e.size {
		end := min(start+e.size, len(items))
		ok, failed := e.runBatch(ctx, items[start:end], op)
		stats.Batches++
		stats.Succeeded += ok
		stats.Failed += failed

		slog.Debug("Batch settled",
			"batch", stats.Batches, "from", start, "to", end,
			"succeeded", ok, "failed", failed)
	}
	return stats
}

func (e *Engine[T]) runBatch(ctx context.Context, items []T, op Op[T]) (succeeded, failed int) {
	var okCount, failCount atomic.Int64

	// errgroup without WithContext: one item failing must not cancel the rest.
	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			if err := safeCall(ctx, item, op); err != nil {
				failCount.Add(1)
				return nil
			}
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(okCount.Load()), int(failCount.Load())
}

func safeCall[T any](ctx context.Context, item T, op Op[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while processing batch item", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx, item)
}
