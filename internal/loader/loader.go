// Package loader batches an in-memory dataset for training. Batches are assembled on one producer
// goroutine and handed over through a bounded channel.
package loader

import (
	"context"
	"fmt"

	"goqem/internal/errors"
	"goqem/ports"
)

// Options controls batching
type Options struct {
	BatchSize int
	Shuffle   bool
	// DropLast discards a trailing batch smaller than BatchSize
	DropLast bool
	// Prefetch is the channel capacity; 0 hands batches over synchronously
	Prefetch int
}

// Batch is one slice of the dataset
type Batch[T any] struct {
	Index int
	Items []T
}

// Loader yields batches of items, reshuffled each epoch from a deterministic stream
type Loader[T any] struct {
	items  []T
	opts   Options
	rng    ports.RNGPort
	stream string
}

// New creates a loader. stream names the RNG stream used for shuffling.
func New[T any](items []T, opts Options, rng ports.RNGPort, stream string) (*Loader[T], error) {
	if opts.BatchSize < 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize))
	}
	if opts.Prefetch < 0 {
		return nil, errors.InvalidInput("prefetch must be non-negative")
	}
	if opts.Shuffle && rng == nil {
		return nil, errors.InvalidInput("shuffling requires an rng")
	}
	if len(items) == 0 {
		return nil, errors.InvalidInput("dataset is empty")
	}
	if opts.DropLast && len(items) < opts.BatchSize {
		return nil, errors.InvalidInput(fmt.Sprintf("dataset of %d items yields no full batch of %d", len(items), opts.BatchSize))
	}
	return &Loader[T]{items: items, opts: opts, rng: rng, stream: stream}, nil
}

// Size returns the number of items
func (l *Loader[T]) Size() int { return len(l.items) }

// Len returns the number of batches per epoch
func (l *Loader[T]) Len() int {
	n, b := len(l.items), l.opts.BatchSize
	if l.opts.DropLast {
		return n / b
	}
	return (n + b - 1) / b
}

// Order returns the item order of an epoch
func (l *Loader[T]) Order(epoch int) []int {
	if l.opts.Shuffle {
		return l.rng.Stream(l.stream, epoch).Perm(len(l.items))
	}
	order := make([]int, len(l.items))
	for i := range order {
		order[i] = i
	}
	return order
}

// Epoch starts the producer for one epoch. The channel closes after the last batch or once ctx
// is done; callers check ctx.Err() to tell the two apart. A caller that stops reading early must
// cancel ctx, otherwise the producer stays blocked on its next send; Each does that.
func (l *Loader[T]) Epoch(ctx context.Context, epoch int) <-chan Batch[T] {
	out := make(chan Batch[T], l.opts.Prefetch)
	order := l.Order(epoch)
	batches := l.Len()

	go func() {
		defer close(out)
		for b := 0; b < batches; b++ {
			start := b * l.opts.BatchSize
			end := min(start+l.opts.BatchSize, len(order))
			items := make([]T, 0, end-start)
			for _, idx := range order[start:end] {
				items = append(items, l.items[idx])
			}
			select {
			case out <- Batch[T]{Index: b, Items: items}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Each calls fn for every batch of an epoch. When fn fails, the producer is stopped and drained
// before the error is returned. A cancelled ctx ends the epoch with ctx.Err().
func (l *Loader[T]) Each(ctx context.Context, epoch int, fn func(Batch[T]) error) error {
	epochCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := l.Epoch(epochCtx, epoch)
	for b := range ch {
		if err := fn(b); err != nil {
			cancel()
			for range ch {
			}
			return err
		}
	}
	return ctx.Err()
}
