package datagen

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// chunk is one contiguous slice [Start, Start+Count) of the output
type chunk struct {
	Index int
	Start int
	Count int
}

// splitChunks cuts n items into chunks of size; the last chunk holds the remainder
func splitChunks(n, size int) []chunk {
	if size < 1 {
		size = 1
	}
	var out []chunk
	for start, idx := 0, 0; start < n; start, idx = start+size, idx+1 {
		count := size
		if start+count > n {
			count = n - start
		}
		out = append(out, chunk{Index: idx, Start: start, Count: count})
	}
	return out
}

// runChunks executes fn for every chunk on at most workers goroutines. Chunks write to disjoint
// output ranges. The first error cancels the remaining chunks and is returned after all workers joined.
// A single chunk runs inline.
func runChunks(ctx context.Context, chunks []chunk, workers int, fn func(ctx context.Context, c chunk) error) error {
	if len(chunks) == 1 {
		return fn(ctx, chunks[0])
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))
	for _, c := range chunks {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		c := c
		g.Go(func() error {
			defer sem.Release(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, c)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
