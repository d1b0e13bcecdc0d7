// Package parallel splits index ranges over a bounded set of goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers returns the worker count to use for a requested thread count.
// Values below one select GOMAXPROCS.
func Workers(threads int) int {
	if threads > 0 {
		return threads
	}
	n := runtime.GOMAXPROCS(0)
	if n <= 0 {
		n = 1
	}
	return n
}

// ChunkFunc processes indices [from, to) on behalf of worker.
type ChunkFunc func(worker, from, to int) error

// For splits [0, total) into at most workers contiguous chunks and processes
// each on its own goroutine. Chunk boundaries depend only on total and workers.
// The first error returned by fn is returned after all chunks finish.
func For(workers, total int, fn ChunkFunc) error {
	if total <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}
	if workers == 1 {
		return fn(0, 0, total)
	}
	groupSize := total / workers
	extra := total % workers
	var g errgroup.Group
	from := 0
	for w := 0; w < workers; w++ {
		size := groupSize
		if w < extra {
			size++
		}
		worker, start, end := w, from, from+size
		g.Go(func() error {
			return fn(worker, start, end)
		})
		from = end
	}
	return g.Wait()
}

// Run calls fn once per worker id in [0, workers) concurrently. It is meant for
// loops that pull work from a shared source, such as a sample stream.
func Run(workers int, fn func(worker int) error) error {
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			return fn(worker)
		})
	}
	return g.Wait()
}
