// Package parallel splits index ranges across worker goroutines. Callers write
// only to disjoint slots of a preallocated result, so the output does not depend
// on scheduling.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var maxWorkers atomic.Int64

// SetMaxWorkers caps the number of goroutines used. n <= 0 means runtime.NumCPU().
func SetMaxWorkers(n int) {
	maxWorkers.Store(int64(n))
}

// Workers returns the effective worker count.
func Workers() int {
	if n := int(maxWorkers.Load()); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Parallelize divides items into contiguous chunks, one per worker, and calls
// fn(start, end) for each chunk concurrently.
func Parallelize(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	numWorkers := Workers()
	if numWorkers > items {
		numWorkers = items
	}
	if numWorkers == 1 {
		fn(0, items)
		return
	}

	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs sequentially when items <= threshold.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEach calls fn(i) for every i in [0, items) and returns the error with the
// lowest index, if any.
func ForEach(items, threshold int, fn func(i int) error) error {
	if items <= 0 {
		return nil
	}
	errs := make([]error, items)
	ParallelizeWithThreshold(items, threshold, func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = fn(i)
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
