package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelizeCoversEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 64} {
		SetMaxWorkers(workers)
		hits := make([]int32, 1000)
		Parallelize(len(hits), func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			require.Equal(t, int32(1), h, "index %d with %d workers", i, workers)
		}
	}
	SetMaxWorkers(0)
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)

	ParallelizeWithThreshold(0, 100, func(start, end int) {
		t.Fatal("must not be called for zero items")
	})
}

func TestForEachReturnsLowestIndexError(t *testing.T) {
	first := errors.New("first")
	err := ForEach(50, 0, func(i int) error {
		switch i {
		case 7:
			return first
		case 30:
			return errors.New("later")
		}
		return nil
	})
	assert.Same(t, first, err)

	assert.NoError(t, ForEach(5, 10, func(int) error { return nil }))
}

func TestWorkers(t *testing.T) {
	SetMaxWorkers(2)
	assert.Equal(t, 2, Workers())
	SetMaxWorkers(0)
	assert.Greater(t, Workers(), 0)
}
