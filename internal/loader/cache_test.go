package loader

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCacheComputesOncePerKey(t *testing.T) {
	cache := newResultCache()
	var calls int

	compute := func() (ResultMapping, error) {
		calls++
		return ResultMapping{"1": int64(3)}, nil
	}

	first, hit, err := cache.getOrCompute("a", compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := cache.getOrCompute("a", compute)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, cache.Hits())
	assert.EqualValues(t, 1, cache.Misses())
}

func TestResultCacheKeysAreIndependent(t *testing.T) {
	cache := newResultCache()
	boom := errors.New("bad query")

	_, _, err := cache.getOrCompute("broken", func() (ResultMapping, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	mapping, _, err := cache.getOrCompute("healthy", func() (ResultMapping, error) {
		return ResultMapping{"1": int64(1)}, nil
	})
	require.NoError(t, err)
	assert.Len(t, mapping, 1)

	// The failed key stays failed without re-running its computation.
	_, _, err = cache.getOrCompute("broken", func() (ResultMapping, error) {
		t.Fatal("failed entry must not recompute")
		return nil, nil
	})
	require.ErrorIs(t, err, boom)
}

func TestResultCacheConcurrentCallersShareOneComputation(t *testing.T) {
	cache := newResultCache()
	var calls atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mapping, _, err := cache.getOrCompute("shared", func() (ResultMapping, error) {
				calls.Add(1)
				return ResultMapping{"1": int64(9)}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, int64(9), mapping["1"])
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 32, cache.Hits()+cache.Misses())
}
