package health

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCacheTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := newResultCache(func() time.Time { return now })

	calls := 0
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	v, err := cache.get("k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Within the TTL the memo is served.
	now = now.Add(30 * time.Second)
	v, err = cache.get("k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Past the TTL the value is recomputed.
	now = now.Add(31 * time.Second)
	v, err = cache.get("k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestResultCacheSingleFlight(t *testing.T) {
	cache := newResultCache(time.Now)

	var computes atomic.Int32
	compute := func() (any, error) {
		computes.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "done", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.get("expensive", time.Minute, compute)
			assert.NoError(t, err)
			assert.Equal(t, "done", v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), computes.Load(), "concurrent callers must share one computation")
}

func TestResultCacheErrorNotCached(t *testing.T) {
	cache := newResultCache(time.Now)

	calls := 0
	_, err := cache.get("k", time.Minute, func() (any, error) {
		calls++
		return nil, fmt.Errorf("probe down")
	})
	require.Error(t, err)

	v, err := cache.get("k", time.Minute, func() (any, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls, "a failed computation must not be memoized")
}

func TestResultCacheInvalidate(t *testing.T) {
	cache := newResultCache(time.Now)

	calls := 0
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	_, err := cache.get("k", time.Minute, compute)
	require.NoError(t, err)
	cache.invalidate("k")

	v, err := cache.get("k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
