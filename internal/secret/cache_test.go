package secret

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingProvider_CachesWithinTTL(t *testing.T) {
	var calls int32
	inner := ProviderFunc(func(_ context.Context, ref Ref) (Value, error) {
		atomic.AddInt32(&calls, 1)
		return NewValue([]byte(ref.ID)), nil
	})
	cp := NewCachingProvider(inner, CacheConfig{TTL: time.Minute, Capacity: 8})

	ref, err := ParseRef("secrets://api-key")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v, err := cp.Get(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, "api-key", string(v.Bytes()))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCachingProvider_RefetchesAfterTTLExpires(t *testing.T) {
	var calls int32
	inner := ProviderFunc(func(_ context.Context, ref Ref) (Value, error) {
		atomic.AddInt32(&calls, 1)
		return NewValue([]byte(ref.ID)), nil
	})
	cp := NewCachingProvider(inner, CacheConfig{TTL: time.Millisecond, Capacity: 8})

	ref, err := ParseRef("secrets://api-key")
	require.NoError(t, err)

	_, err = cp.Get(context.Background(), ref)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = cp.Get(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCachingProvider_CoalescesConcurrentLookups(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	inner := ProviderFunc(func(_ context.Context, ref Ref) (Value, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return NewValue([]byte(ref.ID)), nil
	})
	cp := NewCachingProvider(inner, CacheConfig{TTL: time.Minute, Capacity: 8})

	ref, err := ParseRef("secrets://api-key")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Value, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cp.Get(context.Background(), ref)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "api-key", string(v.Bytes()))
	}
}
