package memo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetCollapsesConcurrentCallers(t *testing.T) {
	c := New[string, int](10, time.Minute)
	var calls int32
	var wg sync.WaitGroup

	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "key", "key", fetch)
			require.NoError(t, err)
			require.Equal(t, 42, v)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetCachesAcrossCalls(t *testing.T) {
	c := New[string, int](10, time.Minute)
	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return int(calls), nil
	}

	v1, err := c.Get(context.Background(), "k", "k", fetch)
	require.NoError(t, err)
	v2, err := c.Get(context.Background(), "k", "k", fetch)
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, int32(1), calls)
}

func TestGetPropagatesFetchError(t *testing.T) {
	c := New[string, int](10, time.Minute)
	wantErr := fmt.Errorf("boom")
	_, err := c.Get(context.Background(), "k", "k", func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 0, c.Len())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := New[string, int](10, time.Minute)
	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}
	v1, _ := c.Get(context.Background(), "k", "k", fetch)
	c.Invalidate("k")
	v2, _ := c.Get(context.Background(), "k", "k", fetch)
	require.NotEqual(t, v1, v2)
}
