package blocksem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseWithinCapacity(t *testing.T) {
	sem := New(2)
	ctx := context.Background()
	require.NoError(t, sem.Acquire(ctx, 100))
	require.NoError(t, sem.Acquire(ctx, 200))
	sem.Release()
	sem.Release()
}

func TestAdmitsLowestBlockFirst(t *testing.T) {
	sem := New(1)
	ctx := context.Background()
	require.NoError(t, sem.Acquire(ctx, 1)) // holds the only slot

	var mu sync.Mutex
	var order []uint64
	var wg sync.WaitGroup

	for _, tb := range []uint64{300, 100, 200} {
		wg.Add(1)
		go func(toBlock uint64) {
			defer wg.Done()
			require.NoError(t, sem.Acquire(ctx, toBlock))
			mu.Lock()
			order = append(order, toBlock)
			mu.Unlock()
			sem.Release()
		}(tb)
	}

	// give the goroutines time to queue up behind the held slot
	require.Eventually(t, func() bool {
		return sem.Len() == 3
	}, time.Second, time.Millisecond)

	sem.Release() // frees the initial holder's slot
	wg.Wait()

	require.Equal(t, []uint64{100, 200, 300}, order)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	sem := New(1)
	ctx := context.Background()
	require.NoError(t, sem.Acquire(ctx, 1))

	cctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sem.Acquire(cctx, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
