package filter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	Block    uint64
	TxHash   string
	LogIndex uint16
}

type fakeCache struct {
	mu         sync.Mutex
	cachedFrom uint64
	cachedThru uint64
	hasRange   bool
	rows       []row
}

func (c *fakeCache) IsCachedThru(ctx context.Context, fromBlock uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRange || c.cachedFrom > fromBlock {
		return 0, nil
	}
	return c.cachedThru, nil
}

func (c *fakeCache) CheckAndSelect(ctx context.Context, from, to uint64) ([]row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []row
	for _, r := range c.rows {
		if r.Block >= from && r.Block <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *fakeCache) SetMetadata(ctx context.Context, from, thru uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRange {
		c.cachedFrom, c.cachedThru, c.hasRange = from, thru, true
		return nil
	}
	if from < c.cachedFrom {
		c.cachedFrom = from
	}
	if thru > c.cachedThru {
		c.cachedThru = thru
	}
	return nil
}

func TestFilterCatchesUpAndOrdersChunks(t *testing.T) {
	head := uint64(10_000)
	fetch := func(ctx context.Context, from, to uint64) ([]row, error) {
		// return rows out of order within the chunk to exercise the
		// in-chunk sort
		return []row{
			{Block: to, TxHash: "b", LogIndex: 0},
			{Block: from, TxHash: "a", LogIndex: 0},
		}, nil
	}

	var mu sync.Mutex
	var inserted []row
	cache := &fakeCache{}

	f := New(Config{FromBlock: 1, ChunkSize: 2_000, SleepTime: time.Hour},
		fetch,
		func(ctx context.Context, rows []row) error {
			mu.Lock()
			inserted = append(inserted, rows...)
			mu.Unlock()
			return nil
		},
		cache,
		func(ctx context.Context) (uint64, error) { return head, nil },
		func(a, b row) bool {
			if a.Block != b.Block {
				return a.Block < b.Block
			}
			return a.TxHash < b.TxHash
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	require.Eventually(t, func() bool {
		return f.Cursor() >= head
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, inserted)
	for i := 1; i < len(inserted); i++ {
		require.LessOrEqual(t, inserted[i-1].Block, inserted[i].Block)
	}
}

func TestObjectsThruReturnsWindowedRows(t *testing.T) {
	head := uint64(2_000)
	fetch := func(ctx context.Context, from, to uint64) ([]row, error) {
		return []row{{Block: from}, {Block: to}}, nil
	}
	cache := &fakeCache{}
	f := New(Config{FromBlock: 1, ChunkSize: 2_000, SleepTime: time.Hour},
		fetch,
		func(ctx context.Context, rows []row) error { return nil },
		cache,
		func(ctx context.Context) (uint64, error) { return head, nil },
		func(a, b row) bool { return a.Block < b.Block },
	)

	ctx := context.Background()
	f.Start(ctx)

	rows, err := f.ObjectsThru(ctx, 1, head, func(r row) uint64 { return r.Block })
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		require.GreaterOrEqual(t, r.Block, uint64(1))
		require.LessOrEqual(t, r.Block, head)
	}
}

func TestObjectsThruRespectsContextCancellation(t *testing.T) {
	cache := &fakeCache{}
	f := New(Config{FromBlock: 1, ChunkSize: 2_000, SleepTime: time.Hour},
		func(ctx context.Context, from, to uint64) ([]row, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func(ctx context.Context, rows []row) error { return nil },
		cache,
		func(ctx context.Context) (uint64, error) { return 1_000_000, nil },
		func(a, b row) bool { return a.Block < b.Block },
	)

	ctx := context.Background()
	f.Start(ctx)

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err := f.ObjectsThru(reqCtx, 1, 1_000_000, func(r row) uint64 { return r.Block })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	f.Stop()
}
