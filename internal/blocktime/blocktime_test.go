package blocktime

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
	"github.com/yearn/yprice-go/internal/rpc"
	"github.com/yearn/yprice-go/internal/store"
)

type fakeClient struct {
	headers   map[uint64]*types.Header
	headBlock uint64
	codeAt    map[uint64][]byte
}

func (f *fakeClient) CallMany(ctx context.Context, batch []gethrpc.BatchElem) error { return nil }
func (f *fakeClient) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeClient) GetCode(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	n := block.Uint64()
	if code, ok := f.codeAt[n]; ok {
		return code, nil
	}
	return nil, nil
}
func (f *fakeClient) HeaderByNumber(ctx context.Context, block *big.Int) (*types.Header, error) {
	n := f.headBlock
	if block != nil {
		n = block.Uint64()
	}
	if h, ok := f.headers[n]; ok {
		return h, nil
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: n * 12}, nil
}
func (f *fakeClient) StorageAt(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) TraceFilter(ctx context.Context, from, to uint64, fromAddrs, toAddrs []common.Address) ([]rpc.TraceResult, error) {
	return nil, nil
}
func (f *fakeClient) TraceBlock(ctx context.Context, block uint64) ([]rpc.TraceResult, error) {
	return nil, nil
}
func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) Close() {}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	st, err := store.Open(store.Config{Provider: "embedded", ChainID: 1, SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Bind(context.Background()))
	return st
}

func TestBlockTimestampMemoizesHeaderFetch(t *testing.T) {
	st := newTestStore(t)
	fc := &fakeClient{headers: map[uint64]*types.Header{}, headBlock: 1000}
	svc := New(st, fc, 1)

	ts, err := svc.BlockTimestamp(context.Background(), 500)
	require.NoError(t, err)
	require.Equal(t, int64(500*12), ts.Unix())

	// second call should be served from the Store memo without needing a
	// header entry for 500 in the fake client.
	delete(fc.headers, 500)
	ts2, err := svc.BlockTimestamp(context.Background(), 500)
	require.NoError(t, err)
	require.Equal(t, ts, ts2)
}

func TestClosestBlockAfterTimestampBinarySearches(t *testing.T) {
	st := newTestStore(t)
	fc := &fakeClient{headers: map[uint64]*types.Header{}, headBlock: 1000}
	svc := New(st, fc, 1)

	target := time.Unix(500*12, 0).UTC()
	block, err := svc.ClosestBlockAfterTimestamp(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, uint64(500), block)
}
