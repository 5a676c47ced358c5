package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newAdminTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.sqlite")
	st, err := Open(Config{Provider: "embedded", ChainID: 1, SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Bind(context.Background()))
	return st
}

func TestInfoReportsRowCountsPerTable(t *testing.T) {
	st := newAdminTestStore(t)
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, st.PutPrice(context.Background(), 1, 100, token, decimal.NewFromInt(2)))

	rows, err := st.Info(context.Background())
	require.NoError(t, err)

	byTable := map[string]int64{}
	for _, r := range rows {
		byTable[r.Table] = r.Rows
	}
	require.Equal(t, int64(1), byTable["price"])
	require.Equal(t, int64(1), byTable["address"])
}

func TestTokenBySymbolResolvesAndMisses(t *testing.T) {
	st := newAdminTestStore(t)
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	symbol := "WETH"
	require.NoError(t, st.UpsertTokenMetadata(context.Background(), 1, token, &symbol, nil, nil, nil))

	addr, ok, err := st.TokenBySymbol(context.Background(), "WETH")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, token, addr)

	_, ok, err = st.TokenBySymbol(context.Background(), "NOPE")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearTokenDeletesOnlyThatToken(t *testing.T) {
	st := newAdminTestStore(t)
	ctx := context.Background()
	tokenA := common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokenB := common.HexToAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, st.PutPrice(ctx, 1, 100, tokenA, decimal.NewFromInt(1)))
	require.NoError(t, st.PutPrice(ctx, 1, 100, tokenB, decimal.NewFromInt(2)))

	require.NoError(t, st.ClearToken(ctx, tokenA))

	_, ok, err := st.GetPrice(ctx, 1, 100, tokenA)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = st.GetPrice(ctx, 1, 100, tokenB)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClearBlockDeletesOnlyThatBlock(t *testing.T) {
	st := newAdminTestStore(t)
	ctx := context.Background()
	token := common.HexToAddress("0x5555555555555555555555555555555555555555")
	require.NoError(t, st.PutPrice(ctx, 1, 100, token, decimal.NewFromInt(1)))
	require.NoError(t, st.PutPrice(ctx, 1, 200, token, decimal.NewFromInt(2)))

	require.NoError(t, st.ClearBlock(ctx, 100))

	_, ok, err := st.GetPrice(ctx, 1, 100, token)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = st.GetPrice(ctx, 1, 200, token)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNukeClearsEveryTable(t *testing.T) {
	st := newAdminTestStore(t)
	ctx := context.Background()
	token := common.HexToAddress("0x6666666666666666666666666666666666666666")
	require.NoError(t, st.PutPrice(ctx, 1, 100, token, decimal.NewFromInt(1)))

	require.NoError(t, st.Nuke(ctx))

	rows, err := st.Info(ctx)
	require.NoError(t, err)
	for _, r := range rows {
		require.Zerof(t, r.Rows, "table %s should be empty after nuke", r.Table)
	}
}

func TestVacuumRunsWithoutError(t *testing.T) {
	st := newAdminTestStore(t)
	require.NoError(t, st.Vacuum(context.Background()))
}
