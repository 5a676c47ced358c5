package strategies

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	st, err := store.Open(store.Config{Provider: "embedded", ChainID: 1, SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Bind(context.Background()))
	return st
}

func TestYearnlikePricesV2VaultViaPricePerShare(t *testing.T) {
	vault := common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	underlying := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")

	fc := newFakeClient()
	// v2-shaped vault: "token" is first in method order and succeeds, so
	// "asset" is never reached; this vault only implements token/pricePerShare.
	fc.reverts(vault, yearnlikeABI, "asset")
	fc.returns(vault, yearnlikeABI, "token", underlying)
	fc.returns(vault, yearnlikeABI, "pricePerShare", big.NewInt(1_100_000)) // 1.1 at 6 decimals
	fc.returns(vault, erc20ABI, "decimals", uint8(6))

	st := newTestStore(t)
	erc20 := NewERC20(st, 1, fc)
	router := newFakeRouter()
	router.set(underlying, 2.0)

	y := NewYearnlike(fc, erc20, router)

	matched, err := y.Matches(context.Background(), vault, 100)
	require.NoError(t, err)
	require.True(t, matched)

	p, ok, err := y.Price(context.Background(), vault, 100, price.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(mustDecimal("2.2")), "got %s", p)
}

func TestYearnlikeNoUnderlyingMethodIsNotAKind(t *testing.T) {
	vault := common.HexToAddress("0xcccc000000000000000000000000000000cccc")
	fc := newFakeClient()
	fc.reverts(vault, yearnlikeABI, "token")
	fc.reverts(vault, yearnlikeABI, "asset")
	fc.reverts(vault, yearnlikeABI, "want")
	fc.reverts(vault, yearnlikeABI, "underlying")

	st := newTestStore(t)
	erc20 := NewERC20(st, 1, fc)
	router := newFakeRouter()
	y := NewYearnlike(fc, erc20, router)

	matched, err := y.Matches(context.Background(), vault, 100)
	require.NoError(t, err)
	require.False(t, matched)

	_, ok, err := y.Price(context.Background(), vault, 100, price.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}
