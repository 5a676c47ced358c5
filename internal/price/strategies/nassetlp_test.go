package strategies

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/yearn/yprice-go/internal/price"
)

func TestNAssetLPGelatoTuplePricesPool(t *testing.T) {
	pool := common.HexToAddress("0xe000000000000000000000000000000000000e")
	usdc := common.HexToAddress("0xe100000000000000000000000000000000000e")
	dai := common.HexToAddress("0xe200000000000000000000000000000000000e")

	fc := newFakeClient()
	fc.returns(pool, nAssetLPTupleABI, "getTokens", []common.Address{usdc, dai})
	fc.returns(pool, nAssetLPTupleABI, "getBalances", []*big.Int{
		big.NewInt(1_000_000_000),                       // 1000 USDC @ 6dp
		big.NewInt(0).Mul(big.NewInt(1000), big.NewInt(1_000_000_000_000_000_000)), // 1000 DAI @ 18dp
	})
	fc.returns(pool, erc20ABI, "totalSupply", big.NewInt(0).Mul(big.NewInt(2000), big.NewInt(1_000_000_000_000_000_000)))
	fc.returns(usdc, erc20ABI, "decimals", uint8(6))
	fc.returns(dai, erc20ABI, "decimals", uint8(18))

	st := newTestStore(t)
	erc20 := NewERC20(st, 1, fc)
	router := newFakeRouter()
	router.set(usdc, 1.0)
	router.set(dai, 1.0)

	n := NewNAssetLP(fc, erc20, router, KindGelato)

	matched, err := n.Matches(context.Background(), pool, 100)
	require.NoError(t, err)
	require.True(t, matched)

	p, ok, err := n.Price(context.Background(), pool, 100, price.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(mustDecimal("1")), "got %s", p)
}

func TestNAssetLPIndexedProbeSumsRepeatedEntries(t *testing.T) {
	// The fake client scripts one response per (address, selector) pair,
	// so getToken(i)/getTokenBalance(i) return the same values at every
	// index; indexedProbe still runs its full fixed 8-iteration sweep
	// (there is no revert to stop it early here), giving 8 identical
	// entries that sum like any other set of balances would.
	pool := common.HexToAddress("0xf000000000000000000000000000000000000f")
	tokenA := common.HexToAddress("0xf100000000000000000000000000000000000f")

	fc := newFakeClient()
	fc.returns(pool, nAssetLPIndexedABI, "getToken", tokenA)
	fc.returns(pool, nAssetLPIndexedABI, "getTokenBalance", big.NewInt(0).Mul(big.NewInt(5), big.NewInt(1_000_000_000_000_000_000)))
	fc.returns(pool, erc20ABI, "totalSupply", big.NewInt(0).Mul(big.NewInt(5), big.NewInt(1_000_000_000_000_000_000)))
	fc.returns(tokenA, erc20ABI, "decimals", uint8(18))

	st := newTestStore(t)
	erc20 := NewERC20(st, 1, fc)
	router := newFakeRouter()
	router.set(tokenA, 2.0)

	n := NewNAssetLP(fc, erc20, router, KindBelt)

	p, ok, err := n.Price(context.Background(), pool, 100, price.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	// 8 entries * 5 tokens * $2 = $80 TVL over a supply of 5 -> $16/share.
	require.True(t, p.Equal(mustDecimal("16")), "got %s", p)
}
