package strategies

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/yearn/yprice-go/internal/price"
)

func TestUniswapV2PricesBalancedPair(t *testing.T) {
	pair := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	usdc := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	weth := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	fc := newFakeClient()
	fc.returns(pair, uniswapV2PairABI, "token0", usdc)
	fc.returns(pair, uniswapV2PairABI, "token1", weth)
	fc.returns(pair, uniswapV2PairABI, "getReserves", big.NewInt(1_000_000_000), big.NewInt(500_000_000_000_000_000), uint32(0))
	fc.returns(pair, erc20ABI, "totalSupply", big.NewInt(0).Mul(big.NewInt(10), big.NewInt(1_000_000_000_000_000_000)))
	fc.returns(usdc, erc20ABI, "decimals", uint8(6))
	fc.returns(weth, erc20ABI, "decimals", uint8(18))

	st := newTestStore(t)
	erc20 := NewERC20(st, 1, fc)
	router := newFakeRouter()
	router.set(usdc, 1.0)
	router.set(weth, 2000.0)

	u := NewUniswapV2(fc, erc20, router, nil)

	matched, err := u.Matches(context.Background(), pair, 100)
	require.NoError(t, err)
	require.True(t, matched)

	p, ok, err := u.Price(context.Background(), pair, 100, price.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(mustDecimal("200")), "got %s", p)
}

func TestUniswapV2NonPairDoesNotMatch(t *testing.T) {
	token := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	fc := newFakeClient()
	fc.reverts(token, uniswapV2PairABI, "token0")

	st := newTestStore(t)
	erc20 := NewERC20(st, 1, fc)
	router := newFakeRouter()
	u := NewUniswapV2(fc, erc20, router, nil)

	matched, err := u.Matches(context.Background(), token, 100)
	require.NoError(t, err)
	require.False(t, matched)
}
