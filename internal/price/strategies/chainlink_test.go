package strategies

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/yearn/yprice-go/internal/price"
)

func TestChainlinkPricesHardcodedFeed(t *testing.T) {
	token := common.HexToAddress("0x1000000000000000000000000000000000000a")
	aggregator := common.HexToAddress("0x2000000000000000000000000000000000000b")

	fc := newFakeClient()
	fc.returns(aggregator, chainlinkAggregatorABI, "decimals", uint8(8))
	fc.returns(aggregator, chainlinkAggregatorABI, "latestRoundData",
		big.NewInt(1), big.NewInt(200_000_000), big.NewInt(0), big.NewInt(time.Now().Unix()), big.NewInt(1))

	blockTimeOf := func(ctx context.Context, block uint64) (time.Time, error) { return time.Now(), nil }
	c := NewChainlink(fc, map[common.Address]common.Address{token: aggregator}, nil, blockTimeOf)

	matched, err := c.Matches(context.Background(), token, 100)
	require.NoError(t, err)
	require.True(t, matched)

	p, ok, err := c.Price(context.Background(), token, 100, price.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(mustDecimal("2")), "got %s", p)
}

func TestChainlinkStaleFeedIsNotAKind(t *testing.T) {
	token := common.HexToAddress("0x1000000000000000000000000000000000000c")
	aggregator := common.HexToAddress("0x2000000000000000000000000000000000000d")

	fc := newFakeClient()
	fc.returns(aggregator, chainlinkAggregatorABI, "decimals", uint8(8))
	stale := time.Now().Add(-48 * time.Hour)
	fc.returns(aggregator, chainlinkAggregatorABI, "latestRoundData",
		big.NewInt(1), big.NewInt(200_000_000), big.NewInt(0), big.NewInt(stale.Unix()), big.NewInt(1))

	blockTimeOf := func(ctx context.Context, block uint64) (time.Time, error) { return time.Now(), nil }
	c := NewChainlink(fc, map[common.Address]common.Address{token: aggregator}, nil, blockTimeOf)

	_, ok, err := c.Price(context.Background(), token, 100, price.Options{})
	var nak *ErrNotAKind
	require.ErrorAs(t, err, &nak)
	require.False(t, ok)
}

func TestChainlinkUnknownTokenDoesNotMatch(t *testing.T) {
	token := common.HexToAddress("0x1000000000000000000000000000000000000e")
	fc := newFakeClient()
	c := NewChainlink(fc, nil, nil, nil)

	matched, err := c.Matches(context.Background(), token, 100)
	require.NoError(t, err)
	require.False(t, matched)
}
