package strategies

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/filter"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

var chainlinkAggregatorABI = mustABI(`[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`)

var chainlinkRegistryABI = mustABI(`[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"asset","type":"address"},
		{"indexed":true,"name":"denomination","type":"address"},
		{"indexed":false,"name":"latestAggregator","type":"address"},
		{"indexed":false,"name":"previousAggregator","type":"address"},
		{"indexed":false,"name":"nextPhaseId","type":"uint16"}
	],"name":"FeedConfirmed","type":"event"}
]`)

// staleAfter is the freshness window spec §4.7 sets for feed staleness:
// "latestTimestamp + 24h < block.timestamp ⇒ feed considered stale."
const staleAfter = 24 * time.Hour

// usdDenomination is the ERC-20-API convention Chainlink's feed registry
// uses to mean "this feed is denominated in USD" rather than another
// asset.
var usdDenomination = common.HexToAddress("0x0000000000000000000000000000000000000348")

// Chainlink prices tokens with a confirmed USD-denominated feed, combining
// a hard-coded feed map with a Filter over the feed registry's
// FeedConfirmed log (spec §4.7).
type Chainlink struct {
	feeds       map[common.Address]common.Address // token -> aggregator, hardcoded
	client      rpc.Client
	discovery   *filter.LogFilter
	blockTimeOf func(ctx context.Context, block uint64) (time.Time, error)

	learned map[common.Address]common.Address
}

// NewChainlink builds the Chainlink strategy. blockTimeOf resolves a
// block number to wall-clock time for the staleness check (wired to
// blocktime.Service.BlockTimestamp).
func NewChainlink(client rpc.Client, feeds map[common.Address]common.Address, discovery *filter.LogFilter, blockTimeOf func(context.Context, uint64) (time.Time, error)) *Chainlink {
	if feeds == nil {
		feeds = map[common.Address]common.Address{}
	}
	return &Chainlink{feeds: feeds, client: client, discovery: discovery, blockTimeOf: blockTimeOf, learned: map[common.Address]common.Address{}}
}

func (c *Chainlink) Name() string        { return "chainlink" }
func (c *Chainlink) Bucket() price.Bucket { return price.BucketChainlinkFeed }

func (c *Chainlink) aggregatorFor(token common.Address) (common.Address, bool) {
	c.absorbDiscoveries()
	if a, ok := c.feeds[token]; ok {
		return a, true
	}
	a, ok := c.learned[token]
	return a, ok
}

func (c *Chainlink) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	_, ok := c.aggregatorFor(token)
	return ok, nil
}

func (c *Chainlink) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	aggregator, ok := c.aggregatorFor(token)
	if !ok {
		return notAKind(c.Name(), token)
	}
	bn := new(big.Int).SetUint64(block)
	var decimals uint8
	if err := call(ctx, c.client, chainlinkAggregatorABI, aggregator, "decimals", bn, &decimals); err != nil {
		return noneIfRevert(err)
	}
	vals, err := callValues(ctx, c.client, chainlinkAggregatorABI, aggregator, "latestRoundData", bn)
	if err != nil {
		return noneIfRevert(err)
	}
	answer := vals[1].(*big.Int)
	updatedAt := vals[3].(*big.Int)
	if answer.Sign() <= 0 {
		return notAKind(c.Name(), token)
	}

	if c.blockTimeOf != nil {
		blockTime, err := c.blockTimeOf(ctx, block)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		feedTime := time.Unix(updatedAt.Int64(), 0)
		if feedTime.Add(staleAfter).Before(blockTime) {
			logger.Warn("chainlink: feed stale, skipping", "token", token.Hex(), "aggregator", aggregator.Hex())
			return notAKind(c.Name(), token)
		}
	}
	return scaleDown(answer, decimals), true, nil
}

func (c *Chainlink) absorbDiscoveries() {
	if c.discovery == nil {
		return
	}
	rows, err := c.discovery.ObjectsThru(context.Background(), 0, c.discovery.Cursor())
	if err != nil {
		return
	}
	for _, row := range rows {
		log, err := decodeLog(row.Raw)
		if err != nil || len(log.Topics) < 3 {
			continue
		}
		denomination := common.BytesToAddress(log.Topics[2].Bytes())
		if denomination != usdDenomination {
			continue
		}
		vals, err := chainlinkRegistryABI.Events["FeedConfirmed"].Inputs.NonIndexed().Unpack(log.Data)
		if err != nil || len(vals) == 0 {
			continue
		}
		aggregator, _ := vals[0].(common.Address)
		if aggregator == (common.Address{}) {
			continue
		}
		asset := common.BytesToAddress(log.Topics[1].Bytes())
		c.learned[asset] = aggregator
	}
}
