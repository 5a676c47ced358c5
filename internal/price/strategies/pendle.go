package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/filter"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

// pendleTWAPWindow is the averaging window spec §4.7 sets for Pendle LP
// pricing: "LP-to-SY/asset oracle rate, 900s TWAP".
const pendleTWAPWindow = 900

var pendleMarketABI = mustABI(`[
	{"inputs":[],"name":"readTokens","outputs":[
		{"name":"_SY","type":"address"},
		{"name":"_PT","type":"address"},
		{"name":"_YT","type":"address"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"duration","type":"uint32"}],"name":"getLpToAssetRate","outputs":[{"name":"lpToAssetRate","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

var pendleSYABI = mustABI(`[
	{"inputs":[],"name":"assetInfo","outputs":[
		{"name":"assetType","type":"uint8"},
		{"name":"assetAddress","type":"address"},
		{"name":"assetDecimals","type":"uint8"}
	],"stateMutability":"view","type":"function"}
]`)

var pendleFactoryABI = mustABI(`[
	{"anonymous":false,"inputs":[{"indexed":false,"name":"market","type":"address"}],"name":"PoolCreated","type":"event"}
]`)

// Pendle prices LP tokens as lpToAssetRate (a 900s TWAP) times the
// underlying asset's USD price (spec §4.7).
type Pendle struct {
	matchCache
	client    rpc.Client
	router    priceOracle
	discovery *filter.LogFilter
	markets   map[common.Address]bool
}

// NewPendle builds the strategy; discovery, when non-nil, is a running
// Filter over a Pendle market factory's PoolCreated log.
func NewPendle(client rpc.Client, router priceOracle, discovery *filter.LogFilter) *Pendle {
	return &Pendle{matchCache: newMatchCache("pendle"), client: client, router: router, discovery: discovery, markets: map[common.Address]bool{}}
}

func (p *Pendle) Name() string        { return "pendle" }
func (p *Pendle) Bucket() price.Bucket { return price.BucketPendleLP }

func (p *Pendle) absorbDiscoveries() {
	if p.discovery == nil {
		return
	}
	rows, err := p.discovery.ObjectsThru(context.Background(), 0, p.discovery.Cursor())
	if err != nil {
		return
	}
	for _, row := range rows {
		log, err := decodeLog(row.Raw)
		if err != nil {
			continue
		}
		vals, err := pendleFactoryABI.Events["PoolCreated"].Inputs.Unpack(log.Data)
		if err != nil || len(vals) == 0 {
			continue
		}
		if market, ok := vals[0].(common.Address); ok {
			p.markets[market] = true
		}
	}
}

func (p *Pendle) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return p.cached(ctx, token, func(ctx context.Context) (bool, error) {
		p.absorbDiscoveries()
		if p.markets[token] {
			return true, nil
		}
		if err := call(ctx, p.client, pendleMarketABI, token, "readTokens", new(big.Int).SetUint64(block), nil); err != nil {
			return matchNone(err)
		}
		return true, nil
	})
}

func (p *Pendle) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	bn := new(big.Int).SetUint64(block)
	vals, err := callValues(ctx, p.client, pendleMarketABI, token, "readTokens", bn)
	if err != nil {
		return noneIfRevert(err)
	}
	sy, _ := vals[0].(common.Address)

	assetVals, err := callValues(ctx, p.client, pendleSYABI, sy, "assetInfo", bn)
	if err != nil {
		return noneIfRevert(err)
	}
	asset, _ := assetVals[1].(common.Address)

	assetPrice, ok, err := p.router.GetPrice(ctx, asset, block, opts)
	if err != nil || !ok {
		return decimal.Decimal{}, false, err
	}

	var rate *big.Int
	if err := call(ctx, p.client, pendleMarketABI, token, "getLpToAssetRate", bn, &rate, uint32(pendleTWAPWindow)); err != nil {
		return noneIfRevert(err)
	}
	if rate == nil || rate.Sign() <= 0 {
		return notAKind(p.Name(), token)
	}
	return assetPrice.Mul(scaleDown(rate, 18)), true, nil
}
