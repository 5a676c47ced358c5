package strategies

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/filter"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
	"github.com/yearn/yprice-go/internal/store"
)

var uniswapV2PairABI = mustABI(`[
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"type":"function"}
]`)

var uniswapV2FactoryABI = mustABI(`[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"token0","type":"address"},{"indexed":true,"name":"token1","type":"address"},{"indexed":false,"name":"pair","type":"address"},{"indexed":false,"name":"","type":"uint256"}],"name":"PairCreated","type":"event"}
]`)

// UniswapV2Factory is one known pair factory (Uniswap, Sushiswap, ...);
// Discovery, when non-nil, is a running Filter over its PairCreated log,
// the Filter-as-factory-discovery idiom spec §4.7 calls for.
type UniswapV2Factory struct {
	Name      string
	Address   common.Address
	Discovery *filter.LogFilter
}

type univ2Pair struct {
	pair   common.Address
	token0 common.Address
	token1 common.Address
}

// UniswapV2 prices LP tokens and, for arbitrary ERC-20s, routes through
// the deepest known pool (spec §4.7): "pick the deepest pool for token_in
// whose other side is priceable ... multiply by the paired token's USD
// price."
type UniswapV2 struct {
	matchCache
	client    rpc.Client
	erc20     *ERC20
	router    priceOracle
	factories []UniswapV2Factory

	mu    sync.Mutex
	pairs map[common.Address][]univ2Pair // token -> pools it appears in
	seen  map[common.Address]bool        // pair addresses already indexed
}

// NewUniswapV2 builds the Uniswap-v2-family strategy over the given
// factories; factories learned at runtime are appended via AddFactory and
// logged as a user-addressable anomaly (spec §4.7).
func NewUniswapV2(client rpc.Client, erc20 *ERC20, router priceOracle, factories []UniswapV2Factory) *UniswapV2 {
	return &UniswapV2{
		matchCache: newMatchCache("uniswapv2"),
		client:     client,
		erc20:      erc20,
		router:     router,
		factories:  factories,
		pairs:      map[common.Address][]univ2Pair{},
		seen:       map[common.Address]bool{},
	}
}

func (u *UniswapV2) Name() string        { return "uniswap-v2" }
func (u *UniswapV2) Bucket() price.Bucket { return price.BucketUniV2LP }

// Matches reports whether token is itself a valid v2-style pair: a
// contract exposing getReserves/token0/token1/totalSupply all at once
// (spec §4.7: "A pool is valid iff ... all succeed.").
func (u *UniswapV2) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return u.cached(ctx, token, func(ctx context.Context) (bool, error) {
		_, _, _, _, err := u.probePair(ctx, token, new(big.Int).SetUint64(block))
		if err != nil {
			return matchNone(err)
		}
		return true, nil
	})
}

func (u *UniswapV2) probePair(ctx context.Context, pair common.Address, block *big.Int) (t0, t1 common.Address, r0, r1 *big.Int, err error) {
	if err = call(ctx, u.client, uniswapV2PairABI, pair, "token0", block, &t0); err != nil {
		return
	}
	if err = call(ctx, u.client, uniswapV2PairABI, pair, "token1", block, &t1); err != nil {
		return
	}
	vals, cerr := callValues(ctx, u.client, uniswapV2PairABI, pair, "getReserves", block)
	if cerr != nil {
		err = cerr
		return
	}
	r0 = vals[0].(*big.Int)
	r1 = vals[1].(*big.Int)
	if _, terr := u.erc20.TotalSupply(ctx, pair, block); terr != nil {
		err = terr
	}
	return
}

// Price prices an LP token as TVL/totalSupply (extrapolating from one
// priced side if the other can't be priced), or an arbitrary token by
// routing through its deepest known pool.
func (u *UniswapV2) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	t0, t1, r0, r1, err := u.probePair(ctx, token, new(big.Int).SetUint64(block))
	if err == nil {
		return u.priceLP(ctx, token, t0, t1, r0, r1, block, opts)
	}
	if !isExpectedRevert(err) {
		return decimal.Decimal{}, false, err
	}
	return u.priceViaDeepestPool(ctx, token, block, opts)
}

func (u *UniswapV2) priceLP(ctx context.Context, pair, t0, t1 common.Address, r0, r1 *big.Int, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	supply, err := u.erc20.TotalSupply(ctx, pair, new(big.Int).SetUint64(block))
	if err != nil || supply == nil || supply.Sign() == 0 {
		return notAKind(u.Name(), pair)
	}
	d0, err := u.erc20.Decimals(ctx, t0)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	d1, err := u.erc20.Decimals(ctx, t1)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	v0, found0, err := u.sideValue(ctx, t0, r0, d0, block, opts)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	v1, found1, err := u.sideValue(ctx, t1, r1, d1, block, opts)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	var tvl decimal.Decimal
	switch {
	case found0 && found1:
		tvl = v0.Add(v1)
	case found0:
		tvl = v0.Mul(decimal.NewFromInt(2))
	case found1:
		tvl = v1.Mul(decimal.NewFromInt(2))
	default:
		return decimal.Decimal{}, false, nil
	}
	supplyDec := decimal.NewFromBigInt(supply, 0).Div(decimal.New(1, 18))
	if supplyDec.IsZero() {
		return notAKind(u.Name(), pair)
	}
	return tvl.Div(supplyDec), true, nil
}

func (u *UniswapV2) sideValue(ctx context.Context, token common.Address, reserve *big.Int, decimals uint8, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	p, ok, err := u.router.GetPrice(ctx, token, block, opts)
	if err != nil || !ok {
		return decimal.Decimal{}, false, err
	}
	return scaleDown(reserve, decimals).Mul(p), true, nil
}

// priceViaDeepestPool routes an arbitrary token through the deepest known
// pool whose other side is priceable (spec §4.7).
func (u *UniswapV2) priceViaDeepestPool(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	candidates := u.poolsFor(token)
	var bestPrice decimal.Decimal
	var bestDepth decimal.Decimal
	found := false
	for _, p := range candidates {
		if opts.IgnorePools[p.pair] {
			continue
		}
		other := p.token0
		if other == token {
			other = p.token1
		}
		t0, t1, r0, r1, err := u.probePair(ctx, p.pair, new(big.Int).SetUint64(block))
		if err != nil {
			continue
		}
		reserveToken, reserveOther := r0, r1
		if t0 != token {
			reserveToken, reserveOther = r1, r0
		}
		_ = t1
		otherPrice, ok, err := u.router.GetPrice(ctx, other, block, opts)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		if !ok || reserveToken == nil || reserveToken.Sign() == 0 {
			continue
		}
		dOther, err := u.erc20.Decimals(ctx, other)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		dToken, err := u.erc20.Decimals(ctx, token)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		depth := scaleDown(reserveOther, dOther)
		tokPrice := scaleDown(reserveOther, dOther).Mul(otherPrice).Div(scaleDown(reserveToken, dToken))
		if !found || depth.GreaterThan(bestDepth) {
			bestDepth = depth
			bestPrice = tokPrice
			found = true
		}
	}
	return bestPrice, found, nil
}

// poolsFor returns the pools known to contain token, pulling any newly
// discovered PairCreated events out of each factory's Filter first.
func (u *UniswapV2) poolsFor(token common.Address) []univ2Pair {
	u.absorbDiscoveries()
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]univ2Pair(nil), u.pairs[token]...)
}

func (u *UniswapV2) absorbDiscoveries() {
	for i := range u.factories {
		f := &u.factories[i]
		if f.Discovery == nil {
			continue
		}
		rows, err := f.Discovery.ObjectsThru(context.Background(), 0, f.Discovery.Cursor())
		if err != nil {
			continue
		}
		u.indexRows(rows)
	}
}

func (u *UniswapV2) indexRows(rows []store.LogRow) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, row := range rows {
		p, err := decodePairCreated(row.Raw)
		if err != nil || u.seen[p.pair] {
			continue
		}
		u.seen[p.pair] = true
		u.pairs[p.token0] = append(u.pairs[p.token0], p)
		u.pairs[p.token1] = append(u.pairs[p.token1], p)
	}
}

// AddFactory registers a newly learned factory at runtime; spec §4.7
// calls this out as a user-addressable anomaly, since it usually means a
// fork deployed a new canonical factory.
func (u *UniswapV2) AddFactory(f UniswapV2Factory) {
	logger.Warn("uniswapv2: learned a new factory at runtime", "name", f.Name, "address", f.Address.Hex())
	u.mu.Lock()
	u.factories = append(u.factories, f)
	u.mu.Unlock()
}

// decodePairCreated extracts (token0, token1, pair) from a PairCreated
// log's raw JSON-encoded types.Log.
func decodePairCreated(raw []byte) (univ2Pair, error) {
	log, err := decodeLog(raw)
	if err != nil {
		return univ2Pair{}, err
	}
	if len(log.Topics) < 3 {
		return univ2Pair{}, errBadLog
	}
	vals, err := uniswapV2FactoryABI.Events["PairCreated"].Inputs.Unpack(log.Data)
	if err != nil || len(vals) == 0 {
		return univ2Pair{}, errBadLog
	}
	pair, _ := vals[0].(common.Address)
	return univ2Pair{
		token0: common.BytesToAddress(log.Topics[1].Bytes()),
		token1: common.BytesToAddress(log.Topics[2].Bytes()),
		pair:   pair,
	}, nil
}
