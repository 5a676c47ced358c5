package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

// nAssetLPKind is one of the lookalike "sum of priced balances over
// supply" LP families spec §4.7 groups together: gelato, popsicle,
// mstable-feeder, saddle, belt, ellipsis, froyo, basketdao, solidex,
// stargate, and the vbToken solvency-bounded variant.
type nAssetLPKind struct {
	bucket price.Bucket
	name   string

	// probe returns each underlying token and its pool balance;
	// different families expose this differently (an explicit
	// getTokenBalances() array, or per-index token(i)/balances(i)
	// probes), but every probe function returns the same pair of slices.
	probe func(ctx context.Context, n *NAssetLP, pool common.Address, block *big.Int) ([]common.Address, []*big.Int, error)

	// vbTokenGuard, when true, applies the [0.9995, 1.01] solvency guard
	// spec §4.7 calls out for the vbToken family specifically: an LP price
	// outside that band is rejected with ErrNotAKind, not clamped.
	vbTokenGuard bool
}

var (
	vbTokenLowerBound = decimal.NewFromFloat(0.9995)
	vbTokenUpperBound = decimal.NewFromFloat(1.01)
)

var nAssetLPTupleABI = mustABI(`[
	{"inputs":[],"name":"getTokens","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getBalances","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`)

var nAssetLPIndexedABI = mustABI(`[
	{"inputs":[{"name":"i","type":"uint256"}],"name":"getToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"i","type":"uint256"}],"name":"getTokenBalance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// tupleProbe covers families that expose one getTokens()/getBalances()
// pair: Gelato, Popsicle, Saddle, Stargate's pool view, BasketDAO.
func tupleProbe(ctx context.Context, n *NAssetLP, pool common.Address, block *big.Int) ([]common.Address, []*big.Int, error) {
	var tokens []common.Address
	if err := call(ctx, n.client, nAssetLPTupleABI, pool, "getTokens", block, &tokens); err != nil {
		return nil, nil, err
	}
	var balances []*big.Int
	if err := call(ctx, n.client, nAssetLPTupleABI, pool, "getBalances", block, &balances); err != nil {
		return nil, nil, err
	}
	return tokens, balances, nil
}

// indexedProbe covers families with no bulk accessor (mStable feeder
// pools, Belt, Ellipsis, Froyo, Solidex, vbToken): probe getToken(i)/
// getTokenBalance(i) until the first revert.
func indexedProbe(ctx context.Context, n *NAssetLP, pool common.Address, block *big.Int) ([]common.Address, []*big.Int, error) {
	var tokens []common.Address
	var balances []*big.Int
	for i := 0; i < 8; i++ {
		var token common.Address
		if err := call(ctx, n.client, nAssetLPIndexedABI, pool, "getToken", block, &token, big.NewInt(int64(i))); err != nil {
			if isExpectedRevert(err) {
				break
			}
			return nil, nil, err
		}
		var bal *big.Int
		if err := call(ctx, n.client, nAssetLPIndexedABI, pool, "getTokenBalance", block, &bal, big.NewInt(int64(i))); err != nil {
			if isExpectedRevert(err) {
				break
			}
			return nil, nil, err
		}
		tokens = append(tokens, token)
		balances = append(balances, bal)
	}
	return tokens, balances, nil
}

// Kinds lists the generic nAssetLP families spec §4.7 names, each backed
// by one of the two balance-probe shapes above.
var (
	KindGelato      = nAssetLPKind{bucket: price.BucketGelatoLP, name: "gelato", probe: tupleProbe}
	KindPopsicle    = nAssetLPKind{bucket: price.BucketPopsicleLP, name: "popsicle", probe: tupleProbe}
	KindMStable     = nAssetLPKind{bucket: price.BucketMStableFeeder, name: "mstable-feeder", probe: indexedProbe}
	KindSaddle      = nAssetLPKind{bucket: price.BucketSaddleLP, name: "saddle", probe: tupleProbe}
	KindBelt        = nAssetLPKind{bucket: price.BucketBeltLP, name: "belt", probe: indexedProbe}
	KindEllipsis    = nAssetLPKind{bucket: price.BucketEllipsisLP, name: "ellipsis", probe: indexedProbe}
	KindFroyo       = nAssetLPKind{bucket: price.BucketBasketIndex, name: "froyo", probe: indexedProbe}
	KindBasketDAO   = nAssetLPKind{bucket: price.BucketBasketIndex, name: "basketdao", probe: tupleProbe}
	KindSolidex     = nAssetLPKind{bucket: price.BucketSolidex, name: "solidex", probe: indexedProbe}
	KindStargate    = nAssetLPKind{bucket: price.BucketStargateLP, name: "stargate", probe: tupleProbe}
	KindVBToken     = nAssetLPKind{bucket: price.BucketVBToken, name: "vb-token", probe: indexedProbe, vbTokenGuard: true}
)

// NAssetLP is the generic "Σ priced_balance_i / totalSupply" adapter
// spec §4.7 reuses across the gelato/popsicle/mstable-feeder/saddle/belt/
// ellipsis/froyo/basketdao/solidex/stargate/vbToken lookalikes.
type NAssetLP struct {
	matchCache
	client rpc.Client
	erc20  *ERC20
	router priceOracle
	kind   nAssetLPKind
}

// NewNAssetLP builds one generic nAssetLP strategy instance for kind;
// wire one instance per family (NewNAssetLP(client, erc20, router,
// KindGelato), etc) into the Bucketer/fallback chain.
func NewNAssetLP(client rpc.Client, erc20 *ERC20, router priceOracle, kind nAssetLPKind) *NAssetLP {
	return &NAssetLP{matchCache: newMatchCache(kind.name), client: client, erc20: erc20, router: router, kind: kind}
}

func (n *NAssetLP) Name() string        { return n.kind.name }
func (n *NAssetLP) Bucket() price.Bucket { return n.kind.bucket }

func (n *NAssetLP) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return n.cached(ctx, token, func(ctx context.Context) (bool, error) {
		tokens, balances, err := n.kind.probe(ctx, n, token, new(big.Int).SetUint64(block))
		if err != nil {
			return matchNone(err)
		}
		return len(tokens) > 0 && len(tokens) == len(balances), nil
	})
}

func (n *NAssetLP) Price(ctx context.Context, pool common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	bn := new(big.Int).SetUint64(block)
	tokens, balances, err := n.kind.probe(ctx, n, pool, bn)
	if err != nil {
		return noneIfRevert(err)
	}
	if len(tokens) == 0 || len(tokens) != len(balances) {
		return notAKind(n.Name(), pool)
	}
	supply, err := n.erc20.TotalSupply(ctx, pool, bn)
	if err != nil || supply == nil || supply.Sign() == 0 {
		return notAKind(n.Name(), pool)
	}

	var tvl decimal.Decimal
	priced := 0
	for i, underlying := range tokens {
		if opts.IgnorePools[underlying] {
			continue
		}
		decimals, err := n.erc20.Decimals(ctx, underlying)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		p, ok, err := n.router.GetPrice(ctx, underlying, block, opts)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		if !ok {
			continue
		}
		priced++
		tvl = tvl.Add(scaleDown(balances[i], decimals).Mul(p))
	}
	if priced == 0 {
		return notAKind(n.Name(), pool)
	}
	supplyDec := decimal.NewFromBigInt(supply, 0).Div(decimal.New(1, 18))
	if supplyDec.IsZero() {
		return notAKind(n.Name(), pool)
	}
	lpPrice := tvl.Div(supplyDec)

	if n.kind.vbTokenGuard {
		if lpPrice.LessThan(vbTokenLowerBound) || lpPrice.GreaterThan(vbTokenUpperBound) {
			logger.Warn("vbtoken: price outside solvency bounds, rejecting", "token", pool.Hex(), "price", lpPrice.String())
			return notAKind(n.Name(), pool)
		}
	}
	return lpPrice, true, nil
}
