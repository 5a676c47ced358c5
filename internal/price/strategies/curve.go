package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

var curveRegistryABI = mustABI(`[
	{"inputs":[{"name":"_pool","type":"address"}],"name":"get_n_coins","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_pool","type":"address"}],"name":"get_coins","outputs":[{"name":"","type":"address[8]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_pool","type":"address"}],"name":"get_balances","outputs":[{"name":"","type":"uint256[8]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_pool","type":"address"}],"name":"get_lp_token","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_token","type":"address"}],"name":"get_pool_from_lp_token","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`)

var curvePoolABI = mustABI(`[
	{"inputs":[{"name":"i","type":"uint256"}],"name":"coins","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"i","type":"uint256"}],"name":"balances","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"get_virtual_price","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"i","type":"uint256"}],"name":"price_oracle","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// basicTokenSymbols are the symbols of the well-priced tokens spec §4.7
// says are "used to break pricing cycles": a pool containing one of these
// prices through it first rather than attempting every coin.
var basicTokenSymbols = map[string]bool{"DAI": true, "WBTC": true, "WETH": true, "USDC": true, "USDT": true}

// Curve prices LP tokens as Σ balance_i * price_i / totalSupply. For
// "crypto" pools that expose price_oracle, that oracle path is tried
// first, and the Σ path is used when it is absent (spec §4.7).
type Curve struct {
	matchCache
	client   rpc.Client
	erc20    *ERC20
	router   priceOracle
	registry common.Address

	lpToPool map[common.Address]common.Address
}

// NewCurve builds the Curve strategy against a single address-provider
// registry contract; lpToPool seeds pool discovery (runtime wiring walks
// the registry's pool-added events and AddressProvider contract to fill
// this map; Matches/Price also fall back to the registry's own
// get_pool_from_lp_token for tokens not yet indexed).
func NewCurve(client rpc.Client, erc20 *ERC20, router priceOracle, registry common.Address, lpToPool map[common.Address]common.Address) *Curve {
	if lpToPool == nil {
		lpToPool = map[common.Address]common.Address{}
	}
	return &Curve{matchCache: newMatchCache("curve"), client: client, erc20: erc20, router: router, registry: registry, lpToPool: lpToPool}
}

func (c *Curve) Name() string        { return "curve" }
func (c *Curve) Bucket() price.Bucket { return price.BucketCurveLP }

func (c *Curve) poolFor(ctx context.Context, token common.Address, block *big.Int) (common.Address, error) {
	if pool, ok := c.lpToPool[token]; ok {
		return pool, nil
	}
	var pool common.Address
	if err := call(ctx, c.client, curveRegistryABI, c.registry, "get_pool_from_lp_token", block, &pool, token); err != nil {
		return common.Address{}, err
	}
	if pool != (common.Address{}) {
		c.lpToPool[token] = pool
	}
	return pool, nil
}

func (c *Curve) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return c.cached(ctx, token, func(ctx context.Context) (bool, error) {
		pool, err := c.poolFor(ctx, token, new(big.Int).SetUint64(block))
		if err != nil {
			return matchNone(err)
		}
		return pool != (common.Address{}), nil
	})
}

func (c *Curve) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	bn := new(big.Int).SetUint64(block)
	pool, err := c.poolFor(ctx, token, bn)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if pool == (common.Address{}) {
		return notAKind(c.Name(), token)
	}

	coins, balances, err := c.coinsAndBalances(ctx, pool, bn)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if err := c.anchorOnBasicToken(ctx, coins, balances); err != nil {
		return decimal.Decimal{}, false, err
	}
	supply, err := c.erc20.TotalSupply(ctx, token, bn)
	if err != nil || supply == nil || supply.Sign() == 0 {
		return notAKind(c.Name(), token)
	}

	// Crypto pools (non-stable, single dominant asset) expose a direct
	// price_oracle per non-base coin; prefer it when present.
	if oraclePrice, ok, err := c.tryPriceOracle(ctx, pool, coins, balances, bn, opts); err != nil {
		return decimal.Decimal{}, false, err
	} else if ok {
		supplyDec := decimal.NewFromBigInt(supply, 0).Div(decimal.New(1, 18))
		return oraclePrice.Div(supplyDec), true, nil
	}

	var tvl decimal.Decimal
	for i, coin := range coins {
		if coin == (common.Address{}) {
			continue
		}
		decimals, err := c.erc20.Decimals(ctx, coin)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		coinPrice, ok, err := c.router.GetPrice(ctx, coin, block, opts)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		if !ok {
			continue
		}
		tvl = tvl.Add(scaleDown(balances[i], decimals).Mul(coinPrice))
	}
	if tvl.IsZero() {
		return notAKind(c.Name(), token)
	}
	supplyDec := decimal.NewFromBigInt(supply, 0).Div(decimal.New(1, 18))
	return tvl.Div(supplyDec), true, nil
}

func (c *Curve) coinsAndBalances(ctx context.Context, pool common.Address, block *big.Int) ([]common.Address, []*big.Int, error) {
	var coins []common.Address
	var balances []*big.Int
	if err := call(ctx, c.client, curveRegistryABI, c.registry, "get_coins", block, &coins, pool); err == nil {
		_ = call(ctx, c.client, curveRegistryABI, c.registry, "get_balances", block, &balances, pool)
	}
	if len(coins) > 0 && len(balances) > 0 {
		return coins, balances, nil
	}
	// Registry doesn't know this pool; fall back to direct coins(i)/
	// balances(i) probes, stopping at the first revert (spec §4.7).
	coins, balances = nil, nil
	for i := 0; i < 8; i++ {
		var coin common.Address
		if err := call(ctx, c.client, curvePoolABI, pool, "coins", block, &coin, big.NewInt(int64(i))); err != nil {
			if isExpectedRevert(err) {
				break
			}
			return nil, nil, err
		}
		var bal *big.Int
		if err := call(ctx, c.client, curvePoolABI, pool, "balances", block, &bal, big.NewInt(int64(i))); err != nil {
			if isExpectedRevert(err) {
				break
			}
			return nil, nil, err
		}
		coins = append(coins, coin)
		balances = append(balances, bal)
	}
	return coins, balances, nil
}

// anchorOnBasicToken swaps a known basic token (DAI/WBTC/WETH/USDC/USDT)
// into coins[0] when present, so tryPriceOracle's base-asset anchor is a
// token the router can always price, breaking pricing cycles for pools
// whose nominal index-0 coin is itself a Curve LP (spec §4.7).
func (c *Curve) anchorOnBasicToken(ctx context.Context, coins []common.Address, balances []*big.Int) error {
	if len(coins) == 0 {
		return nil
	}
	for i := range coins {
		symbol, err := c.erc20.Symbol(ctx, coins[i])
		if err != nil {
			if isExpectedRevert(err) {
				continue
			}
			return err
		}
		if basicTokenSymbols[symbol] {
			coins[0], coins[i] = coins[i], coins[0]
			balances[0], balances[i] = balances[i], balances[0]
			return nil
		}
	}
	return nil
}

// tryPriceOracle consults price_oracle(i-1) for each non-base coin i; present
// on Curve "crypto" pools (tricrypto, etc) per spec §4.7.
func (c *Curve) tryPriceOracle(ctx context.Context, pool common.Address, coins []common.Address, balances []*big.Int, block *big.Int, opts price.Options) (decimal.Decimal, bool, error) {
	if len(coins) == 0 {
		return decimal.Decimal{}, false, nil
	}
	baseDecimals, err := c.erc20.Decimals(ctx, coins[0])
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	basePrice, ok, err := c.router.GetPrice(ctx, coins[0], block.Uint64(), opts)
	if err != nil || !ok {
		return decimal.Decimal{}, false, err
	}
	tvl := scaleDown(balances[0], baseDecimals).Mul(basePrice)
	found := false
	for i := 1; i < len(coins); i++ {
		var oracle *big.Int
		if err := call(ctx, c.client, curvePoolABI, pool, "price_oracle", block, &oracle, big.NewInt(int64(i-1))); err != nil {
			if isExpectedRevert(err) {
				return decimal.Decimal{}, false, nil
			}
			return decimal.Decimal{}, false, err
		}
		found = true
		relPrice := scaleDown(oracle, 18).Mul(basePrice)
		decimals, err := c.erc20.Decimals(ctx, coins[i])
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		tvl = tvl.Add(scaleDown(balances[i], decimals).Mul(relPrice))
	}
	return tvl, found, nil
}
