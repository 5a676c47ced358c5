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

var balancerV1PoolABI = mustABI(`[
	{"inputs":[],"name":"getCurrentTokens","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"token","type":"address"}],"name":"getBalance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// BalancerV1 sums priced token balances over supply across a pool's
// `getCurrentTokens` set (spec §4.7).
type BalancerV1 struct {
	matchCache
	client rpc.Client
	erc20  *ERC20
	router priceOracle
}

func NewBalancerV1(client rpc.Client, erc20 *ERC20, router priceOracle) *BalancerV1 {
	return &BalancerV1{matchCache: newMatchCache("balancer-v1"), client: client, erc20: erc20, router: router}
}

func (b *BalancerV1) Name() string        { return "balancer-v1" }
func (b *BalancerV1) Bucket() price.Bucket { return price.BucketBalancerLP }

func (b *BalancerV1) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return b.cached(ctx, token, func(ctx context.Context) (bool, error) {
		var tokens []common.Address
		if err := call(ctx, b.client, balancerV1PoolABI, token, "getCurrentTokens", new(big.Int).SetUint64(block), &tokens); err != nil {
			return matchNone(err)
		}
		return len(tokens) > 0, nil
	})
}

func (b *BalancerV1) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	bn := new(big.Int).SetUint64(block)
	var tokens []common.Address
	if err := call(ctx, b.client, balancerV1PoolABI, token, "getCurrentTokens", bn, &tokens); err != nil {
		return noneIfRevert(err)
	}
	supply, err := b.erc20.TotalSupply(ctx, token, bn)
	if err != nil || supply == nil || supply.Sign() == 0 {
		return notAKind(b.Name(), token)
	}
	var tvl decimal.Decimal
	for _, underlying := range tokens {
		var bal *big.Int
		if err := call(ctx, b.client, balancerV1PoolABI, token, "getBalance", bn, &bal, underlying); err != nil {
			if isExpectedRevert(err) {
				continue
			}
			return decimal.Decimal{}, false, err
		}
		decimals, err := b.erc20.Decimals(ctx, underlying)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		p, ok, err := b.router.GetPrice(ctx, underlying, block, opts)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		if !ok {
			continue
		}
		tvl = tvl.Add(scaleDown(bal, decimals).Mul(p))
	}
	if tvl.IsZero() {
		return notAKind(b.Name(), token)
	}
	supplyDec := decimal.NewFromBigInt(supply, 0).Div(decimal.New(1, 18))
	return tvl.Div(supplyDec), true, nil
}

var balancerV2VaultABI = mustABI(`[
	{"inputs":[{"name":"poolId","type":"bytes32"}],"name":"getPoolTokens","outputs":[{"name":"tokens","type":"address[]"},{"name":"balances","type":"uint256[]"},{"name":"lastChangeBlock","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

var balancerV2PoolABI = mustABI(`[
	{"inputs":[],"name":"getPoolId","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getNormalizedWeights","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`)

// BalancerV2Pool is one pool known to the Vault, discovered from its
// PoolCreated Filter (spec §4.7).
type BalancerV2Pool struct {
	ID      [32]byte
	Address common.Address
}

// BalancerV2 prices pool BPTs from the Vault's getPoolTokens balances.
// It does not price a token inside a pool, and pool weights are not read.
type BalancerV2 struct {
	matchCache
	client    rpc.Client
	erc20     *ERC20
	router    priceOracle
	vault     common.Address
	discovery *filter.LogFilter

	poolByToken map[common.Address]BalancerV2Pool
}

// NewBalancerV2 builds the strategy against one Vault; discovery, when
// non-nil, is a running Filter over the Vault's PoolCreated log.
func NewBalancerV2(client rpc.Client, erc20 *ERC20, router priceOracle, vault common.Address, discovery *filter.LogFilter) *BalancerV2 {
	return &BalancerV2{
		matchCache:  newMatchCache("balancer-v2"),
		client:      client,
		erc20:       erc20,
		router:      router,
		vault:       vault,
		discovery:   discovery,
		poolByToken: map[common.Address]BalancerV2Pool{},
	}
}

func (b *BalancerV2) Name() string        { return "balancer-v2" }
func (b *BalancerV2) Bucket() price.Bucket { return price.BucketBalancerLP }

func (b *BalancerV2) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return b.cached(ctx, token, func(ctx context.Context) (bool, error) {
		var poolID [32]byte
		if err := call(ctx, b.client, balancerV2PoolABI, token, "getPoolId", new(big.Int).SetUint64(block), &poolID); err != nil {
			return matchNone(err)
		}
		b.absorbDiscoveries()
		b.poolByToken[token] = BalancerV2Pool{ID: poolID, Address: token}
		return true, nil
	})
}

func (b *BalancerV2) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	bn := new(big.Int).SetUint64(block)
	pool, ok := b.poolByToken[token]
	if !ok {
		var poolID [32]byte
		if err := call(ctx, b.client, balancerV2PoolABI, token, "getPoolId", bn, &poolID); err != nil {
			return noneIfRevert(err)
		}
		pool = BalancerV2Pool{ID: poolID, Address: token}
	}

	vals, err := callValues(ctx, b.client, balancerV2VaultABI, b.vault, "getPoolTokens", bn, pool.ID)
	if err != nil {
		return noneIfRevert(err)
	}
	tokens := vals[0].([]common.Address)
	balances := vals[1].([]*big.Int)

	supply, err := b.erc20.TotalSupply(ctx, token, bn)
	if err != nil || supply == nil || supply.Sign() == 0 {
		return notAKind(b.Name(), token)
	}

	var tvl decimal.Decimal
	priced := 0
	for i, underlying := range tokens {
		if underlying == token {
			continue // pre-minted BPT counted among its own pool's tokens
		}
		decimals, err := b.erc20.Decimals(ctx, underlying)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		p, ok, err := b.router.GetPrice(ctx, underlying, block, opts)
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
		return notAKind(b.Name(), token)
	}
	supplyDec := decimal.NewFromBigInt(supply, 0).Div(decimal.New(1, 18))
	return tvl.Div(supplyDec), true, nil
}

func (b *BalancerV2) absorbDiscoveries() {
	if b.discovery == nil {
		return
	}
	rows, err := b.discovery.ObjectsThru(context.Background(), 0, b.discovery.Cursor())
	if err != nil {
		return
	}
	for _, row := range rows {
		pool, err := decodeBalancerPoolCreated(row.Raw)
		if err != nil {
			continue
		}
		b.poolByToken[pool.Address] = pool
	}
}

var balancerV2FactoryABI = mustABI(`[
	{"anonymous":false,"inputs":[{"indexed":false,"name":"pool","type":"address"}],"name":"PoolCreated","type":"event"}
]`)

func decodeBalancerPoolCreated(raw []byte) (BalancerV2Pool, error) {
	log, err := decodeLog(raw)
	if err != nil {
		return BalancerV2Pool{}, err
	}
	vals, err := balancerV2FactoryABI.Events["PoolCreated"].Inputs.Unpack(log.Data)
	if err != nil || len(vals) == 0 {
		return BalancerV2Pool{}, errBadLog
	}
	addr, _ := vals[0].(common.Address)
	return BalancerV2Pool{Address: addr}, nil
}
