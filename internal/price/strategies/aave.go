package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

var aavePoolABI = mustABI(`[
	{"inputs":[],"name":"getReservesList","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"asset","type":"address"}],"name":"getReserveData","outputs":[
		{"components":[
			{"name":"configuration","type":"uint256"},
			{"name":"liquidityIndex","type":"uint128"},
			{"name":"variableBorrowIndex","type":"uint128"},
			{"name":"currentLiquidityRate","type":"uint128"},
			{"name":"currentVariableBorrowRate","type":"uint128"},
			{"name":"currentStableBorrowRate","type":"uint128"},
			{"name":"lastUpdateTimestamp","type":"uint40"},
			{"name":"id","type":"uint16"},
			{"name":"aTokenAddress","type":"address"},
			{"name":"stableDebtTokenAddress","type":"address"},
			{"name":"variableDebtTokenAddress","type":"address"},
			{"name":"interestRateStrategyAddress","type":"address"},
			{"name":"accruedToTreasury","type":"uint128"},
			{"name":"unbacked","type":"uint128"},
			{"name":"isolationModeTotalDebt","type":"uint128"}
		],"name":"","type":"tuple"}
	],"stateMutability":"view","type":"function"}
]`)

type aaveReserveData struct {
	ATokenAddress common.Address
}

// Aave prices aTokens as equal to their underlying's price, per-pool
// reserve data mapping aToken -> underlying (spec §4.7: "aToken price ≡
// underlying price").
type Aave struct {
	client     rpc.Client
	router     priceOracle
	pool       common.Address
	underlying map[common.Address]common.Address // aToken -> underlying
	listed     bool
}

// NewAave builds the strategy against one Aave Pool/LendingPool contract.
func NewAave(client rpc.Client, router priceOracle, pool common.Address) *Aave {
	return &Aave{client: client, router: router, pool: pool, underlying: map[common.Address]common.Address{}}
}

func (a *Aave) Name() string        { return "aave" }
func (a *Aave) Bucket() price.Bucket { return price.BucketATokenV2 }

func (a *Aave) ensureReserves(ctx context.Context, block uint64) error {
	if a.listed {
		return nil
	}
	bn := new(big.Int).SetUint64(block)
	var reserves []common.Address
	if err := call(ctx, a.client, aavePoolABI, a.pool, "getReservesList", bn, &reserves); err != nil {
		return err
	}
	for _, reserve := range reserves {
		var data aaveReserveData
		if err := call(ctx, a.client, aavePoolABI, a.pool, "getReserveData", bn, &data, reserve); err != nil {
			if isExpectedRevert(err) {
				continue
			}
			return err
		}
		if data.ATokenAddress != (common.Address{}) {
			a.underlying[data.ATokenAddress] = reserve
		}
	}
	a.listed = true
	return nil
}

func (a *Aave) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	if err := a.ensureReserves(ctx, block); err != nil {
		return matchNone(err)
	}
	_, ok := a.underlying[token]
	return ok, nil
}

func (a *Aave) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	if err := a.ensureReserves(ctx, block); err != nil {
		return decimal.Decimal{}, false, err
	}
	underlying, ok := a.underlying[token]
	if !ok {
		return notAKind(a.Name(), token)
	}
	return a.router.GetPrice(ctx, underlying, block, opts)
}
