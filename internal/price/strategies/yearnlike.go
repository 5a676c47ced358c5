package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

// yearnlikeUnderlyingMethods lists the underlying-token methods tried in order;
// different vault generations (v1 "token"/"getPricePerFullShare", v2
// "token"/"pricePerShare", v3 "asset"/"convertToAssets") expose different
// subsets (spec §4.7's "multi-method share-price/underlying probing").
var yearnlikeUnderlyingMethods = []string{"token", "asset", "want", "underlying"}

var yearnlikeABI = mustABI(`[
	{"inputs":[],"name":"token","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"asset","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"want","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"underlying","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getPricePerFullShare","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"pricePerShare","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"shares","type":"uint256"}],"name":"convertToAssets","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`)

// Yearnlike prices vault shares by probing each known underlying-asset
// method and each known share-price method in turn, and recursing the
// router into whichever underlying it found (spec §4.7).
type Yearnlike struct {
	matchCache
	client rpc.Client
	erc20  *ERC20
	router priceOracle
}

func NewYearnlike(client rpc.Client, erc20 *ERC20, router priceOracle) *Yearnlike {
	return &Yearnlike{matchCache: newMatchCache("yearnlike"), client: client, erc20: erc20, router: router}
}

func (y *Yearnlike) Name() string        { return "yearn-like" }
func (y *Yearnlike) Bucket() price.Bucket { return price.BucketYearnLike }

func (y *Yearnlike) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return y.cached(ctx, token, func(ctx context.Context) (bool, error) {
		bn := new(big.Int).SetUint64(block)
		_, err := y.underlyingOf(ctx, token, bn)
		if err != nil {
			return matchNone(err)
		}
		return true, nil
	})
}

func (y *Yearnlike) underlyingOf(ctx context.Context, vault common.Address, block *big.Int) (common.Address, error) {
	for _, method := range yearnlikeUnderlyingMethods {
		var underlying common.Address
		if err := call(ctx, y.client, yearnlikeABI, vault, method, block, &underlying); err != nil {
			if isExpectedRevert(err) {
				continue
			}
			return common.Address{}, err
		}
		if underlying != (common.Address{}) {
			return underlying, nil
		}
	}
	return common.Address{}, errNoUnderlyingMethod
}

func (y *Yearnlike) Price(ctx context.Context, vault common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	bn := new(big.Int).SetUint64(block)
	underlying, err := y.underlyingOf(ctx, vault, bn)
	if err != nil {
		return noneIfRevert(err)
	}
	underlyingPrice, ok, err := y.router.GetPrice(ctx, underlying, block, opts)
	if err != nil || !ok {
		return decimal.Decimal{}, false, err
	}

	vaultDecimals, err := y.erc20.Decimals(ctx, vault)
	if err != nil {
		return decimal.Decimal{}, false, err
	}

	rate, err := y.shareRate(ctx, vault, bn, vaultDecimals)
	if err != nil {
		if isExpectedRevert(err) {
			return notAKind(y.Name(), vault)
		}
		return decimal.Decimal{}, false, err
	}
	return underlyingPrice.Mul(rate), true, nil
}

// shareRate tries each known share-price method, returning the conversion
// factor one full share scales to in underlying-asset terms.
func (y *Yearnlike) shareRate(ctx context.Context, vault common.Address, block *big.Int, vaultDecimals uint8) (decimal.Decimal, error) {
	var raw *big.Int
	err := call(ctx, y.client, yearnlikeABI, vault, "pricePerShare", block, &raw)
	if err == nil && raw != nil {
		return scaleDown(raw, vaultDecimals), nil
	}
	if err != nil && !isExpectedRevert(err) {
		return decimal.Decimal{}, err
	}

	err = call(ctx, y.client, yearnlikeABI, vault, "getPricePerFullShare", block, &raw)
	if err == nil && raw != nil {
		return scaleDown(raw, vaultDecimals), nil
	}
	if err != nil && !isExpectedRevert(err) {
		return decimal.Decimal{}, err
	}

	oneShare := decimal.New(1, int32(vaultDecimals)).BigInt()
	err = call(ctx, y.client, yearnlikeABI, vault, "convertToAssets", block, &raw, oneShare)
	if err == nil && raw != nil {
		return scaleDown(raw, vaultDecimals), nil
	}
	if err != nil && !isExpectedRevert(err) {
		return decimal.Decimal{}, err
	}
	return decimal.Decimal{}, errNoShareRateMethod
}

var errNoUnderlyingMethod = newStrategyError("no known underlying-asset method succeeded")
var errNoShareRateMethod = newStrategyError("no known share-price method succeeded")
