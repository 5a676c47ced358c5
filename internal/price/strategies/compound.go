package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

var comptrollerABI = mustABI(`[
	{"inputs":[],"name":"getAllMarkets","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"oracle","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`)

var cTokenABI = mustABI(`[
	{"inputs":[],"name":"underlying","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"exchangeRateStored","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`)

var compoundOracleABI = mustABI(`[
	{"inputs":[{"name":"cToken","type":"address"}],"name":"getUnderlyingPrice","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// exchangeRateDigits is the fixed 1e18 scale Compound-family
// exchangeRateStored is always quoted in, regardless of cToken/underlying
// decimals.
const exchangeRateDigits = 18

// Compound prices cTokens (and forks: Cream, Ironbank, ...) by enumerating
// a comptroller's markets once and scaling exchangeRateStored, preferring
// the protocol's own price oracle over pricing the underlying (spec
// §4.7).
type Compound struct {
	client       rpc.Client
	erc20        *ERC20
	router       priceOracle
	comptroller  common.Address
	markets      map[common.Address]bool
	marketsKnown bool
}

// NewCompound builds the strategy against one comptroller; markets are
// enumerated lazily on first Matches/Price call and cached for the
// process lifetime (a comptroller's market list only grows).
func NewCompound(client rpc.Client, erc20 *ERC20, router priceOracle, comptroller common.Address) *Compound {
	return &Compound{client: client, erc20: erc20, router: router, comptroller: comptroller, markets: map[common.Address]bool{}}
}

func (c *Compound) Name() string        { return "compound" }
func (c *Compound) Bucket() price.Bucket { return price.BucketCToken }

func (c *Compound) ensureMarkets(ctx context.Context, block uint64) error {
	if c.marketsKnown {
		return nil
	}
	var markets []common.Address
	if err := call(ctx, c.client, comptrollerABI, c.comptroller, "getAllMarkets", new(big.Int).SetUint64(block), &markets); err != nil {
		return err
	}
	for _, m := range markets {
		c.markets[m] = true
	}
	c.marketsKnown = true
	return nil
}

func (c *Compound) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	if err := c.ensureMarkets(ctx, block); err != nil {
		return matchNone(err)
	}
	return c.markets[token], nil
}

func (c *Compound) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	if err := c.ensureMarkets(ctx, block); err != nil {
		return decimal.Decimal{}, false, err
	}
	if !c.markets[token] {
		return notAKind(c.Name(), token)
	}
	bn := new(big.Int).SetUint64(block)

	if oracle, err := c.protocolOracle(ctx, bn); err == nil && oracle != (common.Address{}) {
		var raw *big.Int
		if err := call(ctx, c.client, compoundOracleABI, oracle, "getUnderlyingPrice", bn, &raw, token); err == nil && raw != nil && raw.Sign() > 0 {
			underlyingDecimals, err := c.underlyingDecimals(ctx, token, bn)
			if err != nil {
				return decimal.Decimal{}, false, err
			}
			// getUnderlyingPrice is scaled by 10^(36 - underlyingDecimals).
			underlyingPrice := scaleDownExp(raw, 36-int32(underlyingDecimals))
			return c.applyExchangeRate(ctx, token, underlyingPrice, bn)
		}
	}

	underlying, err := c.underlyingOf(ctx, token, bn)
	if err != nil {
		return noneIfRevert(err)
	}
	underlyingPrice, ok, err := c.router.GetPrice(ctx, underlying, block, opts)
	if err != nil || !ok {
		return decimal.Decimal{}, false, err
	}
	return c.applyExchangeRate(ctx, token, underlyingPrice, bn)
}

func (c *Compound) protocolOracle(ctx context.Context, block *big.Int) (common.Address, error) {
	var oracle common.Address
	err := call(ctx, c.client, comptrollerABI, c.comptroller, "oracle", block, &oracle)
	return oracle, err
}

func (c *Compound) underlyingOf(ctx context.Context, cToken common.Address, block *big.Int) (common.Address, error) {
	var underlying common.Address
	err := call(ctx, c.client, cTokenABI, cToken, "underlying", block, &underlying)
	return underlying, err
}

func (c *Compound) underlyingDecimals(ctx context.Context, cToken common.Address, block *big.Int) (uint8, error) {
	underlying, err := c.underlyingOf(ctx, cToken, block)
	if err != nil {
		return 0, err
	}
	return c.erc20.Decimals(ctx, underlying)
}

// applyExchangeRate scales underlyingPrice by exchangeRate *
// 10^(cDecimals - underlyingDecimals), per spec §4.7.
func (c *Compound) applyExchangeRate(ctx context.Context, cToken common.Address, underlyingPrice decimal.Decimal, block *big.Int) (decimal.Decimal, bool, error) {
	var rate *big.Int
	if err := call(ctx, c.client, cTokenABI, cToken, "exchangeRateStored", block, &rate); err != nil {
		return noneIfRevert(err)
	}
	cDecimals, err := c.erc20.Decimals(ctx, cToken)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	underlyingDecimals, err := c.underlyingDecimals(ctx, cToken, block)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	exchangeRate := scaleDownExp(rate, int32(exchangeRateDigits)+int32(underlyingDecimals)-int32(cDecimals))
	return underlyingPrice.Mul(exchangeRate), true, nil
}
