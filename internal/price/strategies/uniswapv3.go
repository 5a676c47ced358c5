package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

var uniswapV3QuoterABI = mustABI(`[
	{"inputs":[{"name":"path","type":"bytes"},{"name":"amountIn","type":"uint256"}],"name":"quoteExactInput","outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`)

var uniswapV3FactoryABI = mustABI(`[
	{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
]`)

// UniswapV3Config names the fixed contracts and output-denominated token a
// chain's v3 deployment (or fork) quotes against.
type UniswapV3Config struct {
	Quoter     common.Address
	Factory    common.Address
	USDC       common.Address
	USDCDigits uint8
	WETH       common.Address
	FeeTiers   []uint32 // e.g. 100, 500, 3000, 10000
	DefaultFee uint32   // used for the WETH-USDC leg of the two-hop path
}

// UniswapV3 prices a token by quoting quoteExactInput along a short
// candidate-path list and keeping the best (max) quote, "undoing the
// compounded fee" only in the sense that more liquid paths naturally
// yield a less fee-eroded quote (spec §4.7).
type UniswapV3 struct {
	matchCache
	client rpc.Client
	erc20  *ERC20
	cfg    UniswapV3Config
}

// NewUniswapV3 builds the Uniswap-v3-family strategy (and its clones:
// same ABI shape, different Quoter/Factory addresses per cfg).
func NewUniswapV3(client rpc.Client, erc20 *ERC20, cfg UniswapV3Config) *UniswapV3 {
	return &UniswapV3{matchCache: newMatchCache("uniswapv3"), client: client, erc20: erc20, cfg: cfg}
}

func (u *UniswapV3) Name() string        { return "uniswap-v3" }
func (u *UniswapV3) Bucket() price.Bucket { return price.BucketUniV3LP }

// Matches reports whether any configured fee tier has a deployed pool for
// (token, USDC) or (token, WETH).
func (u *UniswapV3) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return u.cached(ctx, token, func(ctx context.Context) (bool, error) {
		bn := new(big.Int).SetUint64(block)
		for _, fee := range u.cfg.FeeTiers {
			for _, quote := range [...]common.Address{u.cfg.USDC, u.cfg.WETH} {
				var pool common.Address
				if err := call(ctx, u.client, uniswapV3FactoryABI, u.cfg.Factory, "getPool", bn, &pool, token, quote, big.NewInt(int64(fee))); err != nil {
					if isExpectedRevert(err) {
						continue
					}
					return false, err
				}
				if pool != (common.Address{}) {
					return true, nil
				}
			}
		}
		return false, nil
	})
}

// Price quotes every candidate path and keeps the best (highest) USDC-out
// quote, per spec §4.7's "best (max) quote wins".
func (u *UniswapV3) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	tokenDecimals, err := u.erc20.Decimals(ctx, token)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	amountIn := decimal.New(1, int32(tokenDecimals)).BigInt()
	bn := new(big.Int).SetUint64(block)

	var best *big.Int
	for _, fee := range u.cfg.FeeTiers {
		for _, path := range u.candidatePaths(token, fee) {
			out, err := u.quote(ctx, path, amountIn, bn)
			if err != nil {
				if isExpectedRevert(err) {
					continue
				}
				return decimal.Decimal{}, false, err
			}
			if out == nil || out.Sign() == 0 {
				continue
			}
			if best == nil || out.Cmp(best) > 0 {
				best = out
			}
		}
	}
	if best == nil {
		return notAKind(u.Name(), token)
	}
	return scaleDown(best, u.cfg.USDCDigits), true, nil
}

// candidatePaths builds [token, fee, USDC] and [token, fee, WETH,
// feeDefault, USDC] for the given fee tier.
func (u *UniswapV3) candidatePaths(token common.Address, fee uint32) [][]pathLeg {
	direct := []pathLeg{{token, fee}, {u.cfg.USDC, 0}}
	viaWETH := []pathLeg{{token, fee}, {u.cfg.WETH, u.cfg.DefaultFee}, {u.cfg.USDC, 0}}
	return [][]pathLeg{direct, viaWETH}
}

type pathLeg struct {
	token common.Address
	fee   uint32
}

// quote packs path into the V3 path-encoding (20-byte address, 3-byte fee,
// repeating) and calls quoteExactInput.
func (u *UniswapV3) quote(ctx context.Context, legs []pathLeg, amountIn, block *big.Int) (*big.Int, error) {
	path := make([]byte, 0, len(legs)*23-3)
	for i, leg := range legs {
		path = append(path, leg.token.Bytes()...)
		if i < len(legs)-1 {
			feeBytes := []byte{byte(legs[i].fee >> 16), byte(legs[i].fee >> 8), byte(legs[i].fee)}
			path = append(path, feeBytes...)
		}
	}
	var out *big.Int
	if err := call(ctx, u.client, uniswapV3QuoterABI, u.cfg.Quoter, "quoteExactInput", block, &out, path, amountIn); err != nil {
		return nil, err
	}
	return out, nil
}
