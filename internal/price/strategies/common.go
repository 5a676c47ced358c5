// Package strategies implements the per-bucket-family Strategy adapters of
// spec §4.7: ERC-20 probes, AMM LP pricing (Uniswap v2/v3, Curve,
// Balancer), oracle feeds (Chainlink, Band, Synthetix), money-market
// wrappers (Compound, Aave, yearn-like), and the generic "priced balances
// over total supply" LP family.
//
// Every adapter is built from the same two primitives: a cached Matches
// probe and a Price computation that calls through an rpc.Client and
// converts expected revert shapes into (zero, false, nil) rather than an
// error, so the Router can fall through to the next strategy in the
// chain.
package strategies

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/memo"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
	"github.com/yearn/yprice-go/internal/rtlog"
)

var logger = rtlog.New("strategies")

// newStrategyError builds a probeExhaustedError for a "tried every known
// method variant, none worked" condition; isExpectedRevert treats it the
// same as an on-chain revert, so callers route it through
// noneIfRevert/matchNone like any other probe failure.
func newStrategyError(msg string) error {
	return &probeExhaustedError{msg: "strategies: " + msg}
}

// errBadLog marks a Filter-sourced log row that doesn't decode into the
// event a factory/registry discovery probe expected.
var errBadLog = errors.New("strategies: malformed discovery log")

// decodeLog unmarshals a LogRow's Raw column back into a go-ethereum
// types.Log, the convention the Filter engine's insert path writes Raw in.
func decodeLog(raw []byte) (types.Log, error) {
	var log types.Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return types.Log{}, err
	}
	return log, nil
}

// matchTTL is the short cache lifetime spec §4.7 calls for: "cache
// positive and negative matches with a short TTL (5 min by design)".
const matchTTL = 5 * time.Minute

func callMsg(addr common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &addr, Data: data}
}

// call packs method(args...) against parsed, issues it through c at block,
// and unpacks the single return value into out.
func call(ctx context.Context, c rpc.Client, parsed abi.ABI, addr common.Address, method string, block *big.Int, out interface{}, args ...interface{}) error {
	vals, err := callValues(ctx, c, parsed, addr, method, block, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return parsed.Methods[method].Outputs.Copy(out, vals)
}

// callValues is like call but returns the raw unpacked value slice, for
// multi-return methods (getReserves, getPoolTokens, ...).
func callValues(ctx context.Context, c rpc.Client, parsed abi.ABI, addr common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := c.CallContract(ctx, callMsg(addr, input), block)
	if err != nil {
		return nil, err
	}
	return parsed.Unpack(method, raw)
}

// revertSubstrings are node error messages meaning "this contract does not
// implement what we just tried to call" rather than a transport failure;
// Matches/Price treat these as a clean "no" instead of propagating an
// error up through the router (spec §4.7).
var revertSubstrings = []string{
	"execution reverted",
	"call reverted",
	"revert",
	"insufficient_",
	"out of gas",
	"invalid opcode",
	"invalid jump",
}

// isExpectedRevert reports whether err is one of the revert/out-of-gas
// shapes a probe treats as "this contract doesn't support this call"
// rather than a propagated error.
func isExpectedRevert(err error) bool {
	if err == nil {
		return false
	}
	if rpc.IsMissingState(err) {
		return false
	}
	if _, ok := err.(*probeExhaustedError); ok {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range revertSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// probeExhaustedError marks "tried every known method variant, none of
// them worked" — the multi-method-probe equivalent of a plain revert,
// since from the caller's perspective both mean "this contract doesn't
// support what we just tried."
type probeExhaustedError struct{ msg string }

func (e *probeExhaustedError) Error() string { return e.msg }

// noneIfRevert converts an expected-revert error into the strategy's
// "no result" triple, re-raising anything else.
func noneIfRevert(err error) (decimal.Decimal, bool, error) {
	if isExpectedRevert(err) {
		return decimal.Decimal{}, false, nil
	}
	return decimal.Decimal{}, false, err
}

// matchNone is matches' "no result" triple for an expected revert, and the
// error itself otherwise.
func matchNone(err error) (bool, error) {
	if isExpectedRevert(err) {
		return false, nil
	}
	return false, err
}

// matchCache wraps a memo.Cache[common.Address, bool] with the short TTL
// spec §4.7 wants for Matches results; concrete strategies embed it.
type matchCache struct {
	cache *memo.Cache[common.Address, bool]
	name  string
}

func newMatchCache(name string) matchCache {
	return matchCache{cache: memo.New[common.Address, bool](5_000, matchTTL), name: name}
}

func (m matchCache) cached(ctx context.Context, token common.Address, probe func(context.Context) (bool, error)) (bool, error) {
	sfKey := m.name + ":" + token.Hex()
	return m.cache.Get(ctx, token, sfKey, probe)
}

// ErrNotAKind is returned by Price when Matches said yes but the on-chain
// state turned out not to support this family after all (spec §4.7's
// Matches/Price inconsistency edge case). The Router does not recognize
// this type: like any other strategy error it is returned to the
// GetPrice caller, and no further strategy or fallback is tried.
type ErrNotAKind struct {
	Strategy string
	Token    common.Address
}

func (e *ErrNotAKind) Error() string {
	return "strategies: " + e.Token.Hex() + " matched " + e.Strategy + " but is not actually priceable by it"
}

func notAKind(strategy string, token common.Address) (decimal.Decimal, bool, error) {
	return decimal.Decimal{}, false, &ErrNotAKind{Strategy: strategy, Token: token}
}

// priceOracle is the narrow slice of price.Router concrete strategies
// recurse through to price an underlying/paired token.
type priceOracle interface {
	GetPrice(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error)
}

// scaleDown divides raw by 10^decimals.
func scaleDown(raw *big.Int, decimals uint8) decimal.Decimal {
	return scaleDownExp(raw, int32(decimals))
}

// scaleDownExp divides raw by 10^exp; exp may be negative (a multiply),
// needed by scale computations that combine two decimals counts
// (Compound's exchangeRate, Chainlink-style oracle scalings).
func scaleDownExp(raw *big.Int, exp int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Div(decimal.New(1, exp))
}

// mustABI parses a minimal ABI JSON literal; called only at package init
// with fixed strings, so a parse failure is a programming error.
func mustABI(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic("strategies: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
