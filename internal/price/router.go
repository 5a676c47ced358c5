package price

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/memo"
	"github.com/yearn/yprice-go/internal/rtlog"
	"github.com/yearn/yprice-go/internal/store"
	"github.com/yearn/yprice-go/internal/store/entities"
)

var logger = rtlog.New("price")

// ErrPriceError is returned by GetPrice instead of (zero, false, nil) when
// opts.FailToNone is false and the router could not resolve a price.
var ErrPriceError = errors.New("price: unable to resolve a price")

// maxUnwrapDepth bounds recursive getPrice calls (spec §4.5: "ten nested
// unwraps").
const maxUnwrapDepth = 10

// sanityThreshold is the USD price above which a computed quote triggers a
// soft sanity-check warning unless allowlisted (spec §4.5).
var sanityThreshold = decimal.NewFromInt(1000)

type depthKey struct{}
type visitedKey struct{}

func withRecursionState(ctx context.Context) context.Context {
	if ctx.Value(depthKey{}) != nil {
		return ctx
	}
	return context.WithValue(context.WithValue(ctx, depthKey{}, 0), visitedKey{}, map[common.Address]bool{})
}

func depthOf(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func visitedSet(ctx context.Context) map[common.Address]bool {
	v, _ := ctx.Value(visitedKey{}).(map[common.Address]bool)
	return v
}

func descend(ctx context.Context, token common.Address) context.Context {
	visited := visitedSet(ctx)
	next := make(map[common.Address]bool, len(visited)+1)
	for k := range visited {
		next[k] = true
	}
	next[token] = true
	return context.WithValue(context.WithValue(ctx, depthKey{}, depthOf(ctx)+1), visitedKey{}, next)
}

// Router resolves (token, block, opts) -> USD price per spec §4.5.
type Router struct {
	store          *store.Store
	chain          uint64
	bucketer       *Bucketer
	fallbackChain  []Strategy
	priceCache     *memo.Cache[memo.PriceKey, decimal.Decimal]
	stablecoins    map[common.Address]bool
	wrappedGasCoin common.Address
	onetoone       map[common.Address]OneToOnePeg
	highPriceOK    map[common.Address]bool
	remote         RemoteFallback
}

// OneToOnePeg is a static 1:1-ish peg, e.g. wstETH -> stETH at a share
// rate, or renBTC -> WBTC at par.
type OneToOnePeg struct {
	Underlying common.Address
	ShareRate  func(ctx context.Context, block uint64) (decimal.Decimal, error)
}

// RemoteFallback is the optional ypriceAPI adapter, consulted last.
type RemoteFallback interface {
	GetPrice(ctx context.Context, chain uint64, token common.Address, block uint64) (decimal.Decimal, bool, error)
}

// Config wires a Router's static dependencies.
type Config struct {
	Store          *store.Store
	Chain          uint64
	Bucketer       *Bucketer
	FallbackChain  []Strategy // tried in order after bucket dispatch misses: chainlink, curve, balancer, ...
	Stablecoins    []common.Address
	WrappedGasCoin common.Address
	OneToOne       map[common.Address]OneToOnePeg
	HighPriceOK    []common.Address // WETH, WBTC, etc: skip the sanity-check warning
	Remote         RemoteFallback
}

// NewRouter builds a Router from Config.
func NewRouter(cfg Config) *Router {
	stables := make(map[common.Address]bool, len(cfg.Stablecoins))
	for _, s := range cfg.Stablecoins {
		stables[s] = true
	}
	allow := make(map[common.Address]bool, len(cfg.HighPriceOK))
	for _, a := range cfg.HighPriceOK {
		allow[a] = true
	}
	return &Router{
		store:          cfg.Store,
		chain:          cfg.Chain,
		bucketer:       cfg.Bucketer,
		fallbackChain:  cfg.FallbackChain,
		priceCache:     memo.New[memo.PriceKey, decimal.Decimal](memo.PriceCacheSize, time.Hour),
		stablecoins:    stables,
		wrappedGasCoin: cfg.WrappedGasCoin,
		onetoone:       cfg.OneToOne,
		highPriceOK:    allow,
		remote:         cfg.Remote,
	}
}

// GetPrice resolves one token's USD price at block, following the
// normalize -> stablecoin -> memo -> bucket -> strategy -> fallback chain
// pipeline of spec §4.5.
func (r *Router) GetPrice(ctx context.Context, token common.Address, block uint64, opts Options) (decimal.Decimal, bool, error) {
	ctx = withRecursionState(ctx)
	return r.getPrice(ctx, token, block, opts)
}

func (r *Router) getPrice(ctx context.Context, token common.Address, block uint64, opts Options) (decimal.Decimal, bool, error) {
	if depthOf(ctx) > maxUnwrapDepth || visitedSet(ctx)[token] {
		return r.noneOrErr(opts)
	}
	ctx = descend(ctx, token)

	// 1. Normalize: substitute the EEE sentinel for the chain's wrapped
	// native asset and recurse.
	if isEEE(token) {
		return r.getPrice(ctx, r.wrappedGasCoin, block, opts)
	}

	// 2. Known stablecoins are always $1.
	if r.stablecoins[token] {
		return decimal.NewFromInt(1), true, nil
	}

	// 3. Memo.
	key := memo.PriceKey{Chain: r.chain, Block: block, Token: token}
	if !opts.SkipCache {
		if price, ok, err := r.store.GetPrice(ctx, r.chain, block, token); err != nil {
			return decimal.Decimal{}, false, err
		} else if ok {
			return price, true, nil
		}
	}

	sfKey := fmt.Sprintf("%d:%d:%s", r.chain, block, token.Hex())
	price, err := r.priceCache.Get(ctx, key, sfKey, func(ctx context.Context) (decimal.Decimal, error) {
		p, ok, err := r.compute(ctx, token, block, opts)
		if err != nil {
			return decimal.Decimal{}, err
		}
		if !ok {
			return decimal.Decimal{}, errNotPriced
		}
		return p, nil
	})
	if err != nil {
		if errors.Is(err, errNotPriced) {
			return r.noneOrErr(opts)
		}
		return decimal.Decimal{}, false, err
	}

	r.sanityCheck(token, price)

	// 6. Opportunistic memo write; collisions are insert-or-ignore, so a
	// concurrent duplicate compute is harmless (spec §5).
	if err := r.store.PutPrice(ctx, r.chain, block, token, price); err != nil {
		logger.Warn("price: failed to persist computed price", "token", token.Hex(), "block", block, "error", err)
	}
	return price, true, nil
}

var errNotPriced = errors.New("price: strategy chain produced no price")

// compute runs one-to-one substitution, then bucket dispatch, then the
// fixed fallback order (spec §4.5 step 4-5).
func (r *Router) compute(ctx context.Context, token common.Address, block uint64, opts Options) (decimal.Decimal, bool, error) {
	if peg, ok := r.onetoone[token]; ok {
		rate, err := peg.ShareRate(ctx, block)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		underlyingPrice, found, err := r.getPrice(ctx, peg.Underlying, block, opts)
		if err != nil || !found {
			return decimal.Decimal{}, false, err
		}
		return underlyingPrice.Mul(rate), true, nil
	}

	bucket, err := r.bucketer.Bucket(ctx, token, block)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if strat := r.bucketer.StrategyFor(bucket); strat != nil {
		price, ok, err := strat.Price(ctx, token, block, opts)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		if ok {
			return price, true, nil
		}
	}

	// 5. Fixed fallback order: chainlink -> curve -> balancer -> known
	// bucket -> generic AMM -> deepest Uniswap-family router -> Band/
	// Synthetix -> optional remote oracle. FallbackChain is constructed by
	// the caller in exactly this order.
	for _, strat := range r.fallbackChain {
		matched, err := strat.Matches(ctx, token, block)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		if !matched {
			continue
		}
		price, ok, err := strat.Price(ctx, token, block, opts)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		if ok {
			return price, true, nil
		}
	}

	if r.remote != nil {
		return r.remote.GetPrice(ctx, r.chain, token, block)
	}
	return decimal.Decimal{}, false, nil
}

func (r *Router) noneOrErr(opts Options) (decimal.Decimal, bool, error) {
	if opts.FailToNone {
		return decimal.Decimal{}, false, nil
	}
	return decimal.Decimal{}, false, ErrPriceError
}

func (r *Router) sanityCheck(token common.Address, price decimal.Decimal) {
	if price.LessThan(sanityThreshold) {
		return
	}
	if r.highPriceOK[token] {
		return
	}
	logger.Warn("price: computed price above sanity threshold", "token", token.Hex(), "price", price.String())
}

func isEEE(addr common.Address) bool {
	return addr == entities.EEEAddress
}

// GetPrices fan-outs GetPrice for many tokens through a bounded
// concurrency map (spec §4.5).
func (r *Router) GetPrices(ctx context.Context, tokens []common.Address, block uint64, opts Options, concurrency int) []PriceResult {
	if concurrency <= 0 {
		concurrency = 16
	}
	results := make([]PriceResult, len(tokens))
	if len(tokens) == 0 {
		return results
	}
	sem := make(chan struct{}, concurrency)
	var remaining atomic.Int64
	remaining.Store(int64(len(tokens)))
	done := make(chan struct{})

	for i, tok := range tokens {
		i, tok := i, tok
		sem <- struct{}{}
		go func() {
			defer func() {
				<-sem
				if remaining.Add(-1) == 0 {
					close(done)
				}
			}()
			price, ok, err := r.GetPrice(ctx, tok, block, opts)
			results[i] = PriceResult{Token: tok, Price: price, Found: ok, Err: err}
		}()
	}
	<-done
	return results
}

// PriceResult is one GetPrices entry.
type PriceResult struct {
	Token common.Address
	Price decimal.Decimal
	Found bool
	Err   error
}

