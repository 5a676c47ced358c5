package price

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yearn/yprice-go/internal/memo"
	"github.com/yearn/yprice-go/internal/store"
)

// Bucketer classifies a token into a Bucket via each Strategy's Matches
// probe, in fixed precedence order, caching forever in the Token row's
// bucket column with a 1h in-memory TTL cache on top (spec §4.6).
type Bucketer struct {
	store      *store.Store
	chain      uint64
	strategies []Strategy
	cache      *memo.Cache[common.Address, Bucket]
}

// NewBucketer builds a Bucketer that checks strategies in the given
// order; order IS the precedence: ties are broken by first match.
func NewBucketer(st *store.Store, chain uint64, strategies []Strategy) *Bucketer {
	return &Bucketer{
		store:      st,
		chain:      chain,
		strategies: strategies,
		cache:      memo.New[common.Address, Bucket](10_000, time.Hour),
	}
}

// Bucket classifies token, consulting the in-memory TTL cache, then the
// persisted Token.Bucket column, then running strategy probes in
// precedence order and persisting the first match.
func (b *Bucketer) Bucket(ctx context.Context, token common.Address, block uint64) (Bucket, error) {
	sfKey := token.Hex()
	return b.cache.Get(ctx, token, sfKey, func(ctx context.Context) (Bucket, error) {
		tok, ok, err := b.store.GetToken(ctx, b.chain, token)
		if err != nil {
			return "", err
		}
		if ok && tok.Bucket != nil && *tok.Bucket != "" {
			return Bucket(*tok.Bucket), nil
		}
		for _, strat := range b.strategies {
			matched, err := strat.Matches(ctx, token, block)
			if err != nil {
				return "", err
			}
			if matched {
				tag := strat.Bucket()
				if err := b.store.SetTokenBucket(ctx, b.chain, token, string(tag)); err != nil {
					return "", err
				}
				return tag, nil
			}
		}
		if err := b.store.SetTokenBucket(ctx, b.chain, token, string(BucketGeneric)); err != nil {
			return "", err
		}
		return BucketGeneric, nil
	})
}

// StrategyFor returns the Strategy registered for a bucket tag, if any.
func (b *Bucketer) StrategyFor(bucket Bucket) Strategy {
	for _, s := range b.strategies {
		if s.Bucket() == bucket {
			return s
		}
	}
	return nil
}
