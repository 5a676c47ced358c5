// Package price implements the PriceRouter and Bucketing of spec §4.5-4.6:
// resolving (token, block, opts) to a USD quote through a normalize ->
// stablecoin -> memo -> bucket -> strategy -> fallback-chain pipeline,
// with an opportunistic memo write and a recursion guard.
package price

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Bucket is the cheap pre-classification tag from spec §4.6.
type Bucket string

const (
	BucketStable        Bucket = "stable"
	BucketWrappedNative  Bucket = "wrapped-native"
	BucketChainlinkFeed  Bucket = "chainlink-feed"
	BucketUniV2LP        Bucket = "uni-v2-lp"
	BucketUniV3LP        Bucket = "uni-v3-lp"
	BucketCurveLP        Bucket = "curve-lp"
	BucketBalancerLP     Bucket = "balancer-lp"
	BucketYearnLike      Bucket = "yearn-like"
	BucketATokenV1       Bucket = "atoken-v1"
	BucketATokenV2       Bucket = "atoken-v2"
	BucketCToken         Bucket = "ctoken"
	BucketIBToken        Bucket = "ib-token"
	BucketPendleLP       Bucket = "pendle-lp"
	BucketGelatoLP       Bucket = "gelato-lp"
	BucketPopsicleLP     Bucket = "popsicle-lp"
	BucketMStableFeeder  Bucket = "mstable-feeder"
	BucketSaddleLP       Bucket = "saddle-lp"
	BucketEllipsisLP     Bucket = "ellipsis-lp"
	BucketBeltLP         Bucket = "belt-lp"
	BucketStargateLP     Bucket = "stargate-lp"
	BucketBasketIndex    Bucket = "basket-index"
	BucketSolidex        Bucket = "solidex"
	BucketRKP3R          Bucket = "rkp3r"
	BucketVBToken        Bucket = "vb-token"
	BucketOneToOneMap    Bucket = "one-to-one-map"
	BucketGeneric        Bucket = "generic"
)

// Options thread per-call overrides through the router and into strategies.
type Options struct {
	SkipCache   bool
	IgnorePools map[common.Address]bool
	FailToNone  bool
}

// Strategy prices tokens belonging to one bucket family. Matches is a
// cheap, cacheable classification probe; Price performs the (possibly
// recursive) on-chain computation.
type Strategy interface {
	Name() string
	Bucket() Bucket
	Matches(ctx context.Context, token common.Address, block uint64) (bool, error)
	Price(ctx context.Context, token common.Address, block uint64, opts Options) (decimal.Decimal, bool, error)
}
