package runtime

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/filter"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/price/strategies"
)

// buildStrategies constructs every Strategy this Runtime knows about and
// splits them into the two lists the Router/Bucketer need: bucketStrats
// drive classification precedence (spec §4.6, in this fixed order), and
// fallbackStrats are tried, in order, only after bucket dispatch misses
// (spec §4.5 step 5: chainlink -> curve -> balancer -> generic AMM ->
// deepest Uniswap-family router -> Band/Synthetix).
func buildStrategies(
	r *Runtime,
	assets ChainAssets,
	univ2Factories []strategies.UniswapV2Factory,
	balV2Discovery *filter.LogFilter,
	clDiscovery *filter.LogFilter,
	pendleDiscovery *filter.LogFilter,
) (all, bucketStrats, fallbackStrats []price.Strategy) {
	erc20 := r.ERC20
	client := r.RPC

	// priceOracle recursion target: the strategies package only needs the
	// narrow GetPrice slice, which *price.Router itself satisfies once
	// built. Strategies are constructed before the Router exists, so they
	// close over this indirection instead of the concrete *price.Router.
	oracle := routerRef{r}

	chainlink := strategies.NewChainlink(client, assets.ChainlinkFeeds, clDiscovery, r.BlockTime.BlockTimestamp)
	curveStrat := strategies.NewCurve(client, erc20, oracle, assets.CurveRegistry, map[common.Address]common.Address{})
	balancerV1 := strategies.NewBalancerV1(client, erc20, oracle)
	balancerV2 := strategies.NewBalancerV2(client, erc20, oracle, assets.BalancerV2Vault, balV2Discovery)
	univ2 := strategies.NewUniswapV2(client, erc20, oracle, univ2Factories)
	univ3 := strategies.NewUniswapV3(client, erc20, assets.UniswapV3)
	compound := strategies.NewCompound(client, erc20, oracle, assets.CompoundComptroller)
	aave := strategies.NewAave(client, oracle, assets.AavePool)
	yearnlike := strategies.NewYearnlike(client, erc20, oracle)
	pendle := strategies.NewPendle(client, oracle, pendleDiscovery)
	band := strategies.NewBand(client, assets.BandOracle, assets.BandSymbols)
	synthetix := strategies.NewSynthetix(client, assets.SynthetixResolver, assets.SynthetixSynths)

	generic := []*strategies.NAssetLP{
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindGelato),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindPopsicle),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindMStable),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindSaddle),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindBelt),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindEllipsis),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindFroyo),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindBasketDAO),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindSolidex),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindStargate),
		strategies.NewNAssetLP(client, erc20, oracle, strategies.KindVBToken),
	}

	// Bucket precedence: cheap/definitive classifications first (pegged
	// feeds, LP shapes with unambiguous on-chain markers), generic
	// lookalikes last, so e.g. a Gelato-shaped Uniswap-derivative never
	// shadows a true Uniswap V2 pair.
	bucketStrats = append(bucketStrats,
		chainlink, univ2, univ3, curveStrat, balancerV1, balancerV2,
		yearnlike, compound, aave, pendle,
	)
	for _, g := range generic {
		bucketStrats = append(bucketStrats, g)
	}

	// Fallback order fixed by spec §4.5 step 5. Band/Synthetix have no
	// dedicated bucket tag (BucketGeneric) and so are only ever reached
	// here, never via Bucketer.StrategyFor.
	fallbackStrats = append(fallbackStrats,
		chainlink, curveStrat, balancerV1, balancerV2, univ2, univ3, band, synthetix,
	)

	all = append(all, bucketStrats...)
	all = append(all, band, synthetix)
	return all, bucketStrats, fallbackStrats
}

// routerRef lets a strategy recurse into the Router being built without
// holding a direct reference before construction completes: by the time any
// strategy's Price method actually runs, r.Router is always already set.
type routerRef struct{ r *Runtime }

func (o routerRef) GetPrice(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	return o.r.Router.GetPrice(ctx, token, block, opts)
}
