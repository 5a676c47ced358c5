// Package runtime assembles one chain's worth of components — Store, rpc
// Client, Filters, PriceRouter, Bucketer, blocktime Service — into a single
// explicit Runtime value. Nothing downstream of Config keeps package-level
// mutable state: spec §9 calls out the original's module-level globals as a
// design smell to retire, not carry forward.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/yearn/yprice-go/internal/blocksem"
	"github.com/yearn/yprice-go/internal/blocktime"
	"github.com/yearn/yprice-go/internal/config"
	"github.com/yearn/yprice-go/internal/diskcache"
	"github.com/yearn/yprice-go/internal/filter"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/price/strategies"
	"github.com/yearn/yprice-go/internal/price/ypriceapi"
	"github.com/yearn/yprice-go/internal/rpc"
	"github.com/yearn/yprice-go/internal/rtlog"
	"github.com/yearn/yprice-go/internal/store"
)

var logger = rtlog.New("runtime")

// ChainAssets is the set of well-known, chain-specific addresses a Runtime
// needs to wire its strategy set — analogous to the teacher's per-network
// constants, but threaded explicitly instead of switched on by chain ID deep
// inside strategy code.
type ChainAssets struct {
	WrappedNative common.Address
	Stablecoins   []common.Address
	HighPriceOK   []common.Address

	UniswapV2Factories []strategies.UniswapV2Factory
	UniswapV3          strategies.UniswapV3Config
	CurveRegistry      common.Address
	BalancerV1Pools    []common.Address
	BalancerV2Vault    common.Address
	BalancerV2Factory  common.Address
	ChainlinkFeeds     map[common.Address]common.Address
	ChainlinkRegistry  common.Address
	CompoundComptroller common.Address
	AavePool           common.Address
	BandOracle         common.Address
	BandSymbols        map[common.Address]string
	SynthetixResolver  common.Address
	SynthetixSynths    map[common.Address]bool
	PendleFactory      common.Address
}

// Runtime holds every live component wired for one chain. Construction
// order matters: Store and rpc.Client first, then the blocktime Service and
// any Filters, then ERC20/strategies (which close over the Filters), then
// finally the Router/Bucketer (which close over the strategies).
type Runtime struct {
	Config   config.Config
	Store    *store.Store
	RPC      rpc.Client
	BlockTime *blocktime.Service
	ERC20    *strategies.ERC20
	Router   *price.Router
	Bucketer *price.Bucketer

	logFilters []*filter.LogFilter
}

// New opens the Store, dials the RPC endpoint, binds the schema, and wires
// every strategy and Filter named in assets into a Router and Bucketer.
func New(ctx context.Context, cfg config.Config, assets ChainAssets) (*Runtime, error) {
	st, err := store.Open(store.Config{
		Provider:   cfg.DBProvider,
		ChainID:    cfg.ChainID,
		SQLitePath: cfg.SQLitePath,
		DBHost:     cfg.DBHost,
		DBPort:     cfg.DBPort,
		DBUser:     cfg.DBUser,
		DBPassword: cfg.DBPassword,
		DBName:     cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: open store: %w", err)
	}
	if err := st.Bind(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("runtime: bind schema: %w", err)
	}

	client, err := rpc.Dial(ctx, cfg.RPCURL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("runtime: dial rpc: %w", err)
	}

	r := &Runtime{
		Config:    cfg,
		Store:     st,
		RPC:       client,
		BlockTime: blocktime.New(st, client, cfg.ChainID),
	}
	r.ERC20 = strategies.NewERC20(st, cfg.ChainID, client)

	sem := blocksem.New(cfg.GetLogsDOP)
	headFn := func(ctx context.Context) (uint64, error) {
		h, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return 0, err
		}
		return h.Number.Uint64(), nil
	}

	discovery := func(addr common.Address, topic0 common.Hash) *filter.LogFilter {
		shape := diskcache.LogKeyShape{Addresses: []common.Address{addr}, Topic0: &topic0}
		fetch := r.logFetcher(addr, topic0)
		cache := diskcache.NewLogDiskCache(st, cfg.ChainID, shape)
		lf := filter.NewLogFilter(filter.Config{
			ChunkSize:      blockChunkSize(cfg),
			ChunksPerBatch: 1,
			Semaphore:      sem,
			IsReusable:     true,
		}, fetch, st, cache, headFn)
		r.logFilters = append(r.logFilters, lf)
		lf.Start(ctx)
		return lf
	}

	var univ2 []strategies.UniswapV2Factory
	for _, f := range assets.UniswapV2Factories {
		f.Discovery = discovery(f.Address, pairCreatedTopic)
		univ2 = append(univ2, f)
	}

	var balV2Discovery *filter.LogFilter
	if assets.BalancerV2Factory != (common.Address{}) {
		balV2Discovery = discovery(assets.BalancerV2Factory, poolCreatedTopic)
	}
	var clDiscovery *filter.LogFilter
	if assets.ChainlinkRegistry != (common.Address{}) {
		clDiscovery = discovery(assets.ChainlinkRegistry, feedConfirmedTopic)
	}
	var pendleDiscovery *filter.LogFilter
	if assets.PendleFactory != (common.Address{}) {
		pendleDiscovery = discovery(assets.PendleFactory, poolCreatedTopic)
	}

	allStrats, bucketStrats, fallbackStrats := buildStrategies(r, assets, univ2, balV2Discovery, clDiscovery, pendleDiscovery)
	r.Bucketer = price.NewBucketer(st, cfg.ChainID, bucketStrats)

	var remote price.RemoteFallback
	if !cfg.SkipYpriceAPI {
		ypClient, err := ypriceapi.New(ypriceapi.Config{
			URL:       cfg.YpriceAPIURL,
			Timeout:   cfg.YpriceAPITimeout,
			Semaphore: cfg.YpriceAPISemaphore,
			Signer:    cfg.YpriceAPISigner,
			Signature: cfg.YpriceAPISignature,
		})
		if err != nil {
			client.Close()
			st.Close()
			return nil, fmt.Errorf("runtime: ypriceapi: %w", err)
		}
		remote = ypClient
	}

	r.Router = price.NewRouter(price.Config{
		Store:          st,
		Chain:          cfg.ChainID,
		Bucketer:       r.Bucketer,
		FallbackChain:  fallbackStrats,
		Stablecoins:    assets.Stablecoins,
		WrappedGasCoin: assets.WrappedNative,
		HighPriceOK:    assets.HighPriceOK,
		Remote:         remote,
	})
	logger.Info("runtime: wired strategies", "chain", cfg.ChainID, "count", len(allStrats))

	return r, nil
}

// Close releases the RPC connection, stops every background Filter, and
// closes the Store. Un-flushed bulk inserts are acceptable to drop (spec §5
// teardown: every write is insert-or-ignore and recomputable).
func (r *Runtime) Close() {
	for _, lf := range r.logFilters {
		lf.Stop()
	}
	r.RPC.Close()
	if err := r.Store.Close(); err != nil {
		logger.Warn("runtime: error closing store", "error", err)
	}
}

func blockChunkSize(cfg config.Config) uint64 {
	if cfg.GetLogsBatchSize == 0 {
		return 2_000
	}
	return cfg.GetLogsBatchSize
}

var (
	pairCreatedTopic   = logTopic("PairCreated(address,address,address,uint256)")
	poolCreatedTopic   = logTopic("PoolCreated(address)")
	feedConfirmedTopic = logTopic("FeedConfirmed(address,address,address,address,uint16)")
)

// logTopic keccaks an event signature into its topic0. The discovery
// filters this module wires all key on single, well-known event
// signatures, so there is no need for full ABI-driven topic derivation here.
func logTopic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// logFetcher builds a filter.FetchFunc that issues one eth_getLogs call for
// [from, to] against addr+topic0 and converts each result into the
// store.LogRow shape the Store and DiskCache deal in, establishing the
// convention strategies/common.go's decodeLog assumes: Raw is the
// JSON-marshaled form of a go-ethereum core/types.Log.
func (r *Runtime) logFetcher(addr common.Address, topic0 common.Hash) filter.FetchFunc[store.LogRow] {
	return func(ctx context.Context, from, to uint64) ([]store.LogRow, error) {
		logs, err := r.RPC.GetLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{addr},
			Topics:    [][]common.Hash{{topic0}},
		})
		if err != nil {
			return nil, err
		}
		rows := make([]store.LogRow, 0, len(logs))
		for _, lg := range logs {
			row, err := logToRow(r.Config.ChainID, lg)
			if err != nil {
				logger.Warn("runtime: dropping malformed log", "tx", lg.TxHash.Hex(), "error", err)
				continue
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
}

func logToRow(chain uint64, lg types.Log) (store.LogRow, error) {
	raw, err := json.Marshal(lg)
	if err != nil {
		return store.LogRow{}, err
	}
	row := store.LogRow{
		Chain:    chain,
		Block:    lg.BlockNumber,
		TxHash:   trimHex(lg.TxHash.Hex()),
		LogIndex: uint16(lg.Index),
		Address:  trimHex(lg.Address.Hex()),
		Raw:      raw,
	}
	if len(lg.Topics) > 0 {
		row.Topic0 = trimHex(lg.Topics[0].Hex())
	}
	if len(lg.Topics) > 1 {
		row.Topic1 = trimHex(lg.Topics[1].Hex())
	}
	if len(lg.Topics) > 2 {
		row.Topic2 = trimHex(lg.Topics[2].Hex())
	}
	if len(lg.Topics) > 3 {
		row.Topic3 = trimHex(lg.Topics[3].Hex())
	}
	return row, nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
