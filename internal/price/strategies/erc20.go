package strategies

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yearn/yprice-go/internal/memo"
	"github.com/yearn/yprice-go/internal/rpc"
	"github.com/yearn/yprice-go/internal/store"
)

var erc20ABI = mustABI(`[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`)

// ERC20 probes name/symbol/decimals/totalSupply/balanceOf, persisting
// results through Store and memoizing decimals forever once known (spec
// §4.7: "cache decimals forever once known").
type ERC20 struct {
	store    *store.Store
	chain    uint64
	client   rpc.Client
	decimals *memo.Cache[common.Address, uint8]
}

// NewERC20 builds the shared ERC-20 probe helper every strategy embeds.
func NewERC20(st *store.Store, chain uint64, client rpc.Client) *ERC20 {
	return &ERC20{
		store:    st,
		chain:    chain,
		client:   client,
		decimals: memo.New[common.Address, uint8](memo.ChecksumCacheSize, 0),
	}
}

// Decimals returns token's decimals, probing once and caching forever
// (the Store row first, then an on-chain decimals() call). There is no
// bytes32 fallback here; only Symbol and Name have one.
func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	return e.decimals.Get(ctx, token, "decimals:"+token.Hex(), func(ctx context.Context) (uint8, error) {
		if tok, ok, err := e.store.GetToken(ctx, e.chain, token); err != nil {
			return 0, err
		} else if ok && tok.Decimals != nil {
			return *tok.Decimals, nil
		}
		var d uint8
		if err := call(ctx, e.client, erc20ABI, token, "decimals", nil, &d); err != nil {
			return 0, err
		}
		if err := e.store.UpsertTokenMetadata(ctx, e.chain, token, nil, nil, &d, nil); err != nil {
			return 0, err
		}
		return d, nil
	})
}

// Symbol probes symbol(), falling back to a right-padded bytes32 decode
// when the call returns exactly 32 raw bytes instead of an ABI string
// (spec §4.7's "bytes32 fallback decode").
func (e *ERC20) Symbol(ctx context.Context, token common.Address) (string, error) {
	return e.probeString(ctx, token, "symbol")
}

// Name probes name() with the same bytes32 fallback as Symbol.
func (e *ERC20) Name(ctx context.Context, token common.Address) (string, error) {
	return e.probeString(ctx, token, "name")
}

func (e *ERC20) probeString(ctx context.Context, token common.Address, method string) (string, error) {
	input, err := erc20ABI.Pack(method)
	if err != nil {
		return "", err
	}
	raw, err := e.client.CallContract(ctx, callMsg(token, input), nil)
	if err != nil {
		return "", err
	}
	if len(raw) == 32 {
		// Some pre-standard tokens (e.g. early MKR) return a right-padded
		// bytes32 instead of an ABI-encoded string.
		if s := decodeBytes32String(raw); s != "" {
			return s, nil
		}
	}
	vals, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return "", err
	}
	s, _ := vals[0].(string)
	return s, nil
}

func decodeBytes32String(raw []byte) string {
	trimmed := strings.TrimRight(string(raw), "\x00")
	for _, r := range trimmed {
		if r < 0x20 || r > 0x7e {
			return ""
		}
	}
	return trimmed
}

// TotalSupply probes totalSupply() as a raw integer.
func (e *ERC20) TotalSupply(ctx context.Context, token common.Address, block *big.Int) (*big.Int, error) {
	var out *big.Int
	if err := call(ctx, e.client, erc20ABI, token, "totalSupply", block, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BalanceOf probes balanceOf(owner) as a raw integer.
func (e *ERC20) BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	var out *big.Int
	if err := call(ctx, e.client, erc20ABI, token, "balanceOf", block, &out, owner); err != nil {
		return nil, err
	}
	return out, nil
}
