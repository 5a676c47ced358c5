// Package rpc wraps go-ethereum's ethclient/rpc stack into the Client
// surface the Filter engine and price strategies call through: batched
// eth_* calls, raw trace_* calls (not exposed by ethclient), and the
// transient-vs-fatal error classification spec §5/§7 require.
package rpc

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Client is the surface every Filter fetch function and price strategy
// probe calls through.
type Client interface {
	CallMany(ctx context.Context, batch []gethrpc.BatchElem) error
	GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	GetCode(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, block *big.Int) (*types.Header, error)
	StorageAt(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) ([]byte, error)
	TraceFilter(ctx context.Context, fromBlock, toBlock uint64, fromAddrs, toAddrs []common.Address) ([]TraceResult, error)
	TraceBlock(ctx context.Context, block uint64) ([]TraceResult, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	Close()
}

// TraceResult is the decode-agnostic shape of one trace_filter/trace_block
// element: Action/Result stay raw JSON because strategy-level trace
// consumers (factory discovery, internal-call accounting) each decode a
// different subset.
type TraceResult struct {
	BlockNumber uint64          `json:"blockNumber"`
	From        common.Address `json:"-"`
	To          common.Address `json:"-"`
	Action      map[string]any `json:"action"`
	Result      map[string]any `json:"result"`
	Type        string         `json:"type"`
	TxHash      *common.Hash   `json:"transactionHash"`
}

// client is the default Client backed by one ethclient.Client (for eth_*)
// and the underlying *gethrpc.Client (for trace_* and batching).
type client struct {
	eth *ethclient.Client
	raw *gethrpc.Client
}

// Dial connects to an RPC endpoint and returns the wrapped Client.
func Dial(ctx context.Context, url string) (Client, error) {
	raw, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &client{eth: ethclient.NewClient(raw), raw: raw}, nil
}

func (c *client) Close() {
	c.raw.Close()
}

// CallMany batches several JSON-RPC calls into one round trip via
// BatchCallContext, used for trace_* calls ethclient has no typed method
// for and for parallel eth_call probes.
func (c *client) CallMany(ctx context.Context, batch []gethrpc.BatchElem) error {
	return c.raw.BatchCallContext(ctx, batch)
}

func (c *client) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.eth.FilterLogs(ctx, q)
}

func (c *client) GetCode(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	return c.eth.CodeAt(ctx, addr, block)
}

func (c *client) HeaderByNumber(ctx context.Context, block *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, block)
}

func (c *client) StorageAt(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) ([]byte, error) {
	return c.eth.StorageAt(ctx, addr, key.Bytes(), block)
}

func (c *client) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, block)
}

// TraceFilter issues trace_filter, a Parity/Erigon/Geth-debug-namespace
// call ethclient does not expose natively.
func (c *client) TraceFilter(ctx context.Context, fromBlock, toBlock uint64, fromAddrs, toAddrs []common.Address) ([]TraceResult, error) {
	params := map[string]any{
		"fromBlock": hexUint64(fromBlock),
		"toBlock":   hexUint64(toBlock),
	}
	if len(fromAddrs) > 0 {
		params["fromAddress"] = fromAddrs
	}
	if len(toAddrs) > 0 {
		params["toAddress"] = toAddrs
	}
	var out []TraceResult
	err := c.raw.CallContext(ctx, &out, "trace_filter", params)
	return out, err
}

// TraceBlock issues trace_block for a single block number.
func (c *client) TraceBlock(ctx context.Context, block uint64) ([]TraceResult, error) {
	var out []TraceResult
	err := c.raw.CallContext(ctx, &out, "trace_block", hexUint64(block))
	return out, err
}

func hexUint64(n uint64) string {
	return "0x" + big.NewInt(0).SetUint64(n).Text(16)
}
