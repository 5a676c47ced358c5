package strategies

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

// fakeCall is one scripted eth_call response: either a packed return value
// or an error (simulating a revert).
type fakeCall struct {
	out []byte
	err error
}

var errExecutionReverted = fmt.Errorf("execution reverted")

// fakeClient is a scripted rpc.Client keyed by (contract address, 4-byte
// selector), matching the calling convention call()/callValues() use in
// common.go.
type fakeClient struct {
	calls map[common.Address]map[[4]byte]fakeCall
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: map[common.Address]map[[4]byte]fakeCall{}}
}

// returns scripts a successful call to method on addr, packing result via
// parsed's outputs.
func (f *fakeClient) returns(addr common.Address, parsed abi.ABI, method string, result ...interface{}) {
	packed, err := parsed.Methods[method].Outputs.Pack(result...)
	if err != nil {
		panic(fmt.Sprintf("fake_client_test: pack %s: %v", method, err))
	}
	f.set(addr, parsed, method, fakeCall{out: packed})
}

// reverts scripts addr/method to fail as an on-chain revert.
func (f *fakeClient) reverts(addr common.Address, parsed abi.ABI, method string) {
	f.set(addr, parsed, method, fakeCall{err: errExecutionReverted})
}

func (f *fakeClient) set(addr common.Address, parsed abi.ABI, method string, c fakeCall) {
	var sel [4]byte
	copy(sel[:], parsed.Methods[method].ID)
	if f.calls[addr] == nil {
		f.calls[addr] = map[[4]byte]fakeCall{}
	}
	f.calls[addr][sel] = c
}

func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("fake_client_test: malformed call")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	byAddr, ok := f.calls[*msg.To]
	if !ok {
		return nil, errExecutionReverted
	}
	c, ok := byAddr[sel]
	if !ok {
		return nil, errExecutionReverted
	}
	return c.out, c.err
}

func (f *fakeClient) CallMany(ctx context.Context, batch []gethrpc.BatchElem) error { return nil }
func (f *fakeClient) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeClient) GetCode(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) HeaderByNumber(ctx context.Context, block *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}
func (f *fakeClient) StorageAt(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) TraceFilter(ctx context.Context, from, to uint64, fromAddrs, toAddrs []common.Address) ([]rpc.TraceResult, error) {
	return nil, nil
}
func (f *fakeClient) TraceBlock(ctx context.Context, block uint64) ([]rpc.TraceResult, error) {
	return nil, nil
}
func (f *fakeClient) Close() {}

// fakeRouter is a scripted priceOracle keyed by token address.
type fakeRouter struct {
	prices map[common.Address]decimal.Decimal
}

func newFakeRouter() *fakeRouter { return &fakeRouter{prices: map[common.Address]decimal.Decimal{}} }

func (r *fakeRouter) set(token common.Address, usd float64) {
	r.prices[token] = decimal.NewFromFloat(usd)
}

func (r *fakeRouter) GetPrice(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	p, ok := r.prices[token]
	return p, ok, nil
}
