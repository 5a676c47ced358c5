package rpc

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/yearn/yprice-go/internal/rtlog"
)

var logger = rtlog.New("rpc")

// transientSubstrings are provider error messages worth retrying rather
// than surfacing to the caller immediately.
var transientSubstrings = []string{
	"timeout",
	"context deadline exceeded",
	"429",
	"too many requests",
	"rate limit",
	"connection reset",
	"connection refused",
	"EOF",
	"header not found",
	"socket hang up",
	"i/o timeout",
}

// missingStateSubstrings flag a node that has pruned the state this call
// needs; callers treat this distinctly from a plain transient failure.
var missingStateSubstrings = []string{
	"missing trie node",
	"no state at block",
	"pruned",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// IsMissingState reports whether err indicates the target node no longer
// retains the state a call needs (spec §5/§7).
func IsMissingState(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range missingStateSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ErrNodeBehindHead indicates the target RPC node's own head is behind the
// block a caller requested.
var ErrNodeBehindHead = errors.New("rpc: node head behind requested block")

// CheckNodeBehind returns ErrNodeBehindHead if the node's reported head is
// still behind the block a caller is about to request, per spec §5's
// "node is behind" classification (distinct from a missing-state error:
// here the data simply doesn't exist yet).
func CheckNodeBehind(nodeHead, requested uint64) error {
	if nodeHead < requested {
		return ErrNodeBehindHead
	}
	return nil
}

// RetryingClient wraps a Client with exponential-backoff retry for
// transient failures; missing-state and node-behind-head errors are
// surfaced immediately since retrying them without action never helps.
type RetryingClient struct {
	Client
	maxElapsed time.Duration
}

// WithRetry wraps c so every call retries transient failures with
// exponential backoff for up to maxElapsed before giving up.
func WithRetry(c Client, maxElapsed time.Duration) Client {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	return &RetryingClient{Client: c, maxElapsed: maxElapsed}
}

func (r *RetryingClient) backoffFor(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxElapsedTime = r.maxElapsed
	return backoff.WithContext(b, ctx)
}

func retryOp[T any](ctx context.Context, r *RetryingClient, op func() (T, error)) (T, error) {
	var result T
	err := backoff.Retry(func() error {
		var opErr error
		result, opErr = op()
		if opErr == nil {
			return nil
		}
		if IsMissingState(opErr) {
			logger.Warn("rpc: missing state, not retrying", "error", opErr)
			return backoff.Permanent(opErr)
		}
		if !isTransient(opErr) {
			return backoff.Permanent(opErr)
		}
		logger.Warn("rpc: transient error, retrying", "error", opErr)
		return opErr
	}, r.backoffFor(ctx))
	return result, err
}

func (r *RetryingClient) CallMany(ctx context.Context, batch []gethrpc.BatchElem) error {
	_, err := retryOp(ctx, r, func() (struct{}, error) {
		return struct{}{}, r.Client.CallMany(ctx, batch)
	})
	return err
}

func (r *RetryingClient) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return retryOp(ctx, r, func() ([]types.Log, error) { return r.Client.GetLogs(ctx, q) })
}

func (r *RetryingClient) GetCode(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	return retryOp(ctx, r, func() ([]byte, error) { return r.Client.GetCode(ctx, addr, block) })
}

func (r *RetryingClient) HeaderByNumber(ctx context.Context, block *big.Int) (*types.Header, error) {
	return retryOp(ctx, r, func() (*types.Header, error) { return r.Client.HeaderByNumber(ctx, block) })
}

func (r *RetryingClient) StorageAt(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) ([]byte, error) {
	return retryOp(ctx, r, func() ([]byte, error) { return r.Client.StorageAt(ctx, addr, key, block) })
}

func (r *RetryingClient) TraceFilter(ctx context.Context, fromBlock, toBlock uint64, fromAddrs, toAddrs []common.Address) ([]TraceResult, error) {
	return retryOp(ctx, r, func() ([]TraceResult, error) { return r.Client.TraceFilter(ctx, fromBlock, toBlock, fromAddrs, toAddrs) })
}

func (r *RetryingClient) TraceBlock(ctx context.Context, block uint64) ([]TraceResult, error) {
	return retryOp(ctx, r, func() ([]TraceResult, error) { return r.Client.TraceBlock(ctx, block) })
}

func (r *RetryingClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return retryOp(ctx, r, func() ([]byte, error) { return r.Client.CallContract(ctx, msg, block) })
}
