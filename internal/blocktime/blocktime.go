// Package blocktime implements the block/timestamp conversion service of
// spec §4.8: memoized block->timestamp and timestamp->block lookups, a
// binary search for the first block at or after a target timestamp, and a
// binary search for a contract's creation block tolerant of archive-node
// history holes.
package blocktime

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yearn/yprice-go/internal/rpc"
	"github.com/yearn/yprice-go/internal/rtlog"
	"github.com/yearn/yprice-go/internal/store"
	"github.com/yearn/yprice-go/internal/store/entities"
)

var logger = rtlog.New("blocktime")

// ErrCreationBelowRetention is raised by ContractCreationBlock when the
// true creation block lies below the node's retained history and the
// caller asked for an unrecoverable error instead of the 0-sentinel.
var ErrCreationBelowRetention = errors.New("blocktime: contract creation block below node retention")

// Service is the block<->timestamp conversion service, backed by Store
// memos and an rpc.Client for cache misses.
type Service struct {
	store *store.Store
	rpc   rpc.Client
	chain uint64

	// headPollInterval is the sleep between "node head behind expected"
	// retries inside ClosestBlockAfterTimestamp (spec §5: default 1s).
	headPollInterval time.Duration
}

// New builds a block/timestamp Service for one chain.
func New(st *store.Store, client rpc.Client, chain uint64) *Service {
	return &Service{store: st, rpc: client, chain: chain, headPollInterval: time.Second}
}

// BlockTimestamp returns the timestamp of block n, consulting the Store
// memo first and falling back to an eth_getBlockByNumber-equivalent header
// fetch, persisting the result.
func (s *Service) BlockTimestamp(ctx context.Context, n uint64) (time.Time, error) {
	if ts, ok, err := s.store.BlockTimestamp(ctx, s.chain, n); err != nil {
		return time.Time{}, err
	} else if ok {
		return ts, nil
	}
	header, err := s.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return time.Time{}, fmt.Errorf("blocktime: fetch header %d: %w", n, err)
	}
	ts := time.Unix(int64(header.Time), 0).UTC()
	hash := header.Hash()
	if err := s.store.UpsertBlock(ctx, entities.Block{Chain: s.chain, Number: n, Hash: &hash, Timestamp: &ts}); err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// BlockAtTimestamp returns the memoized block, if any, previously resolved
// for exactly this timestamp; callers typically populate it via
// ClosestBlockAfterTimestamp first.
func (s *Service) BlockAtTimestamp(ctx context.Context, ts time.Time) (uint64, bool, error) {
	return s.store.GetBlockAtTimestamp(ctx, s.chain, ts.Unix())
}

// ClosestBlockAfterTimestamp performs a binary search over [0, head] for
// the lowest block whose timestamp is >= target, memoizing the result.
// Node-behind-expected-head is treated as a transient retry condition
// rather than a search failure (spec §4.8).
func (s *Service) ClosestBlockAfterTimestamp(ctx context.Context, target time.Time) (uint64, error) {
	if block, ok, err := s.BlockAtTimestamp(ctx, target); err != nil {
		return 0, err
	} else if ok {
		return block, nil
	}

	var head uint64
	for {
		header, err := s.rpc.HeaderByNumber(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("blocktime: fetch head: %w", err)
		}
		head = header.Number.Uint64()
		headTS := time.Unix(int64(header.Time), 0).UTC()
		if !headTS.Before(target) {
			break
		}
		// The node's own head has not yet produced a block at or after
		// target; this is expected for near-real-time queries and is not
		// an error, just not-yet-available data.
		logger.Debug("blocktime: node head behind target timestamp, waiting", "head", head, "target", target)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.headPollInterval):
		}
	}

	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		ts, err := s.BlockTimestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts.Before(target) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if err := s.store.PutBlockAtTimestamp(ctx, s.chain, target.Unix(), lo); err != nil {
		return 0, err
	}
	return lo, nil
}

// ContractCreationBlock binary-searches eth_getCode presence to find the
// block at which addr's code first appears. If the true creation block is
// below the node's retained history (eth_getCode at the lower probe bound
// still errors with a missing-state error), the function returns 0 when
// whenNoHistoryReturn0 is true, else ErrCreationBelowRetention.
func (s *Service) ContractCreationBlock(ctx context.Context, addr common.Address, whenNoHistoryReturn0 bool) (uint64, error) {
	header, err := s.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("blocktime: fetch head: %w", err)
	}
	head := header.Number.Uint64()

	hasCode := func(n uint64) (bool, error) {
		code, err := s.rpc.GetCode(ctx, addr, new(big.Int).SetUint64(n))
		if err != nil {
			if rpc.IsMissingState(err) {
				return false, errMissingHistory
			}
			return false, err
		}
		return len(code) > 0, nil
	}

	// Establish the barrier: the lowest block the node can actually answer
	// eth_getCode for. State availability is monotonic in block number (the
	// node retains everything from some cutoff onward), so this converges
	// by binary search between a known-missing low bound and a
	// known-available high bound.
	barrier, err := s.findStateBarrier(hasCode, head)
	if err != nil {
		return 0, err
	}
	if barrier > head {
		// Every probe in range hit missing history; the node retains no
		// usable state at all for this search.
		if whenNoHistoryReturn0 {
			return 0, nil
		}
		return 0, ErrCreationBelowRetention
	}

	present, err := hasCode(head)
	if err != nil && err != errMissingHistory {
		return 0, err
	}
	if err == nil && !present {
		return 0, fmt.Errorf("blocktime: %s has no code at head", addr.Hex())
	}

	lo, hi := barrier, head
	for lo < hi {
		mid := lo + (hi-lo)/2
		ok, err := hasCode(mid)
		if err == errMissingHistory {
			// Below the barrier we already searched past; treat as
			// "no code yet" so the search still converges upward.
			lo = mid + 1
			continue
		}
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	if lo == barrier {
		// The creation block coincides with (or lies below) the earliest
		// block the node can answer for; we cannot distinguish "created
		// exactly at the retention edge" from "created earlier."
		if whenNoHistoryReturn0 {
			return 0, nil
		}
		return 0, ErrCreationBelowRetention
	}
	return lo, nil
}

var errMissingHistory = errors.New("blocktime: missing history at probe block")

// findStateBarrier returns the lowest block b in [0, head] such that
// hasCode(b) does not report errMissingHistory, or head+1 if even the head
// itself is missing state.
func (s *Service) findStateBarrier(hasCode func(uint64) (bool, error), head uint64) (uint64, error) {
	_, err := hasCode(0)
	if err == nil {
		return 0, nil
	}
	if err != errMissingHistory {
		return 0, err
	}
	_, err = hasCode(head)
	if err == errMissingHistory {
		return head + 1, nil
	}
	if err != nil {
		return 0, err
	}

	lo, hi := uint64(0), head // missing at lo, available at hi
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		_, err := hasCode(mid)
		if err == errMissingHistory {
			lo = mid
		} else if err != nil {
			return 0, err
		} else {
			hi = mid
		}
	}
	return hi, nil
}
