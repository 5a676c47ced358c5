package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// FetchLogsConcurrently splits [from, to] into chunkSize ranges and fans
// them out to eth_getLogs with at most dop calls in flight at once
// (GETLOGS_DOP), returning results in range order once every range has
// completed. Used by LogFilter fetch functions that want intra-chunk
// parallelism in addition to the Filter engine's own chunk pipelining.
func FetchLogsConcurrently(ctx context.Context, c Client, chain uint64, addresses []common.Address, topics [][]common.Hash, from, to, chunkSize uint64, dop int) ([][]RawLog, error) {
	if dop <= 0 {
		dop = 1
	}
	type rng struct{ from, to uint64 }
	var ranges []rng
	for start := from; start <= to; start += chunkSize {
		end := start + chunkSize - 1
		if end > to {
			end = to
		}
		ranges = append(ranges, rng{start, end})
	}

	out := make([][]RawLog, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dop)

	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			logs, err := GetLogsRange(gctx, c, addresses, topics, r.from, r.to)
			if err != nil {
				return err
			}
			out[i] = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RawLog is the query-shape-agnostic log result GetLogsRange returns; it's
// a type alias boundary so callers don't need to import go-ethereum's core
// types package just to hold a slice around.
type RawLog = struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
}

func GetLogsRange(ctx context.Context, c Client, addresses []common.Address, topics [][]common.Hash, from, to uint64) ([]RawLog, error) {
	filterQuery := buildFilterQuery(addresses, topics, from, to)
	logs, err := c.GetLogs(ctx, filterQuery)
	if err != nil {
		return nil, err
	}
	out := make([]RawLog, len(logs))
	for i, lg := range logs {
		out[i] = RawLog{
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
			LogIndex:    lg.Index,
			Address:     lg.Address,
			Topics:      lg.Topics,
			Data:        lg.Data,
		}
	}
	return out, nil
}
