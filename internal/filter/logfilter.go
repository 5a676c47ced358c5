package filter

import (
	"context"

	"github.com/yearn/yprice-go/internal/store"
)

// LogFilter is the Filter[store.LogRow] instantiation: fetch is an
// eth_getLogs call, ordering breaks ties by (txHash, logIndex), and insert
// goes through Store.BulkInsertLogs.
type LogFilter struct {
	*Filter[store.LogRow]
}

// NewLogFilter wires a Filter[store.LogRow] over fetch/cache for one
// address+topic shape.
func NewLogFilter(cfg Config, fetch FetchFunc[store.LogRow], st *store.Store, cache DiskCache[store.LogRow], headFn func(context.Context) (uint64, error)) *LogFilter {
	insert := func(ctx context.Context, rows []store.LogRow) error {
		if len(rows) == 0 {
			return nil
		}
		return st.BulkInsertLogs(ctx, rows)
	}
	less := func(a, b store.LogRow) bool {
		if a.Block != b.Block {
			return a.Block < b.Block
		}
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		return a.LogIndex < b.LogIndex
	}
	return &LogFilter{New(cfg, fetch, insert, cache, headFn, less)}
}

// ObjectsThru returns every log with fromBlock <= block <= toBlock in
// (block, txHash, logIndex) order.
func (f *LogFilter) ObjectsThru(ctx context.Context, fromBlock, toBlock uint64) ([]store.LogRow, error) {
	return f.Filter.ObjectsThru(ctx, fromBlock, toBlock, func(r store.LogRow) uint64 { return r.Block })
}
