package filter

import (
	"context"

	"github.com/yearn/yprice-go/internal/store"
)

// TraceFilter is the Filter[store.TraceRow] instantiation: fetch is a
// trace_filter/trace_block call, ordering is already insertion order (no
// further tie-break needed), and insert goes through Store.BulkInsertTraces.
type TraceFilter struct {
	*Filter[store.TraceRow]
}

// NewTraceFilter wires a Filter[store.TraceRow] over fetch/cache for one
// from/to address shape.
func NewTraceFilter(cfg Config, fetch FetchFunc[store.TraceRow], st *store.Store, cache DiskCache[store.TraceRow], headFn func(context.Context) (uint64, error)) *TraceFilter {
	insert := func(ctx context.Context, rows []store.TraceRow) error {
		if len(rows) == 0 {
			return nil
		}
		return st.BulkInsertTraces(ctx, rows)
	}
	return &TraceFilter{New(cfg, fetch, insert, cache, headFn, nil)}
}

// ObjectsThru returns every trace with fromBlock <= block <= toBlock.
func (f *TraceFilter) ObjectsThru(ctx context.Context, fromBlock, toBlock uint64) ([]store.TraceRow, error) {
	return f.Filter.ObjectsThru(ctx, fromBlock, toBlock, func(r store.TraceRow) uint64 { return r.Block })
}
