package store

import "context"

// TraceRow mirrors LogRow for the trace stream.
type TraceRow struct {
	Chain       uint64
	Block       uint64
	Hash        string
	FromAddress string
	ToAddress   string
	Raw         []byte
}

// BulkInsertTraces appends a chunk of traces, per-block insertion order
// preserved by the caller (the Filter's in-order commit chain).
func (s *Store) BulkInsertTraces(ctx context.Context, rows []TraceRow) error {
	cols := []string{"chain", "block", "hash", "from_address", "to_address", "raw"}
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, []any{r.Chain, r.Block, r.Hash, r.FromAddress, r.ToAddress, r.Raw})
	}
	return s.BulkInsert(ctx, "trace", cols, data)
}

// SelectTraces returns trace rows in [from, to] for the given from/to
// address filters (empty means "any"), in insertion (id) order.
func (s *Store) SelectTraces(ctx context.Context, chain uint64, from, to uint64, fromAddrs, toAddrs []string) ([]TraceRow, error) {
	query := `SELECT block, hash, from_address, to_address, raw FROM trace WHERE chain = ? AND block >= ? AND block <= ?`
	args := []any{chain, from, to}
	if len(fromAddrs) > 0 {
		query += " AND from_address IN (" + placeholders(len(fromAddrs)) + ")"
		for _, a := range fromAddrs {
			args = append(args, a)
		}
	}
	if len(toAddrs) > 0 {
		query += " AND to_address IN (" + placeholders(len(toAddrs)) + ")"
		for _, a := range toAddrs {
			args = append(args, a)
		}
	}
	query += " ORDER BY id ASC"

	rows, err := s.Query(ctx, s.pools.Trace, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceRow
	for rows.Next() {
		var r TraceRow
		r.Chain = chain
		if err := rows.Scan(&r.Block, &r.Hash, &r.FromAddress, &r.ToAddress, &r.Raw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
