package store

import (
	"context"
	"database/sql"
)

// LogRow is the de-interned shape BulkInsertLogs/SelectLogs exchange with
// callers; the runtime's log fetcher builds LogRows directly from
// go-ethereum logs, and the log table stores these hex strings as they
// are, not interned dbids.
type LogRow struct {
	Chain    uint64
	Block    uint64
	TxHash   string // already normalized, no 0x
	LogIndex uint16
	Address  string // normalized, no 0x
	Topic0   string
	Topic1   string // "" if absent
	Topic2   string
	Topic3   string
	Raw      []byte
}

// BulkInsertLogs appends a chunk of logs in (block, txHash, logIndex) order;
// insertion order equals chunk order (spec §3 Lifecycle).
func (s *Store) BulkInsertLogs(ctx context.Context, rows []LogRow) error {
	cols := []string{"chain", "block", "tx_hash", "log_index", "address", "topic0", "topic1", "topic2", "topic3", "raw"}
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, []any{
			r.Chain, r.Block, r.TxHash, r.LogIndex, r.Address,
			r.Topic0, nullIfEmpty(r.Topic1), nullIfEmpty(r.Topic2), nullIfEmpty(r.Topic3), r.Raw,
		})
	}
	return s.BulkInsert(ctx, "log", cols, data)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SelectLogs returns every Log row in [from, to] matching the optional
// address and topic filters, ordered by (block, tx_hash, log_index) — the
// order Testable Property 4 requires. An empty addresses slice means "all
// addresses"; topics follow the same [topic0]-or-full-array convention as
// LogCacheInfo.
func (s *Store) SelectLogs(ctx context.Context, chain uint64, from, to uint64, addresses []string, topics []string) ([]LogRow, error) {
	query := `SELECT block, tx_hash, log_index, address, topic0, topic1, topic2, topic3, raw
		FROM log WHERE chain = ? AND block >= ? AND block <= ?`
	args := []any{chain, from, to}

	if len(addresses) > 0 {
		query += " AND address IN (" + placeholders(len(addresses)) + ")"
		for _, a := range addresses {
			args = append(args, a)
		}
	}
	for i, t := range topics {
		if t == "" {
			continue
		}
		query += sqlTopicColumn(i) + " = ?"
		args = append(args, t)
	}
	query += " ORDER BY block ASC, tx_hash ASC, log_index ASC"

	rows, err := s.Query(ctx, s.pools.Log, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var r LogRow
		r.Chain = chain
		var t1, t2, t3 sql.NullString
		if err := rows.Scan(&r.Block, &r.TxHash, &r.LogIndex, &r.Address, &r.Topic0, &t1, &t2, &t3, &r.Raw); err != nil {
			return nil, err
		}
		r.Topic1, r.Topic2, r.Topic3 = t1.String, t2.String, t3.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func sqlTopicColumn(i int) string {
	switch i {
	case 0:
		return " AND topic0"
	case 1:
		return " AND topic1"
	case 2:
		return " AND topic2"
	default:
		return " AND topic3"
	}
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
