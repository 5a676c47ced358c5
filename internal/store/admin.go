package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TableInfo is one row of a `db info` report: the table name and its
// current row count on this chain.
type TableInfo struct {
	Table string
	Rows  int64
}

// Info reports a row count per table for the bound chain, for the `db
// info` CLI command (spec §6.3).
func (s *Store) Info(ctx context.Context) ([]TableInfo, error) {
	out := make([]TableInfo, 0, len(schema))
	for _, t := range schema {
		query := "SELECT COUNT(*) FROM " + t.name
		if hasColumn(t, "chain") {
			query += fmt.Sprintf(" WHERE chain = %d", s.chainID)
		}
		row := s.QueryRow(ctx, s.pools.MetaRead, query)
		var n int64
		if err := row.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: info: count %s: %w", t.name, err)
		}
		out = append(out, TableInfo{Table: t.name, Rows: n})
	}
	return out, nil
}

func hasColumn(t tableSpec, name string) bool {
	for _, c := range t.columns {
		if c.name == name {
			return true
		}
	}
	return false
}

// TokenBySymbol resolves a case-sensitive symbol to the address that
// reported it, for the CLI's `db clear --token SYM` form (spec §6.3: "ADDR
// or SYM"). An ambiguous symbol (more than one address) is itself a usage
// error left to the caller to report.
func (s *Store) TokenBySymbol(ctx context.Context, symbol string) (common.Address, bool, error) {
	row := s.QueryRow(ctx, s.pools.MetaRead, `SELECT address FROM address WHERE chain = ? AND symbol = ?`, s.chainID, symbol)
	var addr string
	err := row.Scan(&addr)
	if err == sql.ErrNoRows {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	return common.HexToAddress(addr), true, nil
}

// Vacuum reclaims disk space: VACUUM on the embedded sqlite file, or ANALYZE
// on the networked backend (Postgres's VACUUM cannot run inside the
// transaction-implying driver path every other Store method uses, and
// ANALYZE is the operation that actually helps query planning there).
func (s *Store) Vacuum(ctx context.Context) error {
	stmt := "VACUUM"
	if s.dialect.Name() == "networked" {
		stmt = "ANALYZE"
	}
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// ClearToken deletes every Price row for one token on this chain, for `db
// clear --token`.
func (s *Store) ClearToken(ctx context.Context, addr common.Address) error {
	_, err := s.Exec(ctx, s.pools.Write, `DELETE FROM price WHERE chain = ? AND token = ?`, s.chainID, addr.Hex())
	return err
}

// ClearBlock deletes every Price row at exactly one block on this chain,
// for `db clear --block`.
func (s *Store) ClearBlock(ctx context.Context, block uint64) error {
	_, err := s.Exec(ctx, s.pools.Write, `DELETE FROM price WHERE chain = ? AND block = ?`, s.chainID, block)
	return err
}

// Nuke drops every table's rows for this chain (or, for the chain-agnostic
// interning tables, every row outright) — the `db nuke` destructive reset.
// Callers are expected to have already gated this behind --force.
func (s *Store) Nuke(ctx context.Context) error {
	for _, t := range schema {
		var err error
		if hasColumn(t, "chain") {
			_, err = s.Exec(ctx, s.pools.Write, "DELETE FROM "+t.name+" WHERE chain = ?", s.chainID)
		} else {
			_, err = s.Exec(ctx, s.pools.Write, "DELETE FROM "+t.name)
		}
		if err != nil {
			return fmt.Errorf("store: nuke %s: %w", t.name, err)
		}
	}
	return nil
}
