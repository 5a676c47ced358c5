package store

import (
	"context"
	"database/sql"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PutPrice writes the opportunistic memo from a successful price resolution.
// Write-once per (block, token): a concurrent second compute colliding with
// a prior insert is ignored (spec §3, §5). The token's address row is
// recorded first, insert-or-ignore.
func (s *Store) PutPrice(ctx context.Context, chain, block uint64, token common.Address, price decimal.Decimal) error {
	if err := s.UpsertAddress(ctx, chain, token); err != nil {
		return err
	}
	return s.BulkInsert(ctx, "price", []string{"chain", "block", "token", "price"}, [][]any{{chain, block, token.Hex(), price}})
}

// GetPrice returns a previously memoized price, if any.
func (s *Store) GetPrice(ctx context.Context, chain, block uint64, token common.Address) (decimal.Decimal, bool, error) {
	row := s.QueryRow(ctx, s.pools.Read, `SELECT price FROM price WHERE chain = ? AND block = ? AND token = ?`, chain, block, token.Hex())
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return d, true, nil
}
