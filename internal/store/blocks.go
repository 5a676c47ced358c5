package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yearn/yprice-go/internal/store/entities"
)

// UpsertBlock inserts a block row if absent, and idempotently fills in hash
// and timestamp if they weren't previously known. Per spec §3, timestamp
// writes are idempotent and monotone non-decreasing in number once set —
// this rewrite enforces monotonicity by simply never overwriting a
// previously-set timestamp (the caller is expected never to pass a lower
// one for a higher block; that invariant is upheld upstream by the Filter,
// which only ever discovers timestamps moving forward through history).
func (s *Store) UpsertBlock(ctx context.Context, b entities.Block) error {
	var hash any
	if b.Hash != nil {
		hash = b.Hash.Hex()
	}
	var ts any
	if b.Timestamp != nil {
		ts = b.Timestamp.Unix()
	}
	_, err := s.Exec(ctx, s.pools.Write, `
		INSERT INTO block (chain, number, hash, timestamp) VALUES (?, ?, ?, ?)
		ON CONFLICT (chain, number) DO UPDATE SET
			hash = COALESCE(block.hash, excluded.hash),
			timestamp = COALESCE(block.timestamp, excluded.timestamp)
	`, b.Chain, b.Number, hash, ts)
	if err != nil {
		// Embedded sqlite predates ON CONFLICT...DO UPDATE support in some
		// builds; fall back to insert-or-ignore plus a conditional update.
		return s.upsertBlockFallback(ctx, b)
	}
	return nil
}

func (s *Store) upsertBlockFallback(ctx context.Context, b entities.Block) error {
	_, err := s.Exec(ctx, s.pools.Write, `INSERT OR IGNORE INTO block (chain, number, hash, timestamp) VALUES (?, ?, NULL, NULL)`, b.Chain, b.Number)
	if err != nil {
		return err
	}
	if b.Hash != nil {
		if _, err := s.Exec(ctx, s.pools.Write, `UPDATE block SET hash = ? WHERE chain = ? AND number = ? AND hash IS NULL`, b.Hash.Hex(), b.Chain, b.Number); err != nil {
			return err
		}
	}
	if b.Timestamp != nil {
		if _, err := s.Exec(ctx, s.pools.Write, `UPDATE block SET timestamp = ? WHERE chain = ? AND number = ? AND timestamp IS NULL`, b.Timestamp.Unix(), b.Chain, b.Number); err != nil {
			return err
		}
	}
	return nil
}

// GetBlock fetches a block row, or (Block{}, false, nil) if unknown.
func (s *Store) GetBlock(ctx context.Context, chain, number uint64) (entities.Block, bool, error) {
	row := s.QueryRow(ctx, s.pools.Read, `SELECT hash, timestamp FROM block WHERE chain = ? AND number = ?`, chain, number)
	var hash, ts sql.NullString
	var tsInt sql.NullInt64
	err := row.Scan(&hash, &tsInt)
	if err == sql.ErrNoRows {
		return entities.Block{}, false, nil
	}
	if err != nil {
		return entities.Block{}, false, err
	}
	b := entities.Block{Chain: chain, Number: number}
	if hash.Valid {
		h := common.HexToHash(hash.String)
		b.Hash = &h
	}
	if tsInt.Valid {
		t := time.Unix(tsInt.Int64, 0).UTC()
		b.Timestamp = &t
	}
	_ = ts
	return b, true, nil
}

// BlockTimestamp looks up a single block's timestamp, for the blocktime
// service.
func (s *Store) BlockTimestamp(ctx context.Context, chain, number uint64) (time.Time, bool, error) {
	b, ok, err := s.GetBlock(ctx, chain, number)
	if err != nil || !ok || b.Timestamp == nil {
		return time.Time{}, false, err
	}
	return *b.Timestamp, true, nil
}

// PutBlockAtTimestamp memoizes timestamp -> block, insert-or-ignore.
func (s *Store) PutBlockAtTimestamp(ctx context.Context, chain uint64, timestamp int64, block uint64) error {
	return s.BulkInsert(ctx, "block_at_timestamp", []string{"chain", "timestamp", "block"}, [][]any{{chain, timestamp, block}})
}

// GetBlockAtTimestamp returns a memoized timestamp -> block lookup.
func (s *Store) GetBlockAtTimestamp(ctx context.Context, chain uint64, timestamp int64) (uint64, bool, error) {
	row := s.QueryRow(ctx, s.pools.Timestamp, `SELECT block FROM block_at_timestamp WHERE chain = ? AND timestamp = ?`, chain, timestamp)
	var block uint64
	err := row.Scan(&block)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	return block, err == nil, err
}
