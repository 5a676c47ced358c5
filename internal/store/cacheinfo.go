package store

import (
	"context"
	"database/sql"

	"github.com/yearn/yprice-go/internal/store/entities"
)

// GetLogCacheInfo fetches the raw cached range for an exact key, if any.
func (s *Store) GetLogCacheInfo(ctx context.Context, key entities.LogCacheKey) (from, thru uint64, ok bool, err error) {
	row := s.QueryRow(ctx, s.pools.MetaRead, `SELECT cached_from, cached_thru FROM log_cache_info WHERE chain = ? AND address = ? AND topics = ?`, key.Chain, key.Address, key.Topics)
	err = row.Scan(&from, &thru)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	return from, thru, err == nil, err
}

// SetLogCacheInfo applies the union-merge rule from spec §4.4: cachedFrom
// only shrinks, cachedThru only grows, and the write commits only if
// something actually changed.
func (s *Store) SetLogCacheInfo(ctx context.Context, key entities.LogCacheKey, from, thru uint64) error {
	existingFrom, existingThru, ok, err := s.GetLogCacheInfo(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		_, err := s.Exec(ctx, s.pools.MetaWrite, `INSERT INTO log_cache_info (chain, address, topics, cached_from, cached_thru) VALUES (?, ?, ?, ?, ?)`,
			key.Chain, key.Address, key.Topics, from, thru)
		return err
	}
	newFrom, newThru := min64(existingFrom, from), max64(existingThru, thru)
	if newFrom == existingFrom && newThru == existingThru {
		return nil // nothing changed, no commit
	}
	_, err = s.Exec(ctx, s.pools.MetaWrite, `UPDATE log_cache_info SET cached_from = ?, cached_thru = ? WHERE chain = ? AND address = ? AND topics = ?`,
		newFrom, newThru, key.Chain, key.Address, key.Topics)
	return err
}

// GetTraceCacheInfo mirrors GetLogCacheInfo for the trace key shape.
func (s *Store) GetTraceCacheInfo(ctx context.Context, key entities.TraceCacheKey) (from, thru uint64, ok bool, err error) {
	row := s.QueryRow(ctx, s.pools.MetaRead, `SELECT cached_from, cached_thru FROM trace_cache_info WHERE chain = ? AND to_addresses = ? AND from_addresses = ?`, key.Chain, key.ToAddresses, key.FromAddresses)
	err = row.Scan(&from, &thru)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	return from, thru, err == nil, err
}

// SetTraceCacheInfo mirrors SetLogCacheInfo for the trace key shape.
func (s *Store) SetTraceCacheInfo(ctx context.Context, key entities.TraceCacheKey, from, thru uint64) error {
	existingFrom, existingThru, ok, err := s.GetTraceCacheInfo(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		_, err := s.Exec(ctx, s.pools.MetaWrite, `INSERT INTO trace_cache_info (chain, to_addresses, from_addresses, cached_from, cached_thru) VALUES (?, ?, ?, ?, ?)`,
			key.Chain, key.ToAddresses, key.FromAddresses, from, thru)
		return err
	}
	newFrom, newThru := min64(existingFrom, from), max64(existingThru, thru)
	if newFrom == existingFrom && newThru == existingThru {
		return nil
	}
	_, err = s.Exec(ctx, s.pools.MetaWrite, `UPDATE trace_cache_info SET cached_from = ?, cached_thru = ? WHERE chain = ? AND to_addresses = ? AND from_addresses = ?`,
		newFrom, newThru, key.Chain, key.ToAddresses, key.FromAddresses)
	return err
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
