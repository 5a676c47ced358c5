package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yearn/yprice-go/internal/store/entities"
)

// UpsertAddress records an address, insert-or-ignore; addresses never
// expire (spec §3 Lifecycle).
func (s *Store) UpsertAddress(ctx context.Context, chain uint64, addr common.Address) error {
	return s.BulkInsert(ctx, "address", []string{"chain", "address"}, [][]any{{chain, addr.Hex()}})
}

// UpsertTokenMetadata fills in symbol/name/decimals/bucket for a token,
// never overwriting a previously-known non-null value, and rejecting a
// decimals value above entities.MaxDecimals as bogus (spec §3).
func (s *Store) UpsertTokenMetadata(ctx context.Context, chain uint64, addr common.Address, symbol, name *string, decimals *uint8, bucket *string) error {
	if addr == entities.EEEAddress {
		return fmt.Errorf("store: refusing to materialize the EEE sentinel as a Token")
	}
	if err := s.UpsertAddress(ctx, chain, addr); err != nil {
		return err
	}
	if symbol != nil {
		if _, err := s.Exec(ctx, s.pools.Write, `UPDATE address SET symbol = ? WHERE chain = ? AND address = ? AND symbol IS NULL`, *symbol, chain, addr.Hex()); err != nil {
			return err
		}
	}
	if name != nil {
		if _, err := s.Exec(ctx, s.pools.Write, `UPDATE address SET name = ? WHERE chain = ? AND address = ? AND name IS NULL`, *name, chain, addr.Hex()); err != nil {
			return err
		}
	}
	if decimals != nil {
		if _, err := s.Exec(ctx, s.pools.Write, `UPDATE address SET decimals = ? WHERE chain = ? AND address = ? AND decimals IS NULL`, *decimals, chain, addr.Hex()); err != nil {
			return err
		}
	}
	if bucket != nil {
		if _, err := s.Exec(ctx, s.pools.Write, `UPDATE address SET bucket = ? WHERE chain = ? AND address = ?`, *bucket, chain, addr.Hex()); err != nil {
			return err
		}
	}
	return nil
}

// GetToken fetches whatever metadata is known for (chain, addr).
func (s *Store) GetToken(ctx context.Context, chain uint64, addr common.Address) (entities.Token, bool, error) {
	row := s.QueryRow(ctx, s.pools.MetaRead, `SELECT symbol, name, decimals, bucket, notes, deployer, deploy_block FROM address WHERE chain = ? AND address = ?`, chain, addr.Hex())
	var (
		symbol, name, bucket, notes, deployer sql.NullString
		decimals                              sql.NullInt64
		deployBlock                            sql.NullInt64
	)
	err := row.Scan(&symbol, &name, &decimals, &bucket, &notes, &deployer, &deployBlock)
	if err == sql.ErrNoRows {
		return entities.Token{}, false, nil
	}
	if err != nil {
		return entities.Token{}, false, err
	}
	tok := entities.Token{Contract: entities.Contract{Address: entities.Address{Chain: chain, Addr: addr}}}
	if symbol.Valid {
		tok.Symbol = &symbol.String
	}
	if name.Valid {
		tok.Name = &name.String
	}
	if decimals.Valid {
		d := uint8(decimals.Int64)
		tok.Decimals = &d
	}
	if bucket.Valid {
		tok.Bucket = &bucket.String
	}
	if notes.Valid {
		tok.Notes = notes.String
	}
	if deployer.Valid {
		d := common.HexToAddress(deployer.String)
		tok.Deployer = &d
	}
	if deployBlock.Valid {
		b := uint64(deployBlock.Int64)
		tok.DeployBlock = &b
	}
	return tok, true, nil
}

// SetTokenBucket persists the Bucketer's classification result, once
// computed, so restarts skip re-probing (spec §4.6).
func (s *Store) SetTokenBucket(ctx context.Context, chain uint64, addr common.Address, bucket string) error {
	if err := s.UpsertAddress(ctx, chain, addr); err != nil {
		return err
	}
	_, err := s.Exec(ctx, s.pools.Write, `UPDATE address SET bucket = ? WHERE chain = ? AND address = ?`, bucket, chain, addr.Hex())
	return err
}

// SetDeployBlock records a contract's deployment block, never decreasing it
// (spec §3).
func (s *Store) SetDeployBlock(ctx context.Context, chain uint64, addr common.Address, block uint64) error {
	if err := s.UpsertAddress(ctx, chain, addr); err != nil {
		return err
	}
	_, err := s.Exec(ctx, s.pools.Write, `
		UPDATE address SET deploy_block = ?
		WHERE chain = ? AND address = ? AND (deploy_block IS NULL OR deploy_block < ?)
	`, block, chain, addr.Hex(), block)
	return err
}
