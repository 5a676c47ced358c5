package store

import (
	"context"
	"database/sql"
	"strings"
)

// normalizeHex strips a leading "0x"/"0X" and lowercases, per spec §3/§8
// property 5: interned values are stored without the prefix, lowercase hex.
func normalizeHex(s string) string {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strings.ToLower(s)
}

// InternTopic interns a 32-byte topic and returns its surrogate dbid.
func (s *Store) InternTopic(ctx context.Context, topic string) (int64, error) {
	norm := normalizeHex(topic)
	if err := s.BulkInsert(ctx, "log_topic", []string{"topic"}, [][]any{{norm}}); err != nil {
		return 0, err
	}
	row := s.QueryRow(ctx, s.pools.MetaRead, `SELECT dbid FROM log_topic WHERE topic = ?`, norm)
	var dbid int64
	err := row.Scan(&dbid)
	return dbid, err
}

// InternHash interns a tx-hash or address used by a Log row and returns its
// surrogate dbid.
func (s *Store) InternHash(ctx context.Context, hash string) (int64, error) {
	norm := normalizeHex(hash)
	if err := s.BulkInsert(ctx, "hashes", []string{"hash"}, [][]any{{norm}}); err != nil {
		return 0, err
	}
	row := s.QueryRow(ctx, s.pools.MetaRead, `SELECT dbid FROM hashes WHERE hash = ?`, norm)
	var dbid int64
	err := row.Scan(&dbid)
	return dbid, err
}

// LookupTopic resolves a previously interned topic dbid back to its
// normalized hex string, or ("", false, nil) if unknown.
func (s *Store) LookupTopic(ctx context.Context, dbid int64) (string, bool, error) {
	row := s.QueryRow(ctx, s.pools.MetaRead, `SELECT topic FROM log_topic WHERE dbid = ?`, dbid)
	var topic string
	err := row.Scan(&topic)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return topic, err == nil, err
}
