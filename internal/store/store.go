// Package store is the Store of spec §4.1: transactional persistence of
// blocks, addresses, tokens, prices, interned logs/traces, and cache-range
// metadata, over either an embedded sqlite file or a networked Postgres
// database behind one schema. It is the only component permitted to touch
// the underlying *sql.DB directly (spec §5: "Direct DB access outside
// [the executors] is forbidden") — everything else in the module reaches
// the database through a *Store method.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yearn/yprice-go/internal/executor"
	"github.com/yearn/yprice-go/internal/rtlog"
)

var logger = rtlog.New("store")

// ErrSchemaMismatch is the fatal, user-visible error surfaced when the
// live database's columns don't match the compiled-in schema. Spec §4.1:
// "The system does not attempt online migration."
type ErrSchemaMismatch struct {
	Table   string
	Missing []string
}

func (e *ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("store: schema mismatch on table %q: missing/renamed columns %v — delete or migrate the database file", e.Table, e.Missing)
}

// Config selects and parameterizes a backend.
type Config struct {
	Provider string // "embedded" or "networked"
	ChainID  uint64

	SQLitePath string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
}

// Store is the single mutable, process-wide persistence resource.
type Store struct {
	db      *sql.DB
	dialect Dialect
	pools   *executor.Pools
	chainID uint64
	backend executor.Backend
}

// Open connects to the configured backend but does not yet bind/verify the
// schema; call Bind for that.
func Open(cfg Config) (*Store, error) {
	var (
		db      *sql.DB
		dialect Dialect
		backend executor.Backend
		err     error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "embedded":
		db, dialect, err = openSQLite(cfg.SQLitePath)
		backend = executor.Embedded
	case "networked":
		db, dialect, err = openPostgres(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		backend = executor.Networked
	default:
		return nil, fmt.Errorf("store: unknown DB_PROVIDER %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Store{
		db:      db,
		dialect: dialect,
		pools:   executor.NewPools(backend),
		chainID: cfg.ChainID,
		backend: backend,
	}, nil
}

// Pools exposes the named executor pools so other components (Filter,
// PriceRouter) can schedule their own DB-adjacent work on the same
// contention-isolated pools the Store itself uses.
func (s *Store) Pools() *executor.Pools { return s.pools }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) ChainID() uint64 { return s.chainID }

// Close flushes and closes the underlying connection. Per spec §5 teardown:
// un-flushed bulk inserts are acceptable to drop, since every write is
// insert-or-ignore and recomputable.
func (s *Store) Close() error {
	return s.db.Close()
}

// Bind creates the schema if absent and verifies it otherwise. A mismatch
// is fatal and user-visible; there is no online migration path.
func (s *Store) Bind(ctx context.Context) error {
	for _, t := range schema {
		exists, err := s.tableExists(ctx, t.name)
		if err != nil {
			return err
		}
		if !exists {
			if err := s.createTable(ctx, t); err != nil {
				return err
			}
			continue
		}
		if err := s.checkDrift(ctx, t); err != nil {
			return err
		}
	}
	logger.Info("schema bound", "backend", s.dialect.Name())
	return nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.dialect.Name() {
	case "embedded":
		query = `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`
	default:
		query = `SELECT table_name FROM information_schema.tables WHERE table_name = $1`
	}
	row := s.db.QueryRowContext(ctx, query, table)
	var name string
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) createTable(ctx context.Context, t tableSpec) error {
	colType := sqliteColumnType
	if s.dialect.Name() == "networked" {
		colType = pgColumnType
	}
	parts := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		parts = append(parts, c.name+" "+colType(c.kind))
	}
	parts = append(parts, "PRIMARY KEY ("+strings.Join(t.pk, ", ")+")")
	ddl := "CREATE TABLE IF NOT EXISTS " + t.name + " (" + strings.Join(parts, ", ") + ")"
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) checkDrift(ctx context.Context, t tableSpec) error {
	var (
		live map[string]bool
		err  error
	)
	if s.dialect.Name() == "embedded" {
		live, err = sqliteTableColumns(ctx, s.db, t.name)
	} else {
		live, err = pgTableColumns(ctx, s.db, t.name)
	}
	if err != nil {
		return err
	}
	var missing []string
	for _, c := range t.columns {
		if !live[c.name] {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return &ErrSchemaMismatch{Table: t.name, Missing: missing}
	}
	return nil
}

// execRetrying runs fn, wrapped in the Store-wide lock-contention retry
// policy, on the given pool.
func (s *Store) execRetrying(ctx context.Context, pool *executor.Pool, fn func() error) error {
	return pool.Run(ctx, func() error {
		return withRetry(ctx, fn)
	})
}

// BulkInsert appends rows to table, ignoring conflicts, per spec §4.1. It
// commits once per call and always runs on the write pool.
func (s *Store) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	sqlStr, err := s.dialect.BulkInsertSQL(table, columns, rows)
	if err != nil {
		return err
	}
	return s.execRetrying(ctx, s.pools.Write, func() error {
		_, err := s.db.ExecContext(ctx, sqlStr)
		return err
	})
}

// Exec runs an arbitrary statement on the given pool with the retry policy
// applied; used by entity-specific helpers (prices.go, tokens.go, cacheinfo.go)
// so they don't each reimplement pool+retry plumbing.
func (s *Store) Exec(ctx context.Context, pool *executor.Pool, query string, args ...any) (sql.Result, error) {
	query = s.rebind(query)
	var res sql.Result
	err := s.execRetrying(ctx, pool, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// QueryRow runs a single-row query directly on the database: the pool
// argument is not used and no retry policy is applied.
func (s *Store) QueryRow(ctx context.Context, pool *executor.Pool, query string, args ...any) *sql.Row {
	// QueryRow's error only surfaces on Scan, so there's nothing here for
	// the retry policy to observe; callers that need retry-on-locked for a
	// SELECT should route through Query instead.
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// Query runs a multi-row query on the given pool with the retry policy
// applied.
func (s *Store) Query(ctx context.Context, pool *executor.Pool, query string, args ...any) (*sql.Rows, error) {
	query = s.rebind(query)
	return executor.Submit(ctx, pool, func() (*sql.Rows, error) {
		var rows *sql.Rows
		err := withRetry(ctx, func() error {
			var qerr error
			rows, qerr = s.db.QueryContext(ctx, query, args...)
			return qerr
		})
		return rows, err
	})
}

// rebind translates the sqlite-style "?" placeholders every entity helper
// is written with into Postgres's "$N" positional syntax when running
// against the networked backend, so call sites don't need two query
// strings per statement.
func (s *Store) rebind(query string) string {
	if s.dialect.Name() != "networked" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
