package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type pgDialect struct{}

func (pgDialect) Name() string { return "networked" }

func (pgDialect) BulkInsertSQL(table string, columns []string, rows [][]any) (string, error) {
	tuples, err := buildRowTuples(rows, pgBytesLiteral)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING", table, joinColumns(columns), strings.Join(tuples, ", ")), nil
}

func pgBytesLiteral(b []byte) string {
	return "'\\x" + fmt.Sprintf("%x", b) + "'::bytea"
}

func pgColumnType(kind string) string {
	switch kind {
	case "int":
		return "BIGINT"
	case "serial":
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY"
	case "blob":
		return "BYTEA"
	case "decimal":
		return "NUMERIC(38,18)"
	case "bool":
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

// openPostgres opens the networked backend over database/sql using the
// pure-Go pgx driver (grounded: pack manifests carrying jackc/pgx as their
// Postgres driver, e.g. sbaichwal-chainlink, manifoldfinance-optimism).
func openPostgres(host string, port int, user, password, dbname string) (*sql.DB, Dialect, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, password, host, port, dbname)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open postgres: %w", err)
	}
	// Networked backend tolerates more concurrent connections than the
	// embedded one; bulk/write traffic still funnels through the Store's
	// named executor pools, this just bounds the underlying transport.
	db.SetMaxOpenConns(32)
	return db, pgDialect{}, nil
}

func pgTableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}
