package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "embedded" }

func (sqliteDialect) BulkInsertSQL(table string, columns []string, rows [][]any) (string, error) {
	tuples, err := buildRowTuples(rows, sqliteBytesLiteral)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES %s", table, joinColumns(columns), strings.Join(tuples, ", ")), nil
}

func sqliteBytesLiteral(b []byte) string {
	return "X'" + hex.EncodeToString(b) + "'"
}

func sqliteColumnType(kind string) string {
	switch kind {
	case "int", "serial":
		// A lone INTEGER PRIMARY KEY column is a rowid alias in sqlite and
		// autoincrements on a NULL/omitted insert, so "serial" needs no
		// special declaration here — only Postgres needs IDENTITY.
		return "INTEGER"
	case "blob":
		return "BLOB"
	case "decimal":
		return "TEXT" // decimal(38,18) stored as canonical string, parsed back via shopspring/decimal
	case "bool":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// openSQLite opens the embedded (file-backed, pure Go) backend and returns
// the handle plus its Dialect. path is typically ~/.yprice/yprice.sqlite.
func openSQLite(path string) (*sql.DB, Dialect, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open sqlite %q: %w", path, err)
	}
	// Embedded DB: small pools per spec §4.2, and a cap of 4 open
	// connections limits "database is locked" storms; reads still fan out via the
	// Store's own executor pools rather than DB-level connections.
	db.SetMaxOpenConns(4)
	return db, sqliteDialect{}, nil
}

func sqliteTableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}
