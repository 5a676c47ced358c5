package store

import (
	"fmt"
	"strings"
	"time"
)

// Dialect captures the handful of SQL-surface differences between the
// embedded and networked backends: conflict-handling syntax and literal
// stringification. Everything else (schema, query shape, retry policy)
// is shared.
type Dialect interface {
	Name() string
	// BulkInsertSQL builds one "insert and ignore conflicts" statement for
	// table, inserting columns from rows. Per spec §4.1.
	BulkInsertSQL(table string, columns []string, rows [][]any) (string, error)
}

// stringifyValue renders a single column value per spec §4.1's rules. bytesFn
// encodes a []byte column literal, since that's the one rule that differs
// between backends.
func stringifyValue(v any, bytesFn func([]byte) string) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case []byte:
		return bytesFn(x), nil
	case string:
		return quoteString(x), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32, float64:
		return fmt.Sprintf("%v", x), nil
	case fmt.Stringer:
		// decimal.Decimal and similar numeric-ish types stringify exactly.
		return x.String(), nil
	case time.Time:
		return quoteString(x.UTC().Format(time.RFC3339Nano)), nil
	default:
		return "", fmt.Errorf("store: stringify: type %T not implemented", v)
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func buildRowTuples(rows [][]any, bytesFn func([]byte) string) ([]string, error) {
	tuples := make([]string, 0, len(rows))
	for _, row := range rows {
		vals := make([]string, 0, len(row))
		for _, v := range row {
			s, err := stringifyValue(v, bytesFn)
			if err != nil {
				return nil, err
			}
			vals = append(vals, s)
		}
		tuples = append(tuples, "("+strings.Join(vals, ", ")+")")
	}
	return tuples, nil
}
