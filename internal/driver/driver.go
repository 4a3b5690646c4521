package driver

import (
	"context"
	"strings"
)

// Dialect selects backend-specific SQL spellings: identifier quoting and the
// regex predicate. Everything else the core emits is common SQL.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
	DialectMySQL
)

// QuoteIdent quotes an identifier for the dialect: backticks for MySQL,
// double quotes elsewhere. Embedded quote characters are doubled.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// RegexPredicate emits the dialect's regex-match predicate for a quoted
// column and an unescaped pattern. SQLite has no regex without an extension,
// so it degrades to GLOB substring matching.
func (d Dialect) RegexPredicate(quotedCol, pattern string) string {
	switch d {
	case DialectMySQL:
		return quotedCol + " REGEXP " + QuoteLiteral(pattern)
	case DialectPostgres:
		return quotedCol + " ~ " + QuoteLiteral(pattern)
	default:
		return quotedCol + " GLOB " + QuoteLiteral("*"+pattern+"*")
	}
}

// PageRequest describes one windowed fetch.
type PageRequest struct {
	Table   string
	Offset  int64
	Limit   int64
	OrderBy string // pre-compiled ORDER BY body, empty for natural order
	Where   string // pre-compiled boolean expression, empty for none
}

// ColumnValue pairs a column name with a cell value, used for primary-key
// addressing and inserts.
type ColumnValue struct {
	Column string
	Value  Value
}

// Conn is one live database connection. Implementations are not safe for
// concurrent use; the task runner guarantees at most one in-flight call per
// connection.
type Conn interface {
	Close() error
	Ping(ctx context.Context) error

	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context) ([]string, error)
	TableSchema(ctx context.Context, table string) (*TableSchema, error)

	// Query runs any statement; non-SELECT statements come back with empty
	// columns and rows and RowsAffected set.
	Query(ctx context.Context, sql string) (*ResultSet, error)
	// Exec is the optimized path for statements that return no rows.
	Exec(ctx context.Context, sql string) (int64, error)
	// QueryPage fetches one window of a table.
	QueryPage(ctx context.Context, req PageRequest) (*ResultSet, error)
	// CountRows counts table rows matching where. With approx set the driver
	// may return a fast estimate; the second result reports whether it did.
	// Estimates are only used for unfiltered counts.
	CountRows(ctx context.Context, table, where string, approx bool) (int64, bool, error)

	// PK-addressed modifications. All fail when pk is empty.
	UpdateCell(ctx context.Context, table, column string, value Value, pk []ColumnValue) error
	InsertRow(ctx context.Context, table string, values []ColumnValue) error
	DeleteRow(ctx context.Context, table string, pk []ColumnValue) error

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Dialect() Dialect
}

// Driver is one backend. Open receives the DSN remainder after the scheme
// prefix has been stripped.
type Driver interface {
	Scheme() string
	Dialect() Dialect
	Open(ctx context.Context, dsn string) (Conn, error)
}
