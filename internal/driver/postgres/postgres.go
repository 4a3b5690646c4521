// Package postgres implements the PostgreSQL backend over jackc/pgx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// Driver opens PostgreSQL databases. The DSN is the remainder of a
// postgres:// connection string.
type Driver struct{}

func (Driver) Scheme() string          { return "postgres" }
func (Driver) Dialect() driver.Dialect { return driver.DialectPostgres }

func (Driver) Open(ctx context.Context, dsn string) (driver.Conn, error) {
	db, err := sql.Open("pgx", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &conn{SQLConn: driver.SQLConn{DB: db, D: driver.DialectPostgres}}, nil
}

type conn struct {
	driver.SQLConn
}

func (c *conn) ListDatabases(ctx context.Context) ([]string, error) {
	return c.stringColumn(ctx, `
		SELECT datname FROM pg_catalog.pg_database
		WHERE NOT datistemplate
		ORDER BY datname`)
}

func (c *conn) ListTables(ctx context.Context) ([]string, error) {
	return c.stringColumn(ctx, `
		SELECT tablename FROM pg_catalog.pg_tables
		WHERE schemaname = 'public'
		ORDER BY tablename`)
}

func (c *conn) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *conn) TableSchema(ctx context.Context, table string) (*driver.TableSchema, error) {
	schema := &driver.TableSchema{Name: table}

	rows, err := c.DB.QueryContext(ctx, `
		SELECT
			a.column_name,
			a.data_type,
			a.is_nullable = 'YES',
			a.column_default LIKE 'nextval(%' OR a.is_identity = 'YES'
		FROM information_schema.columns a
		WHERE a.table_schema = 'public' AND a.table_name = $1
		ORDER BY a.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	for rows.Next() {
		var col driver.ColumnDef
		var autoinc sql.NullBool
		if err := rows.Scan(&col.Name, &col.TypeName, &col.Nullable, &autoinc); err != nil {
			_ = rows.Close()
			return nil, err
		}
		col.Type = driver.KindFromTypeName(col.TypeName)
		col.AutoIncrement = autoinc.Valid && autoinc.Bool
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("no such table: %s", table)
	}

	pkCols, err := c.stringColumn(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = ('public.' || quote_ident($1))::regclass AND i.indisprimary
		ORDER BY array_position(i.indkey, a.attnum)`, table)
	if err == nil {
		for _, name := range pkCols {
			if i := schema.ColumnIndex(name); i >= 0 {
				schema.Columns[i].PrimaryKey = true
			}
		}
	}

	if err := c.loadIndexes(ctx, schema); err != nil {
		return nil, err
	}
	if err := c.loadForeignKeys(ctx, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (c *conn) loadIndexes(ctx context.Context, schema *driver.TableSchema) error {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT
			ic.relname,
			am.amname,
			ix.indisunique,
			array_to_string(ARRAY(
				SELECT pg_get_indexdef(ix.indexrelid, k + 1, true)
				FROM generate_subscripts(ix.indkey, 1) AS k
				ORDER BY k
			), ',')
		FROM pg_index ix
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_class tc ON tc.oid = ix.indrelid
		JOIN pg_am am ON am.oid = ic.relam
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		WHERE n.nspname = 'public' AND tc.relname = $1
		ORDER BY ic.relname`, schema.Name)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ix driver.IndexDef
		var cols string
		if err := rows.Scan(&ix.Name, &ix.Kind, &ix.Unique, &cols); err != nil {
			return err
		}
		ix.Columns = splitCSV(cols)
		schema.Indexes = append(schema.Indexes, ix)
	}
	return rows.Err()
}

func (c *conn) loadForeignKeys(ctx context.Context, schema *driver.TableSchema) error {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = 'public'
			AND tc.table_name = $1
		ORDER BY tc.constraint_name, kcu.ordinal_position`, schema.Name)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*driver.ForeignKeyDef{}
	var order []string
	for rows.Next() {
		var name, col, refTable, refCol string
		if err := rows.Scan(&name, &col, &refTable, &refCol); err != nil {
			return err
		}
		fk, ok := byName[name]
		if !ok {
			fk = &driver.ForeignKeyDef{RefTable: refTable}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, col)
		fk.RefColumns = append(fk.RefColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range order {
		schema.ForeignKeys = append(schema.ForeignKeys, *byName[name])
	}
	return nil
}

// CountRows uses the planner's reltuples estimate for unfiltered counts when
// the caller allows it. reltuples is -1 before the first ANALYZE and 0 for
// never-analyzed tables that do have rows, so only a positive estimate is
// trusted; everything else falls back to an exact count.
func (c *conn) CountRows(ctx context.Context, table, where string, approx bool) (int64, bool, error) {
	if approx && where == "" {
		var estimate int64
		err := c.DB.QueryRowContext(ctx, `
			SELECT reltuples::bigint FROM pg_class
			WHERE oid = ('public.' || quote_ident($1))::regclass`, table).Scan(&estimate)
		if err == nil && estimate > 0 {
			return estimate, true, nil
		}
	}
	n, err := c.ExactCount(ctx, table, where)
	return n, false, err
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
