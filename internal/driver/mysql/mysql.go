// Package mysql implements the MySQL/MariaDB backend over go-sql-driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// Driver opens MySQL and MariaDB databases. The DSN is the remainder of a
// mysql:// connection string: user[:pass]@host[:port]/db.
type Driver struct{}

func (Driver) Scheme() string          { return "mysql" }
func (Driver) Dialect() driver.Dialect { return driver.DialectMySQL }

func (Driver) Open(ctx context.Context, dsn string) (driver.Conn, error) {
	native, err := toNativeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", native)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &conn{SQLConn: driver.SQLConn{DB: db, D: driver.DialectMySQL}}, nil
}

// toNativeDSN rewrites user[:pass]@host[:port]/db into go-sql-driver's
// user[:pass]@tcp(host:port)/db form.
func toNativeDSN(dsn string) (string, error) {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return "", fmt.Errorf("mysql connection string needs user@host: %q", dsn)
	}
	cred := dsn[:at]
	rest := dsn[at+1:]

	host := rest
	var db string
	if slash := strings.Index(rest, "/"); slash >= 0 {
		host = rest[:slash]
		db = rest[slash+1:]
	}
	if host == "" {
		host = "localhost"
	}
	if !strings.Contains(host, ":") {
		host += ":3306"
	}
	return fmt.Sprintf("%s@tcp(%s)/%s", cred, host, db), nil
}

type conn struct {
	driver.SQLConn
}

func (c *conn) ListDatabases(ctx context.Context) ([]string, error) {
	return c.stringColumn(ctx, "SHOW DATABASES")
}

func (c *conn) ListTables(ctx context.Context) ([]string, error) {
	return c.stringColumn(ctx, "SHOW TABLES")
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
		SELECT column_name, column_type, is_nullable = 'YES',
		       column_key = 'PRI', extra LIKE '%auto_increment%'
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	for rows.Next() {
		var col driver.ColumnDef
		if err := rows.Scan(&col.Name, &col.TypeName, &col.Nullable, &col.PrimaryKey, &col.AutoIncrement); err != nil {
			_ = rows.Close()
			return nil, err
		}
		col.Type = driver.KindFromTypeName(col.TypeName)
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
		SELECT index_name, index_type, non_unique = 0, column_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY index_name, seq_in_index`, schema.Name)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*driver.IndexDef{}
	var order []string
	for rows.Next() {
		var name, kind, col string
		var unique bool
		if err := rows.Scan(&name, &kind, &unique, &col); err != nil {
			return err
		}
		ix, ok := byName[name]
		if !ok {
			ix = &driver.IndexDef{Name: name, Kind: kind, Unique: unique}
			byName[name] = ix
			order = append(order, name)
		}
		ix.Columns = append(ix.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range order {
		schema.Indexes = append(schema.Indexes, *byName[name])
	}
	return nil
}

func (c *conn) loadForeignKeys(ctx context.Context, schema *driver.TableSchema) error {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ?
		      AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position`, schema.Name)
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

// CountRows uses information_schema's row estimate for unfiltered counts when
// allowed; InnoDB estimates are approximate by design.
func (c *conn) CountRows(ctx context.Context, table, where string, approx bool) (int64, bool, error) {
	if approx && where == "" {
		var estimate sql.NullInt64
		err := c.DB.QueryRowContext(ctx, `
			SELECT table_rows FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_name = ?`, table).Scan(&estimate)
		if err == nil && estimate.Valid && estimate.Int64 >= 0 {
			return estimate.Int64, true, nil
		}
	}
	n, err := c.ExactCount(ctx, table, where)
	return n, false, err
}
