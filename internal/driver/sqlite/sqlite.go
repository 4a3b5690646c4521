// Package sqlite implements the SQLite backend over mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// Driver opens SQLite databases. The DSN is a filesystem path, either bare or
// behind a sqlite:// prefix.
type Driver struct{}

func (Driver) Scheme() string          { return "sqlite" }
func (Driver) Dialect() driver.Dialect { return driver.DialectSQLite }

func (Driver) Open(ctx context.Context, dsn string) (driver.Conn, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite handles are not safe for concurrent statements.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &conn{SQLConn: driver.SQLConn{DB: db, D: driver.DialectSQLite}, path: dsn}, nil
}

type conn struct {
	driver.SQLConn
	path string
}

func (c *conn) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := c.DB.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var seq int
		var name, file sql.NullString
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return nil, err
		}
		names = append(names, name.String)
	}
	return names, rows.Err()
}

func (c *conn) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *conn) TableSchema(ctx context.Context, table string) (*driver.TableSchema, error) {
	schema := &driver.TableSchema{Name: table}
	qt := c.D.QuoteIdent(table)

	// Column list. PRAGMA table_info reports pk ordinals >0 for key columns.
	rows, err := c.DB.QueryContext(ctx, "PRAGMA table_info("+qt+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	autoinc, err := c.hasAutoincrement(ctx, table)
	if err != nil {
		autoinc = false
	}
	for rows.Next() {
		var cid, notnull, pk int
		var name, typ string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return nil, err
		}
		col := driver.ColumnDef{
			Name:       name,
			Type:       driver.KindFromTypeName(typ),
			TypeName:   typ,
			Nullable:   notnull == 0,
			PrimaryKey: pk > 0,
		}
		// SQLite only auto-increments a single INTEGER PRIMARY KEY.
		col.AutoIncrement = col.PrimaryKey && autoinc && strings.EqualFold(typ, "INTEGER")
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

func (c *conn) hasAutoincrement(ctx context.Context, table string) (bool, error) {
	var ddl sql.NullString
	err := c.DB.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToUpper(ddl.String), "AUTOINCREMENT"), nil
}

func (c *conn) loadIndexes(ctx context.Context, schema *driver.TableSchema) error {
	rows, err := c.DB.QueryContext(ctx, "PRAGMA index_list("+c.D.QuoteIdent(schema.Name)+")")
	if err != nil {
		return err
	}
	type idx struct {
		name   string
		unique bool
		origin string
	}
	var list []idx
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			_ = rows.Close()
			return err
		}
		list = append(list, idx{name: name, unique: unique != 0, origin: origin})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, ix := range list {
		cols, err := c.indexColumns(ctx, ix.name)
		if err != nil {
			return err
		}
		schema.Indexes = append(schema.Indexes, driver.IndexDef{
			Name:    ix.name,
			Columns: cols,
			Unique:  ix.unique,
			Kind:    ix.origin,
		})
	}
	return nil
}

func (c *conn) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := c.DB.QueryContext(ctx, "PRAGMA index_info("+c.D.QuoteIdent(index)+")")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

func (c *conn) loadForeignKeys(ctx context.Context, schema *driver.TableSchema) error {
	rows, err := c.DB.QueryContext(ctx, "PRAGMA foreign_key_list("+c.D.QuoteIdent(schema.Name)+")")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	// Rows arrive one per column, grouped by constraint id.
	byID := map[int]*driver.ForeignKeyDef{}
	var order []int
	for rows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return err
		}
		fk, ok := byID[id]
		if !ok {
			fk = &driver.ForeignKeyDef{RefTable: refTable}
			byID[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, from)
		fk.RefColumns = append(fk.RefColumns, to)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range order {
		schema.ForeignKeys = append(schema.ForeignKeys, *byID[id])
	}
	return nil
}
