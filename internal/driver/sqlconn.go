package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLConn implements the statement half of Conn on top of database/sql. The
// backend packages embed it and add the catalog operations (table listing,
// schema introspection, approximate counts) that differ per engine.
type SQLConn struct {
	DB *sql.DB
	D  Dialect

	tx *sql.Tx
}

func (c *SQLConn) Dialect() Dialect { return c.D }

func (c *SQLConn) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.DB.Close()
}

func (c *SQLConn) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// runner returns the active transaction when one is open, else the pool.
func (c *SQLConn) runner() interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
} {
	if c.tx != nil {
		return c.tx
	}
	return c.DB
}

func (c *SQLConn) Query(ctx context.Context, query string) (*ResultSet, error) {
	rows, err := c.runner().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return ScanResultSet(rows)
}

func (c *SQLConn) Exec(ctx context.Context, query string) (int64, error) {
	res, err := c.runner().ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some engines cannot report a count; treat that as zero.
		return 0, nil
	}
	return n, nil
}

func (c *SQLConn) QueryPage(ctx context.Context, req PageRequest) (*ResultSet, error) {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(c.D.QuoteIdent(req.Table))
	if req.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(req.Where)
	}
	if req.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(req.OrderBy)
	}
	fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", req.Limit, req.Offset)
	return c.Query(ctx, sb.String())
}

// CountRows is the exact-count path; backends that can estimate override it.
func (c *SQLConn) CountRows(ctx context.Context, table, where string, approx bool) (int64, bool, error) {
	n, err := c.ExactCount(ctx, table, where)
	return n, false, err
}

// ExactCount runs SELECT COUNT(*) with the given filter.
func (c *SQLConn) ExactCount(ctx context.Context, table, where string) (int64, error) {
	q := "SELECT COUNT(*) FROM " + c.D.QuoteIdent(table)
	if where != "" {
		q += " WHERE " + where
	}
	var n int64
	if err := c.DB.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *SQLConn) UpdateCell(ctx context.Context, table, column string, value Value, pk []ColumnValue) error {
	where, err := pkPredicate(c.D, pk)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s",
		c.D.QuoteIdent(table), c.D.QuoteIdent(column), value.Literal(), where)
	_, err = c.Exec(ctx, q)
	return err
}

func (c *SQLConn) InsertRow(ctx context.Context, table string, values []ColumnValue) error {
	if len(values) == 0 {
		return fmt.Errorf("insert requires at least one column value")
	}
	cols := make([]string, len(values))
	lits := make([]string, len(values))
	for i, cv := range values {
		cols[i] = c.D.QuoteIdent(cv.Column)
		lits[i] = cv.Value.Literal()
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.D.QuoteIdent(table), strings.Join(cols, ", "), strings.Join(lits, ", "))
	_, err := c.Exec(ctx, q)
	return err
}

func (c *SQLConn) DeleteRow(ctx context.Context, table string, pk []ColumnValue) error {
	where, err := pkPredicate(c.D, pk)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", c.D.QuoteIdent(table), where)
	_, err = c.Exec(ctx, q)
	return err
}

func (c *SQLConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *SQLConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	return err
}

func (c *SQLConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

// pkPredicate builds the WHERE body addressing one row by its primary key.
func pkPredicate(d Dialect, pk []ColumnValue) (string, error) {
	if len(pk) == 0 {
		return "", fmt.Errorf("table has no primary key")
	}
	parts := make([]string, len(pk))
	for i, cv := range pk {
		if cv.Value.IsNull() {
			parts[i] = d.QuoteIdent(cv.Column) + " IS NULL"
		} else {
			parts[i] = d.QuoteIdent(cv.Column) + " = " + cv.Value.Literal()
		}
	}
	return strings.Join(parts, " AND "), nil
}

// ScanResultSet decodes all rows of a database/sql result into the uniform
// ResultSet shape. A row that fails to decode aborts the scan; partial rows
// are never appended.
func ScanResultSet(rows *sql.Rows) (*ResultSet, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Columns: make([]ColumnDef, len(types))}
	for i, ct := range types {
		nullable, _ := ct.Nullable()
		rs.Columns[i] = ColumnDef{
			Name:     ct.Name(),
			Type:     KindFromTypeName(ct.DatabaseTypeName()),
			TypeName: ct.DatabaseTypeName(),
			Nullable: nullable,
		}
	}
	for rows.Next() {
		raw := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(types))
		for i, v := range raw {
			row[i] = fromDriverValue(v, rs.Columns[i].Type)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// KindFromTypeName maps a driver-reported type name to the logical kind used
// for display and editing.
func KindFromTypeName(name string) Kind {
	t := strings.ToUpper(name)
	switch {
	case t == "":
		return KindText
	case strings.Contains(t, "INT"), strings.Contains(t, "SERIAL"):
		return KindInt
	case strings.Contains(t, "BOOL"):
		return KindBool
	case strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"),
		strings.Contains(t, "REAL"), strings.Contains(t, "NUMERIC"),
		strings.Contains(t, "DECIMAL"):
		return KindFloat
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BYTEA"),
		strings.Contains(t, "BINARY"):
		return KindBlob
	default:
		return KindText
	}
}

// fromDriverValue converts one database/sql driver value to a Value. The
// declared column kind disambiguates []byte between text and blob.
func fromDriverValue(v any, kind Kind) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case int64:
		return Int(x)
	case float64:
		return Float(x)
	case bool:
		return Bool(x)
	case string:
		return Text(x)
	case time.Time:
		return Text(x.Format(time.RFC3339))
	case []byte:
		if kind == KindBlob {
			b := make([]byte, len(x))
			copy(b, x)
			return Blob(b)
		}
		return Text(string(x))
	default:
		return Text(fmt.Sprintf("%v", x))
	}
}
