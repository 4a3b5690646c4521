package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBlob
	KindBool
)

// Value is a single database cell. Exactly one variant is set, selected by
// Kind. The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
	t    bool
}

func Null() Value              { return Value{} }
func Int(v int64) Value        { return Value{kind: KindInt, i: v} }
func Float(v float64) Value    { return Value{kind: KindFloat, f: v} }
func Text(v string) Value      { return Value{kind: KindText, s: v} }
func Blob(v []byte) Value      { return Value{kind: KindBlob, b: v} }
func Bool(v bool) Value        { return Value{kind: KindBool, t: v} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Int() int64     { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Text() string   { return v.s }
func (v Value) Blob() []byte   { return v.b }
func (v Value) Bool() bool     { return v.t }

// String renders the value for display. It is total: every variant has a
// representation and NULL renders as the literal string "NULL".
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBlob:
		return fmt.Sprintf("<blob %d bytes>", len(v.b))
	case KindBool:
		if v.t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Literal renders the value as a SQL literal. Text is single-quoted with
// embedded quotes doubled; numbers and booleans are emitted bare; blobs use
// the X'..' hex form.
func (v Value) Literal() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return QuoteLiteral(v.s)
	case KindBlob:
		var sb strings.Builder
		sb.WriteString("X'")
		for _, c := range v.b {
			fmt.Fprintf(&sb, "%02x", c)
		}
		sb.WriteString("'")
		return sb.String()
	case KindBool:
		if v.t {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "NULL"
	}
}

// QuoteLiteral single-quotes s for use as a SQL string literal, doubling
// embedded single quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Row is one fixed-width record; its length always equals the owning
// ResultSet's column count.
type Row []Value

// ColumnDef describes one result or table column.
type ColumnDef struct {
	Name          string
	Type          Kind   // logical type used for display and editing
	TypeName      string // original driver-reported type text
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
}

// ResultSet is the uniform shape of every query result. Non-SELECT
// statements return no columns and no rows, with RowsAffected set.
type ResultSet struct {
	Columns      []ColumnDef
	Rows         []Row
	RowsAffected int64
}

// ColumnNames returns the column names in order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// IndexDef describes a table index.
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
	Kind    string // driver-reported index kind text (btree, hash, ...)
}

// ForeignKeyDef describes a foreign-key constraint.
type ForeignKeyDef struct {
	Columns    []string
	RefTable   string
	RefColumns []string
}

// TableSchema is the full description of one table.
type TableSchema struct {
	Name        string
	Columns     []ColumnDef
	Indexes     []IndexDef
	ForeignKeys []ForeignKeyDef
}

// PrimaryKey returns the ordered primary-key columns, or nil when the table
// has none. Cell editing requires a primary key.
func (s *TableSchema) PrimaryKey() []ColumnDef {
	var pk []ColumnDef
	for _, c := range s.Columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// ColumnIndex returns the position of the named column, or -1.
func (s *TableSchema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}
