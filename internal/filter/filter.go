// Package filter compiles typed column predicates into SQL WHERE fragments.
package filter

import (
	"math"
	"strings"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// Operator is a filter comparison operator.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpIn
	OpContains
	OpRegex
	OpIsEmpty
	OpIsNotEmpty
	OpIsNull
	OpIsNotNull
	OpRaw
)

// RawColumn marks a filter whose value is an opaque SQL boolean expression
// rather than a column predicate.
const RawColumn = uint32(math.MaxUint32)

// MaxValueLen bounds filter value text.
const MaxValueLen = 256

type opInfo struct {
	name       string
	symbol     string // SQL comparison symbol for the relational operators
	needsValue bool
}

var opTable = [...]opInfo{
	OpEq:         {name: "eq", symbol: "=", needsValue: true},
	OpNe:         {name: "ne", symbol: "<>", needsValue: true},
	OpGt:         {name: "gt", symbol: ">", needsValue: true},
	OpGe:         {name: "ge", symbol: ">=", needsValue: true},
	OpLt:         {name: "lt", symbol: "<", needsValue: true},
	OpLe:         {name: "le", symbol: "<=", needsValue: true},
	OpIn:         {name: "in", needsValue: true},
	OpContains:   {name: "contains", needsValue: true},
	OpRegex:      {name: "regex", needsValue: true},
	OpIsEmpty:    {name: "empty", needsValue: false},
	OpIsNotEmpty: {name: "notempty", needsValue: false},
	OpIsNull:     {name: "null", needsValue: false},
	OpIsNotNull:  {name: "notnull", needsValue: false},
	OpRaw:        {name: "raw", needsValue: true},
}

func (o Operator) valid() bool      { return o >= OpEq && o <= OpRaw }
func (o Operator) NeedsValue() bool { return o.valid() && opTable[o].needsValue }

// String returns the operator's stable name, used by session persistence.
func (o Operator) String() string {
	if !o.valid() {
		return "eq"
	}
	return opTable[o].name
}

// ParseOperator is the inverse of String. Unknown names parse as OpEq.
func ParseOperator(name string) Operator {
	for op, info := range opTable {
		if info.name == name {
			return Operator(op)
		}
	}
	return OpEq
}

// ColumnFilter is one predicate against one column. ColumnIndex == RawColumn
// makes Value an opaque boolean fragment.
type ColumnFilter struct {
	ColumnIndex uint32
	Op          Operator
	Value       string
}

// Vacuous reports whether the filter contributes nothing: an operator that
// needs a value was given an empty one.
func (f ColumnFilter) Vacuous() bool {
	return f.Op.NeedsValue() && strings.TrimSpace(f.Value) == ""
}

// Compile turns a filter list into a single SQL boolean expression for the
// dialect. It returns ok=false when no filter survives. Filters referencing
// columns outside the schema are silently skipped; semantic problems degrade
// to omission or a guaranteed-empty predicate, never an error.
func Compile(filters []ColumnFilter, schema *driver.TableSchema, d driver.Dialect) (string, bool) {
	var parts []string
	for _, f := range filters {
		if frag, ok := compileOne(f, schema, d); ok {
			parts = append(parts, frag)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " AND "), true
}

func compileOne(f ColumnFilter, schema *driver.TableSchema, d driver.Dialect) (string, bool) {
	if !f.Op.valid() || f.Vacuous() {
		return "", false
	}
	if f.ColumnIndex == RawColumn || f.Op == OpRaw {
		return "(" + f.Value + ")", true
	}
	if schema == nil || int(f.ColumnIndex) >= len(schema.Columns) {
		return "", false
	}
	col := d.QuoteIdent(schema.Columns[f.ColumnIndex].Name)

	switch f.Op {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		return col + " " + opTable[f.Op].symbol + " " + driver.QuoteLiteral(f.Value), true
	case OpIn:
		return col + " IN (" + compileValueList(f.Value) + ")", true
	case OpContains:
		return col + " LIKE " + driver.QuoteLiteral("%"+f.Value+"%"), true
	case OpRegex:
		return d.RegexPredicate(col, f.Value), true
	case OpIsEmpty:
		return col + " = ''", true
	case OpIsNotEmpty:
		return col + " <> ''", true
	case OpIsNull:
		return col + " IS NULL", true
	case OpIsNotNull:
		return col + " IS NOT NULL", true
	default:
		return "", false
	}
}

// compileValueList parses a user-typed IN list into SQL literals. Items may be
// bare (classified numeric or string), single-quoted, or double-quoted. An
// empty list compiles to NULL, which matches no row.
func compileValueList(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	var lits []string
	for _, item := range splitListItems(s) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		switch {
		case len(item) >= 2 && (item[0] == '\'' || item[0] == '"') && item[len(item)-1] == item[0]:
			lits = append(lits, driver.QuoteLiteral(item[1:len(item)-1]))
		case isNumericItem(item):
			lits = append(lits, item)
		default:
			lits = append(lits, driver.QuoteLiteral(item))
		}
	}
	if len(lits) == 0 {
		return "NULL"
	}
	return strings.Join(lits, ", ")
}

// splitListItems splits on commas outside quotes.
func splitListItems(s string) []string {
	var items []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			items = append(items, s[start:i])
			start = i + 1
		}
	}
	return append(items, s[start:])
}

func isNumericItem(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && c != '.' && c != '+' && c != '-' {
			return false
		}
	}
	return true
}
