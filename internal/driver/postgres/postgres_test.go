package postgres

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// countDriver is a minimal database/sql driver that answers only the two
// count queries, so the estimate-versus-exact choice can be exercised without
// a server.
var (
	fakeEstimate int64 // reltuples value the fake reports
	fakeExact    int64 // COUNT(*) value the fake reports
	exactCalls   atomic.Int32
)

type countDriver struct{}

func (countDriver) Open(string) (sqldriver.Conn, error) { return countConn{}, nil }

type countConn struct{}

func (countConn) Prepare(string) (sqldriver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (countConn) Close() error                 { return nil }
func (countConn) Begin() (sqldriver.Tx, error) { return nil, errors.New("not implemented") }

func (countConn) QueryContext(ctx context.Context, query string, args []sqldriver.NamedValue) (sqldriver.Rows, error) {
	switch {
	case strings.Contains(query, "reltuples"):
		return &oneRow{value: fakeEstimate}, nil
	case strings.Contains(query, "COUNT(*)"):
		exactCalls.Add(1)
		return &oneRow{value: fakeExact}, nil
	}
	return nil, errors.New("unexpected query: " + query)
}

type oneRow struct {
	value int64
	done  bool
}

func (*oneRow) Columns() []string { return []string{"n"} }
func (*oneRow) Close() error      { return nil }
func (r *oneRow) Next(dest []sqldriver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = r.value
	return nil
}

func init() { sql.Register("pgcount", countDriver{}) }

func newCountConn(t *testing.T) *conn {
	t.Helper()
	db, err := sql.Open("pgcount", "")
	if err != nil {
		t.Fatalf("open fake driver: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &conn{SQLConn: driver.SQLConn{DB: db, D: driver.DialectPostgres}}
}

func TestCountRowsUsesPositiveEstimate(t *testing.T) {
	c := newCountConn(t)
	fakeEstimate, fakeExact = 1000, 42
	before := exactCalls.Load()
	n, approx, err := c.CountRows(context.Background(), "items", "", true)
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if !approx || n != 1000 {
		t.Errorf("count = %d approx=%v, want estimate 1000", n, approx)
	}
	if exactCalls.Load() != before {
		t.Error("exact count ran despite a usable estimate")
	}
}

func TestCountRowsDistrustsZeroEstimate(t *testing.T) {
	// reltuples is 0 for a never-analyzed table even when rows exist.
	c := newCountConn(t)
	fakeEstimate, fakeExact = 0, 42
	n, approx, err := c.CountRows(context.Background(), "items", "", true)
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if approx || n != 42 {
		t.Errorf("count = %d approx=%v, want exact 42", n, approx)
	}
}

func TestCountRowsDistrustsNegativeEstimate(t *testing.T) {
	c := newCountConn(t)
	fakeEstimate, fakeExact = -1, 7
	n, approx, err := c.CountRows(context.Background(), "items", "", true)
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if approx || n != 7 {
		t.Errorf("count = %d approx=%v, want exact 7", n, approx)
	}
}

func TestCountRowsFilteredNeverEstimates(t *testing.T) {
	c := newCountConn(t)
	fakeEstimate, fakeExact = 1000, 7
	n, approx, err := c.CountRows(context.Background(), "items", `"id" > 5`, true)
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if approx || n != 7 {
		t.Errorf("count = %d approx=%v, want exact 7", n, approx)
	}
}
