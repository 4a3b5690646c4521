package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// fakeConn serves a virtual table of sequential rows and records how it is
// queried.
type fakeConn struct {
	total       int64 // rows actually in the table
	approxTotal int64 // estimate reported for approximate counts; 0 disables

	mu          sync.Mutex
	pageCalls   int
	countCalls  int
	inFlight    int
	maxInFlight int
	gate        chan struct{} // when set, QueryPage blocks until closed
}

func (f *fakeConn) Close() error                                  { return nil }
func (f *fakeConn) Ping(ctx context.Context) error                { return nil }
func (f *fakeConn) ListDatabases(ctx context.Context) ([]string, error) { return []string{"main"}, nil }
func (f *fakeConn) ListTables(ctx context.Context) ([]string, error)    { return []string{"items"}, nil }

func (f *fakeConn) TableSchema(ctx context.Context, table string) (*driver.TableSchema, error) {
	return &driver.TableSchema{
		Name: table,
		Columns: []driver.ColumnDef{
			{Name: "id", Type: driver.KindInt, PrimaryKey: true},
			{Name: "name", Type: driver.KindText},
		},
	}, nil
}

func (f *fakeConn) Query(ctx context.Context, sql string) (*driver.ResultSet, error) {
	return &driver.ResultSet{}, nil
}
func (f *fakeConn) Exec(ctx context.Context, sql string) (int64, error) { return 0, nil }

func (f *fakeConn) QueryPage(ctx context.Context, req driver.PageRequest) (*driver.ResultSet, error) {
	f.mu.Lock()
	f.pageCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	rs := &driver.ResultSet{
		Columns: []driver.ColumnDef{
			{Name: "id", Type: driver.KindInt, PrimaryKey: true},
			{Name: "name", Type: driver.KindText},
		},
	}
	for i := req.Offset; i < req.Offset+req.Limit && i < f.total; i++ {
		rs.Rows = append(rs.Rows, driver.Row{driver.Int(i), driver.Text(fmt.Sprintf("row-%d", i))})
	}
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return rs, nil
}

func (f *fakeConn) CountRows(ctx context.Context, table, where string, approx bool) (int64, bool, error) {
	f.mu.Lock()
	f.countCalls++
	f.mu.Unlock()
	if approx && f.approxTotal > 0 {
		return f.approxTotal, true, nil
	}
	return f.total, false, nil
}

func (f *fakeConn) UpdateCell(ctx context.Context, table, column string, value driver.Value, pk []driver.ColumnValue) error {
	return nil
}
func (f *fakeConn) InsertRow(ctx context.Context, table string, values []driver.ColumnValue) error {
	return nil
}
func (f *fakeConn) DeleteRow(ctx context.Context, table string, pk []driver.ColumnValue) error {
	return nil
}
func (f *fakeConn) Begin(ctx context.Context) error    { return nil }
func (f *fakeConn) Commit(ctx context.Context) error   { return nil }
func (f *fakeConn) Rollback(ctx context.Context) error { return nil }
func (f *fakeConn) Dialect() driver.Dialect            { return driver.DialectSQLite }

func (f *fakeConn) pages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls
}

func testConfig() Config {
	return Config{
		PageSize:          10,
		PrefetchPages:     2,
		LoadThreshold:     5,
		PrefetchThreshold: 10,
		MaxLoadedPages:    5,
		TrimDistancePages: 2,
		MaxResidentRows:   1000,
		MinColWidth:       4,
		MaxColWidth:       40,
	}
}

// drain waits for any background fetch to finish and merges it.
func drain(t *testing.T, p *Pager) {
	t.Helper()
	for i := 0; i < 500 && p.HasBackground(); i++ {
		if _, err := p.Tick(); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if p.HasBackground() {
		t.Fatal("background fetch never finished")
	}
}

func TestInitLoadsFirstWindow(t *testing.T) {
	conn := &fakeConn{total: 100}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if p.LoadedCount() != 20 {
		t.Errorf("expected 20 resident rows, got %d", p.LoadedCount())
	}
	if p.Total != 100 || p.LoadedOffset != 0 {
		t.Errorf("Total=%d LoadedOffset=%d", p.Total, p.LoadedOffset)
	}
	if p.Schema == nil || len(p.Schema.PrimaryKey()) != 1 {
		t.Error("schema with primary key expected")
	}
	if len(p.ColWidths) != 2 {
		t.Errorf("expected 2 column widths, got %d", len(p.ColWidths))
	}
}

func TestMoveWithinWindowIssuesNoQuery(t *testing.T) {
	conn := &fakeConn{total: 100}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	before := conn.pages()
	if err := p.MoveCursor(context.Background(), 5, 10); err != nil {
		t.Fatalf("MoveCursor failed: %v", err)
	}
	// abs=5, window end=20, distance 15 > prefetch threshold 10
	if got := conn.pages(); got != before {
		t.Errorf("expected no new queries, got %d extra", got-before)
	}
	if p.AbsCursor() != 5 {
		t.Errorf("AbsCursor = %d", p.AbsCursor())
	}
}

func TestPrefetchNearEdge(t *testing.T) {
	conn := &fakeConn{total: 100}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := p.MoveCursor(context.Background(), 15, 10); err != nil {
		t.Fatalf("MoveCursor failed: %v", err)
	}
	if !p.HasBackground() {
		t.Fatal("expected a background prefetch near the window edge")
	}
	drain(t, p)
	if p.LoadedCount() != 40 {
		t.Errorf("expected 40 resident rows after prefetch, got %d", p.LoadedCount())
	}
}

func TestGotoAbsFarReplacesWindow(t *testing.T) {
	conn := &fakeConn{total: 100}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := p.GotoAbs(context.Background(), 95, 10); err != nil {
		t.Fatalf("GotoAbs failed: %v", err)
	}
	if !p.Contains(95) {
		t.Fatalf("row 95 not resident; window [%d, %d)", p.LoadedOffset, p.LoadedOffset+p.LoadedCount())
	}
	if p.AbsCursor() != 95 {
		t.Errorf("AbsCursor = %d", p.AbsCursor())
	}
	row := p.CurrentRow()
	if row == nil || row[0].Int() != 95 {
		t.Errorf("cursor row = %v", row)
	}
}

func TestEndForcesExactCount(t *testing.T) {
	conn := &fakeConn{total: 100, approxTotal: 200}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !p.Approx || p.Total != 200 {
		t.Fatalf("expected approximate count 200, got %d approx=%v", p.Total, p.Approx)
	}
	if err := p.End(context.Background(), 10); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if p.Approx || p.Total != 100 {
		t.Errorf("End should force the exact count; Total=%d approx=%v", p.Total, p.Approx)
	}
	if p.AbsCursor() != 99 {
		t.Errorf("AbsCursor = %d, want 99", p.AbsCursor())
	}
	// The window is tail-aligned: it starts at the last page boundary and
	// holds only the rows that exist past it.
	if p.LoadedOffset != 90 || p.LoadedCount() != 10 {
		t.Errorf("window = [%d, +%d), want [90, +10)", p.LoadedOffset, p.LoadedCount())
	}
}

func TestRestoreScrollKeepsCursorVisible(t *testing.T) {
	conn := &fakeConn{total: 100}
	p := New(conn, "items", testConfig())
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := p.GotoAbs(ctx, 15, 10); err != nil {
		t.Fatalf("GotoAbs failed: %v", err)
	}
	p.RestoreScroll(8, 0, 10)
	if p.ScrollRow != 8 {
		t.Errorf("ScrollRow = %d, want 8", p.ScrollRow)
	}
	// A saved origin that would hide the cursor is clamped back.
	p.RestoreScroll(2, 0, 10)
	if p.CursorRow < p.ScrollRow || p.CursorRow >= p.ScrollRow+10 {
		t.Errorf("cursor %d outside viewport starting at %d", p.CursorRow, p.ScrollRow)
	}
}

func TestMoveColumnScrollsBothEdges(t *testing.T) {
	conn := &fakeConn{total: 10}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// Two columns, one visible: moving right must advance ScrollCol.
	p.MoveColumn(1, 1)
	if p.CursorCol != 1 || p.ScrollCol != 1 {
		t.Errorf("cursor=%d scroll=%d, want 1/1", p.CursorCol, p.ScrollCol)
	}
	// Moving back left pulls ScrollCol with the cursor.
	p.MoveColumn(-1, 1)
	if p.CursorCol != 0 || p.ScrollCol != 0 {
		t.Errorf("cursor=%d scroll=%d, want 0/0", p.CursorCol, p.ScrollCol)
	}
	// Clamped at the last column.
	p.MoveColumn(5, 1)
	if p.CursorCol != 1 {
		t.Errorf("cursor=%d, want clamp at 1", p.CursorCol)
	}
}

func TestStaleApproxCountRepaired(t *testing.T) {
	conn := &fakeConn{total: 50, approxTotal: 1000}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// Jump far past the real end of the table.
	if err := p.GotoAbs(context.Background(), 500, 10); err != nil {
		t.Fatalf("GotoAbs failed: %v", err)
	}
	if p.Approx || p.Total != 50 {
		t.Errorf("expected repaired exact count 50, got %d approx=%v", p.Total, p.Approx)
	}
	if p.AbsCursor() != 49 {
		t.Errorf("cursor should land on the last real row, got %d", p.AbsCursor())
	}
	row := p.CurrentRow()
	if row == nil || row[0].Int() != 49 {
		t.Errorf("cursor row = %v", row)
	}
}

func TestTrimBoundsResidentRows(t *testing.T) {
	conn := &fakeConn{total: 200}
	p := New(conn, "items", testConfig())
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	for i := 0; i < 8; i++ {
		if err := p.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore %d failed: %v", i, err)
		}
	}
	maxRows := testConfig().MaxLoadedPages * testConfig().PageSize
	if p.LoadedCount() > maxRows {
		t.Errorf("resident rows %d exceed cap %d", p.LoadedCount(), maxRows)
	}
	if !p.Contains(p.AbsCursor()) {
		t.Error("cursor trimmed out of the window")
	}
	// The cursor never moved, so its page must still be resident.
	if p.LoadedOffset > 0 {
		t.Errorf("cursor page trimmed: LoadedOffset=%d", p.LoadedOffset)
	}
}

func TestTrimAfterBackwardLoad(t *testing.T) {
	conn := &fakeConn{total: 200}
	p := New(conn, "items", testConfig())
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := p.GotoAbs(ctx, 150, 10); err != nil {
		t.Fatalf("GotoAbs failed: %v", err)
	}
	if err := p.LoadPrev(ctx); err != nil {
		t.Fatalf("LoadPrev failed: %v", err)
	}
	if p.AbsCursor() != 150 {
		t.Errorf("cursor moved during backward merge: %d", p.AbsCursor())
	}
	row := p.CurrentRow()
	if row == nil || row[0].Int() != 150 {
		t.Errorf("cursor row = %v", row)
	}
}

func TestSingleBackgroundOp(t *testing.T) {
	gate := make(chan struct{})
	conn := &fakeConn{total: 100}
	p := New(conn, "items", testConfig())
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	conn.mu.Lock()
	conn.gate = gate
	conn.mu.Unlock()

	// Trigger a prefetch that blocks on the gate.
	if err := p.MoveCursor(ctx, 15, 10); err != nil {
		t.Fatalf("MoveCursor failed: %v", err)
	}
	if !p.HasBackground() {
		t.Fatal("expected a blocked background prefetch")
	}
	pagesBefore := conn.pages()

	// More movement inside the window must not start a second fetch.
	if err := p.MoveCursor(ctx, 1, 10); err != nil {
		t.Fatalf("MoveCursor failed: %v", err)
	}
	if got := conn.pages(); got != pagesBefore {
		t.Errorf("a second fetch started: %d -> %d", pagesBefore, got)
	}

	close(gate)
	conn.mu.Lock()
	conn.gate = nil
	conn.mu.Unlock()
	drain(t, p)

	conn.mu.Lock()
	max := conn.maxInFlight
	conn.mu.Unlock()
	if max > 1 {
		t.Errorf("max in-flight queries = %d, want 1", max)
	}
}

func TestAdoptBackgroundFetch(t *testing.T) {
	conn := &fakeConn{total: 100}
	p := New(conn, "items", testConfig())
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// Start a prefetch covering [20, 40).
	if err := p.MoveCursor(ctx, 15, 10); err != nil {
		t.Fatalf("MoveCursor failed: %v", err)
	}
	if !p.HasBackground() {
		t.Fatal("expected background prefetch")
	}
	pages := conn.pages()
	// Jump to a row the in-flight fetch covers; it must be adopted, not
	// cancelled and re-issued.
	if err := p.GotoAbs(ctx, 25, 10); err != nil {
		t.Fatalf("GotoAbs failed: %v", err)
	}
	if got := conn.pages(); got != pages {
		t.Errorf("adoption should not issue a new query: %d -> %d", pages, got)
	}
	if !p.Contains(25) || p.AbsCursor() != 25 {
		t.Errorf("cursor not on adopted row: abs=%d", p.AbsCursor())
	}
}

func TestResidentCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxResidentRows = 25
	cfg.TrimDistancePages = 100 // keep trim out of the way
	cfg.MaxLoadedPages = 100
	conn := &fakeConn{total: 200}
	p := New(conn, "items", cfg)
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	err := p.LoadMore(ctx)
	if !errors.Is(err, ErrResidentCap) {
		t.Errorf("expected ErrResidentCap, got %v", err)
	}
	if p.LoadedCount() != 20 {
		t.Errorf("window changed after rejected load: %d rows", p.LoadedCount())
	}
}

func TestSetFilterSortResetsWindow(t *testing.T) {
	conn := &fakeConn{total: 100, approxTotal: 150}
	p := New(conn, "items", testConfig())
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := p.GotoAbs(ctx, 50, 10); err != nil {
		t.Fatalf("GotoAbs failed: %v", err)
	}
	if err := p.SetFilterSort(ctx, `"id" > '10'`, `"id" DESC`); err != nil {
		t.Fatalf("SetFilterSort failed: %v", err)
	}
	if p.AbsCursor() != 0 || p.LoadedOffset != 0 {
		t.Errorf("window not reset: abs=%d offset=%d", p.AbsCursor(), p.LoadedOffset)
	}
	if p.Approx {
		t.Error("filtered counts must be exact")
	}
	if p.Where() != `"id" > '10'` || p.OrderBy() != `"id" DESC` {
		t.Errorf("filter/sort not recorded: %q / %q", p.Where(), p.OrderBy())
	}
}

func TestPrimaryKeyOf(t *testing.T) {
	conn := &fakeConn{total: 10}
	p := New(conn, "items", testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	row := p.CurrentRow()
	pk, err := p.PrimaryKeyOf(row)
	if err != nil {
		t.Fatalf("PrimaryKeyOf failed: %v", err)
	}
	if len(pk) != 1 || pk[0].Column != "id" || pk[0].Value.Int() != 0 {
		t.Errorf("pk = %+v", pk)
	}
}
