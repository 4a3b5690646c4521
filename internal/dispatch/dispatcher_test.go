package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/rebeliceyang/lazydb/internal/config"
	"github.com/rebeliceyang/lazydb/internal/driver"
	"github.com/rebeliceyang/lazydb/internal/session"
)

// fakeConn serves a small virtual table and records writes.
type fakeConn struct {
	total     int64
	pageCalls int
	queries   []string // raw SQL passed to Query
	updates   []string // "table.column=value"
	deletes   int
}

func (f *fakeConn) Close() error                   { return nil }
func (f *fakeConn) Ping(ctx context.Context) error { return nil }
func (f *fakeConn) ListDatabases(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeConn) ListTables(ctx context.Context) ([]string, error) {
	return []string{"items", "users"}, nil
}
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
	f.queries = append(f.queries, sql)
	return &driver.ResultSet{
		Columns: []driver.ColumnDef{{Name: "one", Type: driver.KindInt}},
		Rows:    []driver.Row{{driver.Int(1)}},
	}, nil
}
func (f *fakeConn) Exec(ctx context.Context, sql string) (int64, error) { return 1, nil }
func (f *fakeConn) QueryPage(ctx context.Context, req driver.PageRequest) (*driver.ResultSet, error) {
	f.pageCalls++
	rs := &driver.ResultSet{
		Columns: []driver.ColumnDef{
			{Name: "id", Type: driver.KindInt, PrimaryKey: true},
			{Name: "name", Type: driver.KindText},
		},
	}
	for i := req.Offset; i < req.Offset+req.Limit && i < f.total; i++ {
		rs.Rows = append(rs.Rows, driver.Row{driver.Int(i), driver.Text(fmt.Sprintf("row-%d", i))})
	}
	return rs, nil
}
func (f *fakeConn) CountRows(ctx context.Context, table, where string, approx bool) (int64, bool, error) {
	return f.total, false, nil
}
func (f *fakeConn) UpdateCell(ctx context.Context, table, column string, value driver.Value, pk []driver.ColumnValue) error {
	f.updates = append(f.updates, fmt.Sprintf("%s.%s=%s", table, column, value.String()))
	return nil
}
func (f *fakeConn) InsertRow(ctx context.Context, table string, values []driver.ColumnValue) error {
	return nil
}
func (f *fakeConn) DeleteRow(ctx context.Context, table string, pk []driver.ColumnValue) error {
	f.deletes++
	return nil
}
func (f *fakeConn) Begin(ctx context.Context) error    { return nil }
func (f *fakeConn) Commit(ctx context.Context) error   { return nil }
func (f *fakeConn) Rollback(ctx context.Context) error { return nil }
func (f *fakeConn) Dialect() driver.Dialect            { return driver.DialectSQLite }

type fakeDriver struct {
	conn *fakeConn
}

func (d *fakeDriver) Scheme() string          { return "fake" }
func (d *fakeDriver) Dialect() driver.Dialect { return driver.DialectSQLite }
func (d *fakeDriver) Open(ctx context.Context, dsn string) (driver.Conn, error) {
	return d.conn, nil
}

// newTestDispatcher builds an app with one connection and one loaded table tab.
func newTestDispatcher(t *testing.T, total int64) (*Dispatcher, *fakeConn, *session.Tab) {
	t.Helper()
	fc := &fakeConn{total: total}
	reg := driver.NewRegistry()
	reg.Register(&fakeDriver{conn: fc})
	app := session.NewApp(reg, config.GetDefaults())
	d := New(app, UICallbacks{VisibleRows: func() int { return 30 }})

	c, idx := app.AddConnection(fc, "fake://u@h/db")
	c.Tables = []string{"items", "users"}
	ws := app.CurrentWorkspace()
	tab := app.CreateTableTab(ws, idx, 0, "items")
	if ch := d.loadTable(context.Background(), tab); !ch.Has(Data) {
		t.Fatalf("loadTable change = %v", ch)
	}
	return d, fc, tab
}

func TestUnknownActionIsNone(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 10)
	if ch := d.Dispatch(context.Background(), Action{Kind: ActionKind(9999)}); ch != None {
		t.Errorf("unknown action change = %v, want None", ch)
	}
}

func TestQuitSemantics(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 10)
	if ch := d.Dispatch(context.Background(), Action{Kind: ActQuit}); ch != None {
		t.Errorf("quit with live connection: change = %v", ch)
	}
	if !d.App.Running {
		t.Fatal("quit with live connection must not stop the app")
	}
	d.Dispatch(context.Background(), Action{Kind: ActQuitForce})
	if d.App.Running {
		t.Error("force quit must stop the app")
	}
}

func TestQuitWithoutConnections(t *testing.T) {
	reg := driver.NewRegistry()
	app := session.NewApp(reg, config.GetDefaults())
	d := New(app, UICallbacks{})
	d.Dispatch(context.Background(), Action{Kind: ActQuit})
	if app.Running {
		t.Error("quit with no connections should stop the app")
	}
}

func TestNavigationFlags(t *testing.T) {
	d, _, tab := newTestDispatcher(t, 100)
	ch := d.Dispatch(context.Background(), Action{Kind: ActCursorMove, DeltaRow: 5})
	if !ch.Has(Cursor) || !ch.Has(Status) {
		t.Errorf("change = %v, want cursor and status bits", ch)
	}
	if tab.Pager.AbsCursor() != 5 {
		t.Errorf("AbsCursor = %d", tab.Pager.AbsCursor())
	}
	d.Dispatch(context.Background(), Action{Kind: ActEnd})
	if tab.Pager.AbsCursor() != 99 {
		t.Errorf("End: AbsCursor = %d", tab.Pager.AbsCursor())
	}
	d.Dispatch(context.Background(), Action{Kind: ActHome})
	if tab.Pager.AbsCursor() != 0 {
		t.Errorf("Home: AbsCursor = %d", tab.Pager.AbsCursor())
	}
}

func TestEditCommitPatchesCellAndMarksSiblings(t *testing.T) {
	d, fc, tab := newTestDispatcher(t, 10)
	ws := d.App.CurrentWorkspace()
	sibling := d.App.CreateTableTab(ws, tab.ConnIndex, 0, "items")
	if ch := d.loadTable(context.Background(), sibling); !ch.Has(Data) {
		t.Fatalf("sibling loadTable change = %v", ch)
	}
	d.App.SwitchTab(ws, 0)

	tab.Pager.MoveColumn(1, 8) // name column
	ctx := context.Background()
	if ch := d.Dispatch(ctx, Action{Kind: ActEditStart}); !ch.Has(Edit) {
		t.Fatalf("EditStart change = %v", ch)
	}
	if !d.Edit.Active || string(d.Edit.Text) != "row-0" {
		t.Fatalf("edit buffer = %q active=%v", string(d.Edit.Text), d.Edit.Active)
	}
	for _, r := range "!!" {
		d.Dispatch(ctx, Action{Kind: ActEditInput, Ch: r})
	}
	ch := d.Dispatch(ctx, Action{Kind: ActEditConfirm})
	if !ch.Has(Data) || !ch.Has(Status) {
		t.Errorf("confirm change = %v, want data and status bits", ch)
	}
	if len(fc.updates) != 1 || fc.updates[0] != "items.name=row-0!!" {
		t.Errorf("updates = %v", fc.updates)
	}
	row := tab.Pager.CurrentRow()
	if row[1].String() != "row-0!!" {
		t.Errorf("resident cell not patched: %q", row[1].String())
	}
	if !sibling.NeedsRefresh {
		t.Error("sibling tab not marked dirty")
	}
	if d.Edit.Active {
		t.Error("edit buffer still active after confirm")
	}
}

func TestEditRequiresPrimaryKey(t *testing.T) {
	d, _, tab := newTestDispatcher(t, 10)
	tab.Pager.Schema = &driver.TableSchema{
		Name:    "items",
		Columns: []driver.ColumnDef{{Name: "id"}, {Name: "name"}},
	}
	ch := d.Dispatch(context.Background(), Action{Kind: ActEditStart})
	if ch != Status {
		t.Errorf("change = %v, want Status only", ch)
	}
	if d.Edit.Active {
		t.Error("edit must not start without a primary key")
	}
}

func TestRowDeleteReloads(t *testing.T) {
	d, fc, tab := newTestDispatcher(t, 10)
	before := tab.Pager.Total
	ch := d.Dispatch(context.Background(), Action{Kind: ActRowDelete})
	if fc.deletes != 1 {
		t.Fatalf("deletes = %d", fc.deletes)
	}
	if !ch.Has(Data) || !ch.Has(Cursor) {
		t.Errorf("change = %v", ch)
	}
	_ = before // fake table does not shrink; reload just re-counts
}

func TestConnectIssuesNoDataQuery(t *testing.T) {
	fc := &fakeConn{total: 10}
	reg := driver.NewRegistry()
	reg.Register(&fakeDriver{conn: fc})
	app := session.NewApp(reg, config.GetDefaults())
	d := New(app, UICallbacks{})

	ch := d.Dispatch(context.Background(), Action{Kind: ActConnect, Text: "fake://u@h/db"})
	if !ch.Has(Connection) || !ch.Has(Tables) || !ch.Has(Sidebar) {
		t.Errorf("change = %v", ch)
	}
	if fc.pageCalls != 0 {
		t.Errorf("connect ran %d data queries, want 0", fc.pageCalls)
	}
	if len(app.Connections) != 1 || len(app.Connections[0].Tables) != 2 {
		t.Fatalf("connection state: %+v", app.Connections)
	}
	if !d.Sidebar.Focused {
		t.Error("sidebar should take focus after connect")
	}
	tab := app.CurrentTab()
	if tab == nil || tab.Kind != session.TabConnection {
		t.Error("expected a connection tab")
	}
}

func TestSidebarSelectOpensTable(t *testing.T) {
	fc := &fakeConn{total: 10}
	reg := driver.NewRegistry()
	reg.Register(&fakeDriver{conn: fc})
	app := session.NewApp(reg, config.GetDefaults())
	d := New(app, UICallbacks{})
	d.Dispatch(context.Background(), Action{Kind: ActConnect, Text: "fake://u@h/db"})

	d.Dispatch(context.Background(), Action{Kind: ActSidebarMove, DeltaRow: 1})
	ch := d.Dispatch(context.Background(), Action{Kind: ActSidebarSelect})
	if !ch.Has(Workspace) {
		t.Errorf("change = %v", ch)
	}
	tab := app.CurrentTab()
	if tab == nil || tab.Kind != session.TabTable || tab.TableName != "users" {
		t.Fatalf("tab = %+v", tab)
	}
	if tab.Pager == nil || tab.Pager.LoadedCount() == 0 {
		t.Error("selected table not loaded")
	}
}

func TestSidebarFilterNarrowsTables(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 10)
	d.Dispatch(context.Background(), Action{Kind: ActSidebarFocus})
	d.Dispatch(context.Background(), Action{Kind: ActSidebarFilterStart})
	for _, r := range "use" {
		d.Dispatch(context.Background(), Action{Kind: ActSidebarFilterInput, Ch: r})
	}
	tables := d.SidebarTables()
	if len(tables) != 1 || tables[0] != "users" {
		t.Errorf("filtered tables = %v", tables)
	}
}

func TestFilterApplyCompilesAndReloads(t *testing.T) {
	d, _, tab := newTestDispatcher(t, 100)
	ctx := context.Background()
	d.Dispatch(ctx, Action{Kind: ActFiltersToggle})
	d.Dispatch(ctx, Action{Kind: ActFiltersAdd, Index: 1})
	for _, r := range "bob" {
		d.Dispatch(ctx, Action{Kind: ActFiltersInput, Ch: r})
	}
	d.Dispatch(ctx, Action{Kind: ActFiltersConfirm})
	ch := d.Dispatch(ctx, Action{Kind: ActFiltersApply})
	if !ch.Has(Data) || !ch.Has(Filters) {
		t.Errorf("change = %v", ch)
	}
	if tab.Pager.Where() != `"name" = 'bob'` {
		t.Errorf("where = %q", tab.Pager.Where())
	}
	if tab.Pager.AbsCursor() != 0 {
		t.Errorf("cursor not reset: %d", tab.Pager.AbsCursor())
	}
}

func TestFilterFocusUnfocusKeepsPanel(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 10)
	ctx := context.Background()

	ch := d.Dispatch(ctx, Action{Kind: ActFiltersFocus})
	if !d.FiltersOn || !d.FiltersFocused {
		t.Fatalf("focus: on=%v focused=%v", d.FiltersOn, d.FiltersFocused)
	}
	if !ch.Has(Layout) {
		t.Errorf("opening the panel should be a layout change: %v", ch)
	}

	ch = d.Dispatch(ctx, Action{Kind: ActFiltersUnfocus})
	if !d.FiltersOn {
		t.Error("unfocus hid the panel")
	}
	if d.FiltersFocused {
		t.Error("still focused after unfocus")
	}
	if !ch.Has(Focus) {
		t.Errorf("change = %v", ch)
	}

	// Refocusing an already-open panel changes focus, not layout.
	ch = d.Dispatch(ctx, Action{Kind: ActFiltersFocus})
	if ch.Has(Layout) {
		t.Errorf("refocus reported a layout change: %v", ch)
	}
	if !d.FiltersFocused {
		t.Error("refocus did not take")
	}

	d.Dispatch(ctx, Action{Kind: ActFiltersToggle})
	if d.FiltersOn || d.FiltersFocused {
		t.Error("toggle should hide and unfocus the panel")
	}
}

func TestQueryExecute(t *testing.T) {
	d, _, tab := newTestDispatcher(t, 10)
	ws := d.App.CurrentWorkspace()
	qt := d.App.CreateQueryTab(ws, tab.ConnIndex)
	ctx := context.Background()
	for _, r := range "SELECT 1" {
		d.Dispatch(ctx, Action{Kind: ActQueryInput, Ch: r})
	}
	ch := d.Dispatch(ctx, Action{Kind: ActQueryExecute})
	if !ch.Has(Data) {
		t.Errorf("change = %v", ch)
	}
	if qt.Query.Results == nil || len(qt.Query.Results.Rows) != 1 {
		t.Fatalf("results = %+v", qt.Query.Results)
	}
	if qt.Query.Err != "" {
		t.Errorf("err = %q", qt.Query.Err)
	}
}

func TestToggleHeaderIsLayout(t *testing.T) {
	d, _, _ := newTestDispatcher(t, 10)
	was := d.App.HeaderVisible
	if ch := d.Dispatch(context.Background(), Action{Kind: ActToggleHeader}); ch != Layout {
		t.Errorf("change = %v, want Layout", ch)
	}
	if d.App.HeaderVisible == was {
		t.Error("header visibility unchanged")
	}
}

func TestTabSwitchRefreshesStale(t *testing.T) {
	d, fc, tab := newTestDispatcher(t, 10)
	ws := d.App.CurrentWorkspace()
	sibling := d.App.CreateTableTab(ws, tab.ConnIndex, 0, "items")
	d.loadTable(context.Background(), sibling)
	d.App.SwitchTab(ws, 0)

	sibling.NeedsRefresh = true
	calls := fc.pageCalls
	d.Dispatch(context.Background(), Action{Kind: ActTabNext})
	if fc.pageCalls == calls {
		t.Error("stale tab not reloaded on focus")
	}
	if sibling.NeedsRefresh {
		t.Error("NeedsRefresh not cleared")
	}
}
