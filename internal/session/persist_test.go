package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rebeliceyang/lazydb/internal/config"
	"github.com/rebeliceyang/lazydb/internal/filter"
	"github.com/rebeliceyang/lazydb/internal/pager"
)

func TestSnapshotRoundTrip(t *testing.T) {
	fd := &fakeDriver{tables: []string{"items", "users"}}
	a := newTestApp(t, fd)
	c, idx := connectTestApp(t, a)

	ws := a.CurrentWorkspace()
	ws.Name = "main"
	tab := a.CreateTableTab(ws, idx, 0, "items")

	// Give the tab a live pager so sort/filters resolve to column names.
	p := pager.New(c.Conn, "items", pager.DefaultConfig())
	schema, _ := c.Conn.TableSchema(context.Background(), "items")
	p.Schema = schema
	p.CursorRow, p.ScrollRow = 7, 5
	p.CursorCol, p.ScrollCol = 1, 1
	tab.Pager = p
	tab.Sort = []SortEntry{{ColumnIndex: 1, Desc: true}}
	tab.Filters = []filter.ColumnFilter{
		{ColumnIndex: 2, Op: filter.OpGt, Value: "30"},
		{ColumnIndex: filter.RawColumn, Op: filter.OpRaw, Value: "id % 2 = 0"},
	}

	qt := a.CreateQueryTab(ws, idx)
	qt.Query.Text = []rune("SELECT 1")
	qt.Query.Cursor = 8

	f := Snapshot(a)
	if len(f.Connections) != 1 || f.Connections[0].ConnStr != "fake://u@h/db" {
		t.Fatalf("connections = %+v", f.Connections)
	}
	st := f.Workspaces[0].Tabs[0]
	if st.CursorRow != 7 || st.CursorCol != 1 {
		t.Errorf("cursor saved: row=%d col=%d", st.CursorRow, st.CursorCol)
	}
	if st.ScrollRow != 5 || st.ScrollCol != 1 {
		t.Errorf("scroll saved: row=%d col=%d", st.ScrollRow, st.ScrollCol)
	}
	if len(st.Sort) != 1 || st.Sort[0].Column != "name" || !st.Sort[0].Desc {
		t.Errorf("sort saved by name: %+v", st.Sort)
	}
	if len(st.Filters) != 2 || st.Filters[0].Column != "age" || st.Filters[1].Op != "raw" {
		t.Errorf("filters saved: %+v", st.Filters)
	}

	path := filepath.Join(t.TempDir(), "session.json")
	if err := Write(f, path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// Restore into a fresh model.
	b := NewApp(a.Registry, config.GetDefaults())
	Restore(context.Background(), b, got, RestoreOptions{})

	if len(b.Connections) != 1 || b.Connections[0].Status != StatusConnected {
		t.Fatalf("connection not restored: %+v", b.Connections)
	}
	if b.Connections[0].ID != c.ID {
		t.Error("connection ID not preserved")
	}
	bws := b.Workspaces[0]
	if bws.Name != "main" || len(bws.Tabs) != 2 {
		t.Fatalf("workspace not restored: %+v", bws)
	}
	bt := bws.Tabs[0]
	if bt.Kind != TabTable || bt.TableName != "items" || !bt.NeedsRefresh {
		t.Errorf("table tab: %+v", bt)
	}

	pos, ok := bt.ApplyPending(schema)
	if !ok {
		t.Fatal("no pending state")
	}
	if pos.Row != 7 || pos.Col != 1 {
		t.Errorf("cursor restored: row=%d col=%d", pos.Row, pos.Col)
	}
	if pos.ScrollRow != 5 || pos.ScrollCol != 1 {
		t.Errorf("scroll restored: row=%d col=%d", pos.ScrollRow, pos.ScrollCol)
	}
	if len(bt.Sort) != 1 || bt.Sort[0].ColumnIndex != 1 || !bt.Sort[0].Desc {
		t.Errorf("sort not resolved: %+v", bt.Sort)
	}
	if len(bt.Filters) != 2 {
		t.Fatalf("filters not resolved: %+v", bt.Filters)
	}
	if bt.Filters[0].ColumnIndex != 2 || bt.Filters[0].Op != filter.OpGt {
		t.Errorf("filter 0: %+v", bt.Filters[0])
	}
	if bt.Filters[1].ColumnIndex != filter.RawColumn {
		t.Errorf("raw filter lost: %+v", bt.Filters[1])
	}

	bq := bws.Tabs[1]
	if bq.Kind != TabQuery || string(bq.Query.Text) != "SELECT 1" || bq.Query.Cursor != 8 {
		t.Errorf("query tab: %+v", bq)
	}
}

func TestSnapshotSkipsDisconnected(t *testing.T) {
	a := newTestApp(t, &fakeDriver{})
	_, idx := connectTestApp(t, a)
	ws := a.CurrentWorkspace()
	a.CreateTableTab(ws, idx, 0, "items")
	if err := a.CloseConnection(idx); err != nil {
		t.Fatal(err)
	}
	f := Snapshot(a)
	if len(f.Connections) != 0 {
		t.Errorf("disconnected connection snapshotted: %+v", f.Connections)
	}
}

func TestPasswordNeverWritten(t *testing.T) {
	a := newTestApp(t, &fakeDriver{})
	conn := &fakeConn{}
	a.AddConnection(conn, "fake://u:topsecret@h/db")
	f := Snapshot(a)
	path := filepath.Join(t.TempDir(), "session.json")
	if err := Write(f, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "topsecret") {
		t.Error("password leaked into the session file")
	}
}

func TestRestoreInjectsPassword(t *testing.T) {
	fd := &fakeDriver{tables: []string{"items"}}
	a := newTestApp(t, fd)
	f := &File{
		Version:     FileVersion,
		Connections: []SavedConn{{ID: "not-a-uuid", ConnStr: "fake://u@h/db", Display: "u@h/db", Scheme: "fake"}},
	}
	Restore(context.Background(), a, f, RestoreOptions{
		Password: func(connstr string) (string, error) { return "pw123", nil },
	})
	if fd.lastDSN != "u:pw123@h/db" {
		t.Errorf("password not injected: dsn = %q", fd.lastDSN)
	}
}

func TestRestoreFailedConnectionBecomesErrorSlot(t *testing.T) {
	fd := &fakeDriver{failOpen: true}
	a := newTestApp(t, fd)
	f := &File{
		Version:     FileVersion,
		Connections: []SavedConn{{ID: "x", ConnStr: "fake://u@h/db", Display: "u@h/db", Scheme: "fake"}},
		Workspaces: []SavedWS{{Tabs: []SavedTab{
			{Kind: "table", ConnID: "x", Table: "items"},
		}}},
	}
	Restore(context.Background(), a, f, RestoreOptions{})
	if len(a.Connections) != 1 || a.Connections[0].Status != StatusError {
		t.Fatalf("expected error slot, got %+v", a.Connections)
	}
	if a.Connections[0].Err == "" {
		t.Error("error slot carries no message")
	}
	// The tab still restores, pointing at the dead slot.
	if len(a.Workspaces[0].Tabs) != 1 {
		t.Errorf("tab not restored: %+v", a.Workspaces[0].Tabs)
	}
}

func TestRestoreMissingTable(t *testing.T) {
	fd := &fakeDriver{tables: []string{"items"}}
	a := newTestApp(t, fd)
	f := &File{
		Version:     FileVersion,
		Connections: []SavedConn{{ID: "x", ConnStr: "fake://u@h/db", Display: "u@h/db", Scheme: "fake"}},
		Workspaces: []SavedWS{{Tabs: []SavedTab{
			{Kind: "table", ConnID: "x", Table: "vanished"},
		}}},
	}
	Restore(context.Background(), a, f, RestoreOptions{})
	tab := a.Workspaces[0].Tabs[0]
	if tab.Err == "" {
		t.Error("missing table should carry an error")
	}
}

func TestReadRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("newer version accepted")
	}
}

func TestWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	if err := Write(&File{Version: FileVersion}, path); err != nil {
		t.Fatal(err)
	}
	// No temp droppings left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only session.json, found %d entries", len(entries))
	}
}
