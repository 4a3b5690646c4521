package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rebeliceyang/lazydb/internal/task"
)

// sidebarAction handles the table-list panel: focus, movement, incremental
// filtering, and opening tables.
func (d *Dispatcher) sidebarAction(ctx context.Context, a Action) Change {
	switch a.Kind {
	case ActSidebarToggle:
		d.Sidebar.Visible = !d.Sidebar.Visible
		if !d.Sidebar.Visible {
			d.Sidebar.Focused = false
		}
		d.rebuildLayout()
		return Sidebar | Layout

	case ActSidebarFocus:
		if !d.Sidebar.Visible {
			d.Sidebar.Visible = true
		}
		d.Sidebar.Focused = true
		return Sidebar | Focus

	case ActSidebarUnfocus:
		d.Sidebar.Focused = false
		d.Sidebar.Filtering = false
		return Sidebar | Focus

	case ActSidebarMove:
		tables := d.SidebarTables()
		if len(tables) == 0 {
			return None
		}
		d.Sidebar.Selection += a.DeltaRow
		if d.Sidebar.Selection < 0 {
			d.Sidebar.Selection = 0
		}
		if d.Sidebar.Selection >= len(tables) {
			d.Sidebar.Selection = len(tables) - 1
		}
		return Sidebar

	case ActSidebarSelect, ActSidebarSelectNewTab:
		tables := d.SidebarTables()
		if d.Sidebar.Selection < 0 || d.Sidebar.Selection >= len(tables) {
			return None
		}
		connIndex, ok := d.currentConnIndex()
		if !ok {
			return None
		}
		conn, err := d.App.GetConnection(connIndex)
		if err != nil {
			return d.fail(nil, err)
		}
		// Map the filtered selection back to the connection's table index.
		tableIndex := -1
		for i, name := range conn.Tables {
			if name == tables[d.Sidebar.Selection] {
				tableIndex = i
				break
			}
		}
		if tableIndex < 0 {
			return None
		}
		d.Sidebar.Focused = false
		return Sidebar | d.openTable(ctx, tableIndex, a.Kind == ActSidebarSelectNewTab)

	case ActSidebarFilterStart:
		d.Sidebar.Filtering = true
		return Sidebar

	case ActSidebarFilterInput:
		if !d.Sidebar.Filtering {
			return None
		}
		d.Sidebar.Filter += string(a.Ch)
		d.Sidebar.Selection = 0
		return Sidebar

	case ActSidebarFilterBackspace:
		if !d.Sidebar.Filtering || d.Sidebar.Filter == "" {
			return None
		}
		d.Sidebar.Filter = d.Sidebar.Filter[:len(d.Sidebar.Filter)-1]
		return Sidebar

	case ActSidebarFilterClear:
		d.Sidebar.Filter = ""
		d.Sidebar.Selection = 0
		return Sidebar

	case ActSidebarFilterStop:
		d.Sidebar.Filtering = false
		return Sidebar
	}
	return None
}

// SidebarTables returns the current connection's table names, filtered by the
// sidebar's incremental filter.
func (d *Dispatcher) SidebarTables() []string {
	connIndex, ok := d.currentConnIndex()
	if !ok {
		return nil
	}
	conn, err := d.App.GetConnection(connIndex)
	if err != nil {
		return nil
	}
	if d.Sidebar.Filter == "" {
		return conn.Tables
	}
	needle := strings.ToLower(d.Sidebar.Filter)
	var out []string
	for _, name := range conn.Tables {
		if strings.Contains(strings.ToLower(name), needle) {
			out = append(out, name)
		}
	}
	return out
}

// connect opens a new connection asynchronously (so the progress dialog can
// cancel it), caches its table list, and opens a connection tab with the
// sidebar focused. No data query is issued.
func (d *Dispatcher) connect(ctx context.Context, connstr string) Change {
	reg := d.App.Registry
	op := task.New(task.KindConnect, func(ctx context.Context) (*task.Outcome, error) {
		conn, err := reg.Open(ctx, connstr)
		if err != nil {
			return nil, err
		}
		tables, err := conn.ListTables(ctx)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		return &task.Outcome{Conn: conn, Tables: tables}, nil
	})
	op.Start(ctx)
	if d.UI.WaitOp != nil {
		if !d.UI.WaitOp(op) {
			task.Join(op)
			d.App.Status = "Connection cancelled"
			return Status
		}
	} else {
		op.Wait(-1)
	}
	out, err := op.Take()
	if err != nil {
		d.App.Status = "Connection failed: " + err.Error()
		return Status | Connection
	}
	if out == nil || out.Conn == nil {
		return Status
	}

	c, connIndex := d.App.AddConnection(out.Conn, connstr)
	c.Tables = out.Tables

	ws := d.App.CurrentWorkspace()
	if ws == nil {
		ws = d.App.CreateWorkspace()
	}
	d.App.CreateConnectionTab(ws, connIndex)
	d.Sidebar.Visible = true
	d.Sidebar.Focused = true
	d.Sidebar.Selection = 0
	d.Sidebar.Filter = ""
	d.App.Status = "Connected to " + c.Display
	d.rebuildLayout()
	return Connection | Tables | Sidebar | Workspace | Workspaces | Status | Layout
}

// disconnect closes the focused tab's connection and everything on it.
func (d *Dispatcher) disconnect() Change {
	t := d.App.CurrentTab()
	if t == nil {
		return None
	}
	conn, err := d.App.GetConnection(t.ConnIndex)
	if err != nil {
		return d.fail(nil, err)
	}
	if err := d.App.CloseConnection(t.ConnIndex); err != nil {
		return d.fail(nil, err)
	}
	d.App.Status = "Disconnected from " + conn.Display
	d.rebuildLayout()
	return Connection | Tables | Workspace | Workspaces | Sidebar | Status | Layout
}
