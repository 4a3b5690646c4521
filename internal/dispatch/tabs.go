package dispatch

import (
	"context"

	"github.com/rebeliceyang/lazydb/internal/session"
)

// tabAction handles tab and workspace lifecycle and focus.
func (d *Dispatcher) tabAction(ctx context.Context, a Action) Change {
	ws := d.App.CurrentWorkspace()

	switch a.Kind {
	case ActTabNext:
		if ws == nil || len(ws.Tabs) < 2 {
			return None
		}
		d.App.SwitchTab(ws, (ws.CurrentTab+1)%len(ws.Tabs))
		return Workspace | d.restoreIfStale(ctx)

	case ActTabPrev:
		if ws == nil || len(ws.Tabs) < 2 {
			return None
		}
		d.App.SwitchTab(ws, (ws.CurrentTab+len(ws.Tabs)-1)%len(ws.Tabs))
		return Workspace | d.restoreIfStale(ctx)

	case ActTabSwitch:
		if ws == nil {
			return None
		}
		d.App.SwitchTab(ws, a.Index)
		return Workspace | d.restoreIfStale(ctx)

	case ActTabCreate:
		return d.openTable(ctx, a.Index, false)

	case ActTabCreateQuery:
		connIndex, ok := d.currentConnIndex()
		if !ok {
			return None
		}
		if ws == nil {
			ws = d.App.CreateWorkspace()
		}
		d.App.CreateQueryTab(ws, connIndex)
		return Workspace | Focus

	case ActTabClose:
		if ws == nil || len(ws.Tabs) == 0 {
			return None
		}
		d.App.CloseTab(ws, ws.CurrentTab)
		if len(d.App.Workspaces) == 1 && len(d.App.Workspaces[0].Tabs) == 0 {
			if d.UI.PromptConnect != nil {
				d.UI.PromptConnect()
			}
		}
		d.rebuildLayout()
		return Workspace | Workspaces | Layout

	case ActWorkspaceNext:
		if len(d.App.Workspaces) < 2 {
			return None
		}
		d.App.SwitchWorkspace((d.App.CurrentWS + 1) % len(d.App.Workspaces))
		return Workspaces | Workspace | d.restoreIfStale(ctx)

	case ActWorkspacePrev:
		if len(d.App.Workspaces) < 2 {
			return None
		}
		d.App.SwitchWorkspace((d.App.CurrentWS + len(d.App.Workspaces) - 1) % len(d.App.Workspaces))
		return Workspaces | Workspace | d.restoreIfStale(ctx)

	case ActWorkspaceSwitch:
		d.App.SwitchWorkspace(a.Index)
		return Workspaces | Workspace | d.restoreIfStale(ctx)

	case ActWorkspaceCreate:
		d.App.CreateWorkspace()
		return Workspaces | Workspace | d.openTable(ctx, a.Index, false)

	case ActWorkspaceCreateQuery:
		connIndex, ok := d.currentConnIndex()
		if !ok {
			return None
		}
		ws := d.App.CreateWorkspace()
		d.App.CreateQueryTab(ws, connIndex)
		return Workspaces | Workspace | Focus

	case ActWorkspaceClose:
		d.App.CloseWorkspace(d.App.CurrentWS)
		if len(d.App.Workspaces) == 0 || (len(d.App.Workspaces) == 1 && len(d.App.Workspaces[0].Tabs) == 0) {
			if d.UI.PromptConnect != nil {
				d.UI.PromptConnect()
			}
		}
		d.rebuildLayout()
		return Workspaces | Workspace | Layout
	}
	return None
}

// restoreIfStale reloads the newly focused tab when a cross-tab write marked
// it dirty.
func (d *Dispatcher) restoreIfStale(ctx context.Context) Change {
	t := d.App.CurrentTab()
	if t == nil {
		return None
	}
	if t.Kind == session.TabTable && (t.NeedsRefresh || t.Pager == nil) {
		return d.loadTable(ctx, t)
	}
	return None
}

// openTable creates a table tab for the connection's table at tableIndex,
// optionally in a fresh workspace, and loads it.
func (d *Dispatcher) openTable(ctx context.Context, tableIndex int, newWorkspace bool) Change {
	connIndex, ok := d.currentConnIndex()
	if !ok {
		return None
	}
	conn, err := d.App.GetConnection(connIndex)
	if err != nil {
		d.App.Status = err.Error()
		return Status
	}
	if tableIndex < 0 || tableIndex >= len(conn.Tables) {
		d.App.Status = "no such table"
		return Status
	}
	ws := d.App.CurrentWorkspace()
	if newWorkspace || ws == nil {
		ws = d.App.CreateWorkspace()
	}
	t := d.App.CreateTableTab(ws, connIndex, tableIndex, conn.Tables[tableIndex])
	return Workspace | Focus | d.loadTable(ctx, t)
}

// currentConnIndex finds the connection the focused tab uses, or the only
// live connection when no tab is focused.
func (d *Dispatcher) currentConnIndex() (int, bool) {
	if t := d.App.CurrentTab(); t != nil {
		return t.ConnIndex, true
	}
	for i, c := range d.App.Connections {
		if c.Status == session.StatusConnected {
			return i, true
		}
	}
	return 0, false
}
