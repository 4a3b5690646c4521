// Package dispatch is the single mutation entry point of the model: it turns
// user intent (Action) into state changes and reports what changed so the
// renderer can redraw selectively.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rebeliceyang/lazydb/internal/filter"
	"github.com/rebeliceyang/lazydb/internal/history"
	"github.com/rebeliceyang/lazydb/internal/pager"
	"github.com/rebeliceyang/lazydb/internal/session"
	"github.com/rebeliceyang/lazydb/internal/task"
)

// UICallbacks are the operations only the renderer can perform. The
// dispatcher never calls the renderer except through this table.
type UICallbacks struct {
	// VisibleRows reports how many data rows fit in the viewport.
	VisibleRows func() int
	// VisibleCols reports how many columns fit from the current scroll
	// position, for horizontal cursor-visibility clamping.
	VisibleCols func() int
	// StartModalEdit opens the modal cell editor seeded with the current text.
	StartModalEdit func(initial string)
	// RebuildLayout recreates the layout after a structural change.
	RebuildLayout func()
	// WaitOp blocks on a foreground op behind a progress dialog; it returns
	// false when the user cancelled the wait.
	WaitOp func(op *task.Op) bool
	// PromptConnect opens the connect dialog.
	PromptConnect func()
}

// EditState is the in-progress cell edit buffer.
type EditState struct {
	Active bool
	Modal  bool
	Text   []rune
	Cursor int
}

// SidebarState is the table list panel's model-side state.
type SidebarState struct {
	Visible   bool
	Focused   bool
	Filtering bool
	Selection int
	Filter    string
}

// FilterEditState is the in-progress filter value edit.
type FilterEditState struct {
	Active bool
	Index  int
	Text   []rune
}

// Dispatcher owns the model mutations.
type Dispatcher struct {
	App     *session.App
	UI      UICallbacks
	History *history.Store // optional query history sink

	Edit           EditState
	Sidebar        SidebarState
	FilterEdit     FilterEditState
	FilterSel      int  // selected row in the filter editor
	FiltersOn      bool // filter panel visible
	FiltersFocused bool // keys go to the filter panel
}

// New creates a dispatcher over the model.
func New(app *session.App, ui UICallbacks) *Dispatcher {
	return &Dispatcher{App: app, UI: ui, Sidebar: SidebarState{Visible: true}}
}

// Dispatch applies one action. Unknown actions return None and are never
// fatal.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action) Change {
	switch a.Kind {
	case ActCursorMove, ActCursorGoto, ActPageUp, ActPageDown,
		ActHome, ActEnd, ActColumnFirst, ActColumnLast:
		return d.navigate(ctx, a)

	case ActEditStart, ActEditStartModal, ActEditConfirm, ActEditCancel,
		ActEditInput, ActEditBackspace, ActEditDelete,
		ActEditCursorLeft, ActEditCursorRight, ActEditCursorHome, ActEditCursorEnd,
		ActCellSetNull, ActCellSetEmpty:
		return d.editCell(ctx, a)

	case ActRowDelete, ActRowToggleSelect, ActRowClearSelections:
		return d.rowAction(ctx, a)

	case ActTabNext, ActTabPrev, ActTabSwitch, ActTabCreate, ActTabCreateQuery, ActTabClose,
		ActWorkspaceNext, ActWorkspacePrev, ActWorkspaceSwitch,
		ActWorkspaceCreate, ActWorkspaceCreateQuery, ActWorkspaceClose:
		return d.tabAction(ctx, a)

	case ActSidebarToggle, ActSidebarFocus, ActSidebarUnfocus, ActSidebarMove,
		ActSidebarSelect, ActSidebarSelectNewTab,
		ActSidebarFilterStart, ActSidebarFilterInput, ActSidebarFilterBackspace,
		ActSidebarFilterClear, ActSidebarFilterStop:
		return d.sidebarAction(ctx, a)

	case ActFiltersToggle, ActFiltersFocus, ActFiltersUnfocus,
		ActFiltersMove, ActFiltersAdd, ActFiltersRemove,
		ActFiltersClear, ActFiltersEditStart, ActFiltersInput, ActFiltersBackspace,
		ActFiltersSetOp, ActFiltersConfirm, ActFiltersCancel, ActFiltersApply:
		return d.filterAction(ctx, a)

	case ActQueryInput, ActQueryBackspace, ActQueryDelete,
		ActQueryCursorLeft, ActQueryCursorRight, ActQueryCursorHome, ActQueryCursorEnd,
		ActQueryExecute, ActQueryExecuteAll, ActQueryExecuteTxn, ActQueryLoadMore:
		return d.queryAction(ctx, a)

	case ActConnect:
		return d.connect(ctx, a.Text)
	case ActDisconnect:
		return d.disconnect()

	case ActTableLoad:
		return d.loadTable(ctx, d.App.CurrentTab())
	case ActTableRefresh:
		return d.refreshTable(ctx)
	case ActDataLoadMore:
		return d.loadEdge(ctx, true)
	case ActDataLoadPrev:
		return d.loadEdge(ctx, false)

	case ActToggleHeader:
		d.App.HeaderVisible = !d.App.HeaderVisible
		d.rebuildLayout()
		return Layout
	case ActToggleStatus:
		d.App.StatusVisible = !d.App.StatusVisible
		d.rebuildLayout()
		return Layout

	case ActShowConnect:
		if d.UI.PromptConnect != nil {
			d.UI.PromptConnect()
		}
		return None
	case ActShowSchema, ActShowGoto, ActShowHelp:
		// Dialog choreography is owned by the renderer.
		return None

	case ActQuit:
		if d.App.HasLiveConnection() {
			// The renderer confirms and issues QuitForce.
			return None
		}
		d.App.Running = false
		return None
	case ActQuitForce:
		d.App.Running = false
		return None

	default:
		return None
	}
}

// navigate handles cursor movement on the current table or query tab.
func (d *Dispatcher) navigate(ctx context.Context, a Action) Change {
	t := d.App.CurrentTab()
	if t == nil || t.Kind != session.TabTable || t.Pager == nil {
		return None
	}
	p := t.Pager
	visible := d.visibleRows()
	var err error
	switch a.Kind {
	case ActCursorMove:
		err = p.MoveCursor(ctx, int64(a.DeltaRow), visible)
		if a.DeltaCol != 0 {
			p.MoveColumn(a.DeltaCol, d.visibleCols())
		}
	case ActCursorGoto:
		err = p.GotoAbs(ctx, a.Row, visible)
	case ActPageUp:
		err = p.MoveCursor(ctx, -int64(visible), visible)
	case ActPageDown:
		err = p.MoveCursor(ctx, int64(visible), visible)
	case ActHome:
		err = p.Home(ctx, visible)
	case ActEnd:
		err = p.End(ctx, visible)
	case ActColumnFirst:
		p.CursorCol = 0
		p.ScrollCol = 0
	case ActColumnLast:
		if p.Res != nil && len(p.Res.Columns) > 0 {
			p.CursorCol = len(p.Res.Columns) - 1
			p.MoveColumn(0, d.visibleCols())
		}
	}
	if err != nil {
		return d.fail(t, err)
	}
	d.rowStatus(p)
	return View | Status
}

// loadTable builds (or rebuilds) the pager for a table tab and runs the
// initial load, applying any session-restored sort and filters.
func (d *Dispatcher) loadTable(ctx context.Context, t *session.Tab) Change {
	if t == nil || t.Kind != session.TabTable {
		return None
	}
	conn, err := d.App.GetConnection(t.ConnIndex)
	if err != nil {
		return d.fail(t, err)
	}
	if conn.Status != session.StatusConnected || conn.Conn == nil {
		return d.fail(t, fmt.Errorf("connection %s is not connected", conn.Display))
	}
	if t.Pager != nil {
		t.Pager.CancelBackground()
	}
	p := pager.New(conn.Conn, t.TableName, d.App.PagerConfig())
	p.Wait = d.UI.WaitOp
	if err := p.Init(ctx); err != nil {
		return d.fail(t, err)
	}
	t.Pager = p
	t.Err = ""
	t.NeedsRefresh = false

	if pos, ok := t.ApplyPending(p.Schema); ok {
		if ch := d.applyTabFilters(ctx, t); ch == None && (len(t.Filters) > 0 || len(t.Sort) > 0) {
			return Status | Data
		}
		if err := p.GotoAbs(ctx, pos.Row, d.visibleRows()); err == nil {
			p.CursorCol = pos.Col
			if p.Res != nil && p.CursorCol >= len(p.Res.Columns) {
				p.CursorCol = 0
			}
			p.RestoreScroll(pos.ScrollRow, pos.ScrollCol, d.visibleRows())
		}
	}
	d.rowStatus(p)
	return Data | Schema | Cursor | Scroll | Status | Filters
}

// refreshTable re-counts and reloads around the cursor.
func (d *Dispatcher) refreshTable(ctx context.Context) Change {
	t := d.App.CurrentTab()
	if t == nil || t.Kind != session.TabTable || t.Pager == nil {
		return None
	}
	if err := t.Pager.Reload(ctx); err != nil {
		return d.fail(t, err)
	}
	t.NeedsRefresh = false
	d.rowStatus(t.Pager)
	return Data | Cursor | Scroll | Status
}

// loadEdge forces a blocking window extension.
func (d *Dispatcher) loadEdge(ctx context.Context, forward bool) Change {
	t := d.App.CurrentTab()
	if t == nil || t.Kind != session.TabTable || t.Pager == nil {
		return None
	}
	var err error
	if forward {
		err = t.Pager.LoadMore(ctx)
	} else {
		err = t.Pager.LoadPrev(ctx)
	}
	if err != nil {
		return d.fail(t, err)
	}
	return Data | Status
}

// applyTabFilters compiles the tab's filters and sort and reloads.
func (d *Dispatcher) applyTabFilters(ctx context.Context, t *session.Tab) Change {
	p := t.Pager
	if p == nil {
		return None
	}
	dialect := p.Conn().Dialect()
	where, _ := filter.Compile(t.Filters, p.Schema, dialect)
	orderBy := session.CompileOrderBy(t.Sort, p.Schema, dialect)
	if err := p.SetFilterSort(ctx, where, orderBy); err != nil {
		return d.fail(t, err)
	}
	d.rowStatus(p)
	return Data | Filters | Cursor | Scroll | Status
}

// Tick polls background work once per event-loop pass. Finished prefetches
// merge into their tabs; failures surface silently (the payload is freed).
func (d *Dispatcher) Tick() Change {
	ch := None
	for _, ws := range d.App.Workspaces {
		for _, t := range ws.Tabs {
			if t.Pager == nil {
				continue
			}
			changed, err := t.Pager.Tick()
			if err != nil {
				// Background failures are not surfaced unless the UI was
				// explicitly waiting on them.
				continue
			}
			if changed {
				ch |= Data
			}
		}
	}
	return ch
}

func (d *Dispatcher) visibleRows() int {
	if d.UI.VisibleRows != nil {
		if n := d.UI.VisibleRows(); n > 0 {
			return n
		}
	}
	return 30
}

func (d *Dispatcher) visibleCols() int {
	if d.UI.VisibleCols != nil {
		if n := d.UI.VisibleCols(); n > 0 {
			return n
		}
	}
	return 8
}

func (d *Dispatcher) rebuildLayout() {
	if d.UI.RebuildLayout != nil {
		d.UI.RebuildLayout()
	}
}

// fail records the error on the tab and the status bar.
func (d *Dispatcher) fail(t *session.Tab, err error) Change {
	if t != nil {
		t.Err = err.Error()
	}
	d.App.Status = err.Error()
	return Status
}

func (d *Dispatcher) rowStatus(p *pager.Pager) {
	suffix := ""
	if p.Approx {
		suffix = "~"
	}
	if p.Total == 0 {
		d.App.Status = "0 rows"
		return
	}
	d.App.Status = fmt.Sprintf("row %d of %s%d", p.AbsCursor()+1, suffix, p.Total)
}
