// Package session holds all per-session state: the connection pool, the
// workspaces and their tabs, and the persistence that survives restarts.
package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rebeliceyang/lazydb/internal/config"
	"github.com/rebeliceyang/lazydb/internal/driver"
	"github.com/rebeliceyang/lazydb/internal/filter"
	"github.com/rebeliceyang/lazydb/internal/pager"
	"github.com/rebeliceyang/lazydb/internal/task"
)

// Status is a connection's lifecycle state.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Connection is one pooled database connection. Tabs refer to it by pool
// index, never by pointer.
type Connection struct {
	ID      uuid.UUID
	Conn    driver.Conn
	ConnStr string // password stripped
	Display string
	Scheme  string
	Tables  []string // cached after the first successful listing
	Status  Status
	Err     string
}

// TabKind discriminates the three tab types.
type TabKind int

const (
	TabTable TabKind = iota
	TabQuery
	TabConnection
)

func (k TabKind) String() string {
	switch k {
	case TabTable:
		return "table"
	case TabQuery:
		return "query"
	default:
		return "connection"
	}
}

// MaxSortColumns bounds a tab's sort entries.
const MaxSortColumns = 4

// SortEntry is one ORDER BY column; entries tie-break left to right.
type SortEntry struct {
	ColumnIndex int
	Desc        bool
}

// CompileOrderBy renders sort entries as an ORDER BY body, skipping entries
// whose column index is out of range.
func CompileOrderBy(entries []SortEntry, schema *driver.TableSchema, d driver.Dialect) string {
	if schema == nil {
		return ""
	}
	var out string
	for _, e := range entries {
		if e.ColumnIndex < 0 || e.ColumnIndex >= len(schema.Columns) {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += d.QuoteIdent(schema.Columns[e.ColumnIndex].Name)
		if e.Desc {
			out += " DESC"
		}
	}
	return out
}

// QueryState is the editable SQL buffer and its results for a query tab.
type QueryState struct {
	Text       []rune
	Cursor     int
	ScrollLine int
	ScrollCol  int

	Results  *driver.ResultSet
	Affected int64
	Err      string

	// Result paging: BaseSQL is the statement re-run with LIMIT/OFFSET when
	// the result set is larger than one page.
	BaseSQL      string
	Total        int64
	LoadedOffset int64
	Paginated    bool
}

// NewQueryState allocates an empty query buffer.
func NewQueryState() *QueryState {
	return &QueryState{Text: make([]rune, 0, 1024)}
}

// Tab is one workspace tab. Exactly the fields for its kind are used.
type Tab struct {
	Kind         TabKind
	ConnIndex    int
	Active       bool
	NeedsRefresh bool
	Err          string

	// Table tab
	TableIndex int
	TableName  string
	Pager      *pager.Pager
	Filters    []filter.ColumnFilter
	Sort       []SortEntry
	Selected   map[int64]struct{} // absolute row indexes

	// Query tab
	Query *QueryState

	// At most one background op per tab; joined before replacement or close.
	Op *task.Op

	// Restored-but-unapplied session state, resolved once the schema loads.
	restorePending *Pending
}

func (t *Tab) pending() (*Pending, bool) { return t.restorePending, t.restorePending != nil }
func (t *Tab) setPending(p *Pending)     { t.restorePending = p }
func (t *Tab) clearPending()             { t.restorePending = nil }

// JoinOps joins and discards every in-flight op owned by the tab.
func (t *Tab) JoinOps() {
	if t.Pager != nil {
		t.Pager.CancelBackground()
	}
	task.Join(t.Op)
	t.Op = nil
}

// Workspace is an ordered tab list with a focus pointer.
type Workspace struct {
	Name       string
	Tabs       []*Tab
	CurrentTab int
}

// CurrentTab returns the focused tab, or nil for an empty workspace.
func (w *Workspace) Current() *Tab {
	if len(w.Tabs) == 0 || w.CurrentTab < 0 || w.CurrentTab >= len(w.Tabs) {
		return nil
	}
	return w.Tabs[w.CurrentTab]
}

// App is the root of the model. It is owned by the event loop and mutated
// only on the UI goroutine.
type App struct {
	Registry    *driver.Registry
	Connections []*Connection
	Workspaces  []*Workspace
	CurrentWS   int

	PageSize      int
	HeaderVisible bool
	StatusVisible bool
	Running       bool

	Config *config.Config
	Status string
}

// NewApp creates the model with one empty workspace.
func NewApp(reg *driver.Registry, cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.GetDefaults()
	}
	return &App{
		Registry:      reg,
		Workspaces:    []*Workspace{{}},
		PageSize:      cfg.Pagination.PageSize,
		HeaderVisible: cfg.Display.HeaderVisible,
		StatusVisible: cfg.Display.StatusVisible,
		Running:       true,
		Config:        cfg,
	}
}

// PagerConfig builds the pager tunables from the loaded configuration.
func (a *App) PagerConfig() pager.Config {
	cfg := pager.DefaultConfig()
	p := a.Config.Pagination
	if p.PageSize > 0 {
		cfg.PageSize = int64(p.PageSize)
	}
	if p.PrefetchPages > 0 {
		cfg.PrefetchPages = int64(p.PrefetchPages)
	}
	if p.LoadThreshold > 0 {
		cfg.LoadThreshold = int64(p.LoadThreshold)
	}
	if p.PrefetchThreshold > 0 {
		cfg.PrefetchThreshold = int64(p.PrefetchThreshold)
	}
	if p.MaxLoadedPages > 0 {
		cfg.MaxLoadedPages = int64(p.MaxLoadedPages)
	}
	if p.TrimDistancePages > 0 {
		cfg.TrimDistancePages = int64(p.TrimDistancePages)
	}
	if p.MaxResidentRows > 0 {
		cfg.MaxResidentRows = int64(p.MaxResidentRows)
	}
	if a.Config.Display.MinColWidth > 0 {
		cfg.MinColWidth = a.Config.Display.MinColWidth
	}
	if a.Config.Display.MaxColWidth > 0 {
		cfg.MaxColWidth = a.Config.Display.MaxColWidth
	}
	return cfg
}

// CurrentWorkspace returns the focused workspace, or nil when none exist.
func (a *App) CurrentWorkspace() *Workspace {
	if len(a.Workspaces) == 0 || a.CurrentWS < 0 || a.CurrentWS >= len(a.Workspaces) {
		return nil
	}
	return a.Workspaces[a.CurrentWS]
}

// CurrentTab returns the focused tab of the focused workspace.
func (a *App) CurrentTab() *Tab {
	ws := a.CurrentWorkspace()
	if ws == nil {
		return nil
	}
	return ws.Current()
}

// AddConnection appends a live connection to the pool.
func (a *App) AddConnection(conn driver.Conn, connstr string) (*Connection, int) {
	stripped, _ := driver.SplitPassword(connstr)
	dsn, _ := driver.ParseDSN(connstr)
	c := &Connection{
		ID:      uuid.New(),
		Conn:    conn,
		ConnStr: stripped,
		Display: driver.DisplayName(stripped),
		Scheme:  dsn.Scheme,
		Status:  StatusConnected,
	}
	a.Connections = append(a.Connections, c)
	return c, len(a.Connections) - 1
}

// GetConnection is bounds-checked pool access.
func (a *App) GetConnection(index int) (*Connection, error) {
	if index < 0 || index >= len(a.Connections) {
		return nil, fmt.Errorf("connection index %d out of range", index)
	}
	return a.Connections[index], nil
}

// HasLiveConnection reports whether any pool slot is still connected.
func (a *App) HasLiveConnection() bool {
	for _, c := range a.Connections {
		if c.Status == StatusConnected {
			return true
		}
	}
	return false
}

// CloseConnection closes every tab referring to the connection, then the
// handle itself. The pool slot stays so other indexes remain valid.
func (a *App) CloseConnection(index int) error {
	c, err := a.GetConnection(index)
	if err != nil {
		return err
	}
	for _, ws := range a.Workspaces {
		for i := len(ws.Tabs) - 1; i >= 0; i-- {
			if ws.Tabs[i].ConnIndex == index {
				a.removeTab(ws, i)
			}
		}
	}
	a.pruneEmptyWorkspaces()
	if c.Conn != nil {
		_ = c.Conn.Close()
		c.Conn = nil
	}
	c.Tables = nil
	c.Status = StatusDisconnected
	return nil
}

// CloseAll tears everything down in order: ops, tabs, connections.
func (a *App) CloseAll() {
	for _, ws := range a.Workspaces {
		for _, t := range ws.Tabs {
			t.JoinOps()
		}
	}
	for _, c := range a.Connections {
		if c.Conn != nil {
			_ = c.Conn.Close()
			c.Conn = nil
		}
		c.Status = StatusDisconnected
	}
}

// CreateWorkspace appends an empty workspace and focuses it.
func (a *App) CreateWorkspace() *Workspace {
	ws := &Workspace{}
	a.Workspaces = append(a.Workspaces, ws)
	a.CurrentWS = len(a.Workspaces) - 1
	return ws
}

// SwitchWorkspace moves focus; out-of-range indexes are ignored.
func (a *App) SwitchWorkspace(index int) {
	if index >= 0 && index < len(a.Workspaces) {
		a.CurrentWS = index
	}
}

// CloseWorkspace frees every tab in the workspace and removes it.
func (a *App) CloseWorkspace(index int) {
	if index < 0 || index >= len(a.Workspaces) {
		return
	}
	ws := a.Workspaces[index]
	for _, t := range ws.Tabs {
		t.JoinOps()
	}
	a.Workspaces = append(a.Workspaces[:index], a.Workspaces[index+1:]...)
	if a.CurrentWS >= len(a.Workspaces) {
		a.CurrentWS = len(a.Workspaces) - 1
	}
	if a.CurrentWS < 0 {
		a.CurrentWS = 0
	}
}

// CreateTableTab appends a table tab to the workspace and focuses it.
func (a *App) CreateTableTab(ws *Workspace, connIndex, tableIndex int, tableName string) *Tab {
	t := &Tab{
		Kind:       TabTable,
		ConnIndex:  connIndex,
		Active:     true,
		TableIndex: tableIndex,
		TableName:  tableName,
		Selected:   make(map[int64]struct{}),
	}
	ws.Tabs = append(ws.Tabs, t)
	ws.CurrentTab = len(ws.Tabs) - 1
	return t
}

// CreateQueryTab appends a query tab to the workspace and focuses it.
func (a *App) CreateQueryTab(ws *Workspace, connIndex int) *Tab {
	t := &Tab{
		Kind:      TabQuery,
		ConnIndex: connIndex,
		Active:    true,
		Query:     NewQueryState(),
	}
	ws.Tabs = append(ws.Tabs, t)
	ws.CurrentTab = len(ws.Tabs) - 1
	return t
}

// CreateConnectionTab appends the placeholder tab shown when a connection has
// no content tabs.
func (a *App) CreateConnectionTab(ws *Workspace, connIndex int) *Tab {
	t := &Tab{Kind: TabConnection, ConnIndex: connIndex, Active: true}
	ws.Tabs = append(ws.Tabs, t)
	ws.CurrentTab = len(ws.Tabs) - 1
	return t
}

// SwitchTab moves tab focus; out-of-range indexes are ignored.
func (a *App) SwitchTab(ws *Workspace, index int) {
	if index >= 0 && index < len(ws.Tabs) {
		ws.CurrentTab = index
	}
}

// CloseTab frees a tab. Closing the last content tab of a connection either
// degenerates to a connection tab or closes the connection, per policy.
// Closing the last tab of a workspace closes the workspace.
func (a *App) CloseTab(ws *Workspace, index int) {
	if index < 0 || index >= len(ws.Tabs) {
		return
	}
	closed := ws.Tabs[index]
	connIndex := closed.ConnIndex
	wasContent := closed.Kind != TabConnection
	a.removeTab(ws, index)

	if wasContent && !a.connHasContentTabs(connIndex) {
		if a.Config.General.CloseConnOnLastTab {
			_ = a.CloseConnection(connIndex)
		} else if !a.connHasAnyTab(connIndex) {
			a.CreateConnectionTab(ws, connIndex)
		}
	}
	if len(ws.Tabs) == 0 {
		for i, w := range a.Workspaces {
			if w == ws {
				a.CloseWorkspace(i)
				break
			}
		}
	}
}

// removeTab joins the tab's ops and shifts it out of the workspace.
func (a *App) removeTab(ws *Workspace, index int) {
	t := ws.Tabs[index]
	t.JoinOps()
	ws.Tabs = append(ws.Tabs[:index], ws.Tabs[index+1:]...)
	if ws.CurrentTab >= len(ws.Tabs) {
		ws.CurrentTab = len(ws.Tabs) - 1
	}
	if ws.CurrentTab < 0 {
		ws.CurrentTab = 0
	}
}

func (a *App) pruneEmptyWorkspaces() {
	for i := len(a.Workspaces) - 1; i >= 0; i-- {
		if len(a.Workspaces[i].Tabs) == 0 && len(a.Workspaces) > 1 {
			a.CloseWorkspace(i)
		}
	}
}

func (a *App) connHasContentTabs(connIndex int) bool {
	for _, ws := range a.Workspaces {
		for _, t := range ws.Tabs {
			if t.ConnIndex == connIndex && t.Kind != TabConnection {
				return true
			}
		}
	}
	return false
}

func (a *App) connHasAnyTab(connIndex int) bool {
	for _, ws := range a.Workspaces {
		for _, t := range ws.Tabs {
			if t.ConnIndex == connIndex {
				return true
			}
		}
	}
	return false
}

// MarkTableDirty flags every other tab showing the same table for reload the
// next time it is focused. This is the only cross-tab signal.
func (a *App) MarkTableDirty(connIndex int, tableName string, except *Tab) {
	for _, ws := range a.Workspaces {
		for _, t := range ws.Tabs {
			if t == except || t.Kind != TabTable {
				continue
			}
			if t.ConnIndex == connIndex && t.TableName == tableName {
				t.NeedsRefresh = true
			}
		}
	}
}
