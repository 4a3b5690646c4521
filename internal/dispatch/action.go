package dispatch

// ActionKind enumerates every user intent the dispatcher understands.
type ActionKind int

const (
	ActNone ActionKind = iota

	// Cursor and navigation
	ActCursorMove
	ActCursorGoto
	ActPageUp
	ActPageDown
	ActHome
	ActEnd
	ActColumnFirst
	ActColumnLast

	// Cell editing
	ActEditStart
	ActEditStartModal
	ActEditConfirm
	ActEditCancel
	ActEditInput
	ActEditBackspace
	ActEditDelete
	ActEditCursorLeft
	ActEditCursorRight
	ActEditCursorHome
	ActEditCursorEnd
	ActCellSetNull
	ActCellSetEmpty

	// Rows
	ActRowDelete
	ActRowToggleSelect
	ActRowClearSelections

	// Tabs
	ActTabNext
	ActTabPrev
	ActTabSwitch
	ActTabCreate
	ActTabCreateQuery
	ActTabClose

	// Workspaces
	ActWorkspaceNext
	ActWorkspacePrev
	ActWorkspaceSwitch
	ActWorkspaceCreate
	ActWorkspaceCreateQuery
	ActWorkspaceClose

	// Sidebar
	ActSidebarToggle
	ActSidebarFocus
	ActSidebarUnfocus
	ActSidebarMove
	ActSidebarSelect
	ActSidebarSelectNewTab
	ActSidebarFilterStart
	ActSidebarFilterInput
	ActSidebarFilterBackspace
	ActSidebarFilterClear
	ActSidebarFilterStop

	// Filter editor
	ActFiltersToggle
	ActFiltersFocus
	ActFiltersUnfocus
	ActFiltersMove
	ActFiltersAdd
	ActFiltersRemove
	ActFiltersClear
	ActFiltersEditStart
	ActFiltersInput
	ActFiltersBackspace
	ActFiltersSetOp
	ActFiltersConfirm
	ActFiltersCancel
	ActFiltersApply

	// Query buffer
	ActQueryInput
	ActQueryBackspace
	ActQueryDelete
	ActQueryCursorLeft
	ActQueryCursorRight
	ActQueryCursorHome
	ActQueryCursorEnd
	ActQueryExecute
	ActQueryExecuteAll
	ActQueryExecuteTxn
	ActQueryLoadMore

	// Connections and data
	ActConnect
	ActDisconnect
	ActTableLoad
	ActTableRefresh
	ActDataLoadMore
	ActDataLoadPrev

	// Global toggles and dialogs
	ActToggleHeader
	ActToggleStatus
	ActShowSchema
	ActShowGoto
	ActShowConnect
	ActShowHelp

	ActQuit
	ActQuitForce
)

// Action is one dispatched intent. Only the arguments the kind consumes are
// meaningful.
type Action struct {
	Kind     ActionKind
	DeltaRow int
	DeltaCol int
	Row      int64  // absolute row for goto
	Index    int    // tab, workspace, filter, or sidebar index
	Ch       rune   // character input
	Text     string // connection string, filter op name, etc.
}
