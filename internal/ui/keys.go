package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rebeliceyang/lazydb/internal/dispatch"
)

// mode selects which keymap is live.
type mode int

const (
	modeBrowse mode = iota
	modeSidebar
	modeEdit
	modeFilters
	modeQuery
	modeConnect
)

// operatorCycle is the order the filter editor steps through operators.
var operatorCycle = []string{"=", "!=", "<", "<=", ">", ">=", "contains", "regex", "in", "is null", "is not null"}

// keyToAction translates one key press into a dispatcher action for the
// current mode. A zero-kind action means the key is unbound.
func (m *Model) keyToAction(msg tea.KeyMsg) dispatch.Action {
	switch m.mode {
	case modeSidebar:
		return m.sidebarKey(msg)
	case modeEdit:
		return editKey(msg)
	case modeFilters:
		return m.filterKey(msg)
	case modeQuery:
		return queryKey(msg)
	default:
		return m.browseKey(msg)
	}
}

func (m *Model) browseKey(msg tea.KeyMsg) dispatch.Action {
	switch msg.String() {
	case "j", "down":
		return dispatch.Action{Kind: dispatch.ActCursorMove, DeltaRow: 1}
	case "k", "up":
		return dispatch.Action{Kind: dispatch.ActCursorMove, DeltaRow: -1}
	case "h", "left":
		return dispatch.Action{Kind: dispatch.ActCursorMove, DeltaCol: -1}
	case "l", "right":
		return dispatch.Action{Kind: dispatch.ActCursorMove, DeltaCol: 1}
	case "pgdown", "ctrl+f":
		return dispatch.Action{Kind: dispatch.ActPageDown}
	case "pgup", "ctrl+b":
		return dispatch.Action{Kind: dispatch.ActPageUp}
	case "g", "home":
		return dispatch.Action{Kind: dispatch.ActHome}
	case "G", "end":
		return dispatch.Action{Kind: dispatch.ActEnd}
	case "0":
		return dispatch.Action{Kind: dispatch.ActColumnFirst}
	case "$":
		return dispatch.Action{Kind: dispatch.ActColumnLast}

	case "i", "enter":
		return dispatch.Action{Kind: dispatch.ActEditStart}
	case "e":
		return dispatch.Action{Kind: dispatch.ActEditStartModal}
	case "N":
		return dispatch.Action{Kind: dispatch.ActCellSetNull}
	case "E":
		return dispatch.Action{Kind: dispatch.ActCellSetEmpty}
	case "d":
		return dispatch.Action{Kind: dispatch.ActRowDelete}
	case " ":
		return dispatch.Action{Kind: dispatch.ActRowToggleSelect}
	case "c":
		return dispatch.Action{Kind: dispatch.ActRowClearSelections}

	case "tab":
		return dispatch.Action{Kind: dispatch.ActTabNext}
	case "shift+tab":
		return dispatch.Action{Kind: dispatch.ActTabPrev}
	case "T":
		return dispatch.Action{Kind: dispatch.ActTabCreateQuery}
	case "x":
		return dispatch.Action{Kind: dispatch.ActTabClose}
	case "]":
		return dispatch.Action{Kind: dispatch.ActWorkspaceNext}
	case "[":
		return dispatch.Action{Kind: dispatch.ActWorkspacePrev}

	case "s":
		return dispatch.Action{Kind: dispatch.ActSidebarFocus}
	case "S":
		return dispatch.Action{Kind: dispatch.ActSidebarToggle}
	case "f":
		// With the panel already open but unfocused, f refocuses it.
		if m.dispatcher.FiltersOn && !m.dispatcher.FiltersFocused {
			return dispatch.Action{Kind: dispatch.ActFiltersFocus}
		}
		return dispatch.Action{Kind: dispatch.ActFiltersToggle}
	case "r", "f5":
		return dispatch.Action{Kind: dispatch.ActTableRefresh}
	case "D":
		return dispatch.Action{Kind: dispatch.ActDisconnect}
	case "C":
		return dispatch.Action{Kind: dispatch.ActShowConnect}
	case "?":
		return dispatch.Action{Kind: dispatch.ActShowHelp}

	case "q":
		return dispatch.Action{Kind: dispatch.ActQuit}
	case "Q", "ctrl+c":
		return dispatch.Action{Kind: dispatch.ActQuitForce}
	}
	return dispatch.Action{}
}

func (m *Model) sidebarKey(msg tea.KeyMsg) dispatch.Action {
	if m.dispatcher.Sidebar.Filtering {
		switch msg.String() {
		case "esc":
			return dispatch.Action{Kind: dispatch.ActSidebarFilterStop}
		case "enter":
			return dispatch.Action{Kind: dispatch.ActSidebarSelect}
		case "backspace":
			return dispatch.Action{Kind: dispatch.ActSidebarFilterBackspace}
		case "ctrl+u":
			return dispatch.Action{Kind: dispatch.ActSidebarFilterClear}
		}
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
			return dispatch.Action{Kind: dispatch.ActSidebarFilterInput, Ch: msg.Runes[0]}
		}
		return dispatch.Action{}
	}
	switch msg.String() {
	case "j", "down":
		return dispatch.Action{Kind: dispatch.ActSidebarMove, DeltaRow: 1}
	case "k", "up":
		return dispatch.Action{Kind: dispatch.ActSidebarMove, DeltaRow: -1}
	case "enter":
		return dispatch.Action{Kind: dispatch.ActSidebarSelect}
	case "o":
		return dispatch.Action{Kind: dispatch.ActSidebarSelectNewTab}
	case "/":
		return dispatch.Action{Kind: dispatch.ActSidebarFilterStart}
	case "esc", "s":
		return dispatch.Action{Kind: dispatch.ActSidebarUnfocus}
	case "q":
		return dispatch.Action{Kind: dispatch.ActQuit}
	case "ctrl+c":
		return dispatch.Action{Kind: dispatch.ActQuitForce}
	}
	return dispatch.Action{}
}

func editKey(msg tea.KeyMsg) dispatch.Action {
	switch msg.String() {
	case "enter":
		return dispatch.Action{Kind: dispatch.ActEditConfirm}
	case "esc":
		return dispatch.Action{Kind: dispatch.ActEditCancel}
	case "backspace":
		return dispatch.Action{Kind: dispatch.ActEditBackspace}
	case "delete":
		return dispatch.Action{Kind: dispatch.ActEditDelete}
	case "left":
		return dispatch.Action{Kind: dispatch.ActEditCursorLeft}
	case "right":
		return dispatch.Action{Kind: dispatch.ActEditCursorRight}
	case "home":
		return dispatch.Action{Kind: dispatch.ActEditCursorHome}
	case "end":
		return dispatch.Action{Kind: dispatch.ActEditCursorEnd}
	}
	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		return dispatch.Action{Kind: dispatch.ActEditInput, Ch: msg.Runes[0]}
	}
	return dispatch.Action{}
}

func (m *Model) filterKey(msg tea.KeyMsg) dispatch.Action {
	if m.dispatcher.FilterEdit.Active {
		switch msg.String() {
		case "enter":
			return dispatch.Action{Kind: dispatch.ActFiltersConfirm}
		case "esc":
			return dispatch.Action{Kind: dispatch.ActFiltersCancel}
		case "backspace":
			return dispatch.Action{Kind: dispatch.ActFiltersBackspace}
		}
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
			return dispatch.Action{Kind: dispatch.ActFiltersInput, Ch: msg.Runes[0]}
		}
		return dispatch.Action{}
	}
	switch msg.String() {
	case "j", "down":
		return dispatch.Action{Kind: dispatch.ActFiltersMove, DeltaRow: 1}
	case "k", "up":
		return dispatch.Action{Kind: dispatch.ActFiltersMove, DeltaRow: -1}
	case "a":
		return dispatch.Action{Kind: dispatch.ActFiltersAdd, Index: -1}
	case "d":
		return dispatch.Action{Kind: dispatch.ActFiltersRemove}
	case "c":
		return dispatch.Action{Kind: dispatch.ActFiltersClear}
	case "enter", "i":
		return dispatch.Action{Kind: dispatch.ActFiltersEditStart}
	case "o":
		m.opCycle = (m.opCycle + 1) % len(operatorCycle)
		return dispatch.Action{Kind: dispatch.ActFiltersSetOp, Text: operatorCycle[m.opCycle]}
	case "esc":
		return dispatch.Action{Kind: dispatch.ActFiltersUnfocus}
	case "f":
		return dispatch.Action{Kind: dispatch.ActFiltersToggle}
	case "F":
		return dispatch.Action{Kind: dispatch.ActFiltersApply}
	case "ctrl+c":
		return dispatch.Action{Kind: dispatch.ActQuitForce}
	}
	return dispatch.Action{}
}

func queryKey(msg tea.KeyMsg) dispatch.Action {
	switch msg.String() {
	case "ctrl+r":
		return dispatch.Action{Kind: dispatch.ActQueryExecute}
	case "ctrl+a":
		return dispatch.Action{Kind: dispatch.ActQueryExecuteAll}
	case "ctrl+t":
		return dispatch.Action{Kind: dispatch.ActQueryExecuteTxn}
	case "ctrl+n":
		return dispatch.Action{Kind: dispatch.ActQueryLoadMore}
	case "backspace":
		return dispatch.Action{Kind: dispatch.ActQueryBackspace}
	case "delete":
		return dispatch.Action{Kind: dispatch.ActQueryDelete}
	case "left":
		return dispatch.Action{Kind: dispatch.ActQueryCursorLeft}
	case "right":
		return dispatch.Action{Kind: dispatch.ActQueryCursorRight}
	case "home":
		return dispatch.Action{Kind: dispatch.ActQueryCursorHome}
	case "end":
		return dispatch.Action{Kind: dispatch.ActQueryCursorEnd}
	case "enter":
		return dispatch.Action{Kind: dispatch.ActQueryInput, Ch: '\n'}
	case "tab":
		return dispatch.Action{Kind: dispatch.ActTabNext}
	case "shift+tab":
		return dispatch.Action{Kind: dispatch.ActTabPrev}
	case "esc":
		return dispatch.Action{Kind: dispatch.ActTabClose}
	case "ctrl+c":
		return dispatch.Action{Kind: dispatch.ActQuitForce}
	}
	if msg.Type == tea.KeyRunes {
		if len(msg.Runes) == 1 {
			return dispatch.Action{Kind: dispatch.ActQueryInput, Ch: msg.Runes[0]}
		}
	}
	if msg.Type == tea.KeySpace {
		return dispatch.Action{Kind: dispatch.ActQueryInput, Ch: ' '}
	}
	return dispatch.Action{}
}
