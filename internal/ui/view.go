package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rebeliceyang/lazydb/internal/pager"
	"github.com/rebeliceyang/lazydb/internal/session"
)

const (
	sidebarWidth      = 28
	filterPanelHeight = 6
)

func (m *Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.showHelp {
		return m.helpView()
	}

	var sections []string
	if m.app.HeaderVisible {
		sections = append(sections, m.headerView(), "")
	}

	main := m.mainView()
	if m.dispatcher.Sidebar.Visible {
		side := m.sidebarView()
		main = lipgloss.JoinHorizontal(lipgloss.Top, side, " ", main)
	}
	sections = append(sections, main)

	if m.dispatcher.FiltersOn {
		sections = append(sections, m.filterView())
	}
	if m.connecting {
		sections = append(sections, "Connect: "+m.connectInput.View())
	}
	if m.app.StatusVisible {
		sections = append(sections, m.statusView())
	}
	return strings.Join(sections, "\n")
}

// headerView draws the workspace list and the current workspace's tabs.
func (m *Model) headerView() string {
	var b strings.Builder
	for i, ws := range m.app.Workspaces {
		name := ws.Name
		if name == "" {
			name = fmt.Sprintf("ws%d", i+1)
		}
		if i == m.app.CurrentWS {
			b.WriteString(m.st.tabActive.Render(name))
		} else {
			b.WriteString(m.st.tabIdle.Render(name))
		}
		b.WriteString("  ")
	}
	ws := m.app.CurrentWorkspace()
	if ws == nil {
		return b.String()
	}
	b.WriteString(m.st.muted.Render("| "))
	for i, t := range ws.Tabs {
		label := m.tabLabel(t)
		if i == ws.CurrentTab {
			b.WriteString(m.st.tabActive.Render(label))
		} else {
			b.WriteString(m.st.tabIdle.Render(label))
		}
		b.WriteString(" ")
	}
	return b.String()
}

func (m *Model) tabLabel(t *session.Tab) string {
	switch t.Kind {
	case session.TabTable:
		return t.TableName
	case session.TabQuery:
		return "[sql]"
	default:
		if c, err := m.app.GetConnection(t.ConnIndex); err == nil {
			return "[" + c.Display + "]"
		}
		return "[conn]"
	}
}

func (m *Model) sidebarView() string {
	tables := m.dispatcher.SidebarTables()
	var b strings.Builder
	title := "Tables"
	if m.dispatcher.Sidebar.Filter != "" || m.dispatcher.Sidebar.Filtering {
		title = "/" + m.dispatcher.Sidebar.Filter
	}
	b.WriteString(m.st.header.Render(pad(title, sidebarWidth)))
	b.WriteString("\n")
	visible := m.visibleRows() + 1
	for i, name := range tables {
		if i >= visible {
			break
		}
		line := pad(" "+name, sidebarWidth)
		if i == m.dispatcher.Sidebar.Selection && m.dispatcher.Sidebar.Focused {
			b.WriteString(m.st.sideSel.Render(line))
		} else {
			b.WriteString(m.st.sidebar.Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) mainView() string {
	t := m.app.CurrentTab()
	if t == nil {
		return m.st.muted.Render("No tabs. Press C to connect.")
	}
	if t.Err != "" {
		return m.st.errText.Render(t.Err)
	}
	switch t.Kind {
	case session.TabTable:
		return m.tableView(t)
	case session.TabQuery:
		return m.queryView(t)
	default:
		if c, err := m.app.GetConnection(t.ConnIndex); err == nil {
			return m.st.muted.Render("Connected: " + c.Display + ". Press s to browse tables.")
		}
		return ""
	}
}

// tableView draws the resident window of the tab's pager.
func (m *Model) tableView(t *session.Tab) string {
	p := t.Pager
	if p == nil || p.Res == nil {
		return m.st.muted.Render("loading...")
	}
	var b strings.Builder

	// Column header
	var heads, seps []string
	for c := p.ScrollCol; c < len(p.Res.Columns); c++ {
		w := colWidth(p, c)
		heads = append(heads, pad(p.Res.Columns[c].Name, w))
		seps = append(seps, strings.Repeat("-", w))
	}
	b.WriteString(m.st.colHead.Render(strings.Join(heads, " | ")))
	b.WriteString("\n")
	b.WriteString(m.st.muted.Render(strings.Join(seps, "-+-")))
	b.WriteString("\n")

	visible := m.visibleRows()
	end := p.ScrollRow + visible
	if end > len(p.Res.Rows) {
		end = len(p.Res.Rows)
	}
	for r := p.ScrollRow; r < end; r++ {
		row := p.Res.Rows[r]
		var cells []string
		for c := p.ScrollCol; c < len(p.Res.Columns); c++ {
			val := ""
			if c < len(row) {
				val = row[c].String()
			}
			cell := pad(val, colWidth(p, c))
			if r == p.CursorRow && c == p.CursorCol {
				if m.dispatcher.Edit.Active && !m.dispatcher.Edit.Modal {
					cell = pad(string(m.dispatcher.Edit.Text)+"_", colWidth(p, c))
				}
				cell = m.st.cursor.Render(cell)
			}
			cells = append(cells, cell)
		}
		line := strings.Join(cells, " | ")
		if _, sel := t.Selected[p.LoadedOffset+int64(r)]; sel && r != p.CursorRow {
			line = m.st.selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) queryView(t *session.Tab) string {
	q := t.Query
	var b strings.Builder
	b.WriteString(m.st.header.Render("SQL (ctrl+r run, ctrl+a run all, ctrl+t run in txn)"))
	b.WriteString("\n")
	text := string(q.Text)
	if q.Cursor <= len(q.Text) {
		text = string(q.Text[:q.Cursor]) + "_" + string(q.Text[q.Cursor:])
	}
	b.WriteString(text)
	b.WriteString("\n")
	if q.Err != "" {
		b.WriteString(m.st.errText.Render(q.Err))
		return b.String()
	}
	if q.Results == nil {
		return strings.TrimRight(b.String(), "\n")
	}
	if len(q.Results.Columns) == 0 {
		b.WriteString(m.st.muted.Render(fmt.Sprintf("%d row(s) affected", q.Affected)))
		return b.String()
	}

	var heads []string
	for _, col := range q.Results.Columns {
		heads = append(heads, col.Name)
	}
	b.WriteString(m.st.colHead.Render(strings.Join(heads, " | ")))
	b.WriteString("\n")
	limit := m.visibleRows() - 3
	for i, row := range q.Results.Rows {
		if i >= limit {
			more := len(q.Results.Rows) - limit
			b.WriteString(m.st.muted.Render(fmt.Sprintf("... %d more loaded (ctrl+n for next page)", more)))
			break
		}
		var cells []string
		for _, v := range row {
			cells = append(cells, v.String())
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// filterView draws the tab's filter list with the staged edit inline.
func (m *Model) filterView() string {
	t := m.app.CurrentTab()
	if t == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.st.header.Render("Filters (a add, o op, enter edit, F apply)"))
	b.WriteString("\n")
	if len(t.Filters) == 0 {
		b.WriteString(m.st.muted.Render(" none"))
		return b.String()
	}
	for i, f := range t.Filters {
		col := fmt.Sprintf("col %d", f.ColumnIndex)
		if t.Pager != nil && t.Pager.Schema != nil && int(f.ColumnIndex) < len(t.Pager.Schema.Columns) {
			col = t.Pager.Schema.Columns[f.ColumnIndex].Name
		}
		value := f.Value
		if m.dispatcher.FilterEdit.Active && m.dispatcher.FilterEdit.Index == i {
			value = string(m.dispatcher.FilterEdit.Text) + "_"
		}
		line := fmt.Sprintf(" %s %s %s", col, f.Op.String(), value)
		if i == m.dispatcher.FilterSel {
			b.WriteString(m.st.sideSel.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) statusView() string {
	status := m.app.Status
	if m.waiting.Load() {
		status += "  " + m.st.muted.Render("[working... esc cancels]")
	} else if t := m.app.CurrentTab(); t != nil && t.Pager != nil && t.Pager.HasBackground() {
		status += "  " + m.st.muted.Render("[loading]")
	}
	return m.st.status.Render(status)
}

func (m *Model) helpView() string {
	return strings.Join([]string{
		m.st.header.Render("lazydb keys"),
		"",
		"  j/k h/l   move cursor        g/G   first/last row",
		"  pgup/pgdn page               0/$   first/last column",
		"  i/enter   edit cell          N/E   set NULL / empty",
		"  d         delete row         space select row",
		"  s/S       sidebar focus/toggle",
		"  f         filters            F     apply filters",
		"  tab       next tab           x     close tab",
		"  [/]       switch workspace   T     new query tab",
		"  r         refresh            y     copy cell",
		"  C         connect            D     disconnect",
		"  q/Q       quit / force quit",
		"",
		m.st.muted.Render("press any key to close"),
	}, "\n")
}

func colWidth(p *pager.Pager, c int) int {
	if c < len(p.ColWidths) {
		return p.ColWidths[c]
	}
	return 10
}

func pad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		if width <= 1 {
			return string(r[:width])
		}
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-len(r))
}
