package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rebeliceyang/lazydb/internal/config"
	"github.com/rebeliceyang/lazydb/internal/driver"
	"github.com/rebeliceyang/lazydb/internal/filter"
)

// FileVersion is bumped when the session layout changes incompatibly.
// Unknown keys are ignored on load.
const FileVersion = 1

// File is the on-disk session document. Passwords are never written.
type File struct {
	Version     int          `json:"version"`
	CurrentWS   int          `json:"current_workspace"`
	Connections []SavedConn  `json:"connections"`
	Workspaces  []SavedWS    `json:"workspaces"`
}

type SavedConn struct {
	ID      string `json:"id"`
	ConnStr string `json:"connstr"` // password already stripped
	Display string `json:"display"`
	Scheme  string `json:"scheme"`
}

type SavedWS struct {
	Name       string     `json:"name,omitempty"`
	CurrentTab int        `json:"current_tab"`
	Tabs       []SavedTab `json:"tabs"`
}

// SavedTab stores sort and filters by column name so they survive column
// reordering.
type SavedTab struct {
	Kind      string        `json:"kind"`
	ConnID    string        `json:"connection"`
	Table     string        `json:"table,omitempty"`
	CursorRow int64         `json:"cursor_row"`
	CursorCol int           `json:"cursor_col"`
	ScrollRow int64         `json:"scroll_row,omitempty"` // absolute row at the top of the viewport
	ScrollCol int           `json:"scroll_col,omitempty"`
	Sort      []NamedSort   `json:"sort,omitempty"`
	Filters   []NamedFilter `json:"filters,omitempty"`

	QueryText   string `json:"query_text,omitempty"`
	QueryCursor int    `json:"query_cursor,omitempty"`
}

type NamedSort struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

type NamedFilter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  string `json:"value,omitempty"`
}

// Pending carries restored tab state that cannot be applied until the table's
// schema is known.
type Pending struct {
	Sort      []NamedSort
	Filters   []NamedFilter
	Row       int64
	Col       int
	ScrollRow int64
	ScrollCol int
}

// DefaultPath returns the well-known session file location.
func DefaultPath() (string, error) {
	dir, err := config.GetConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// Snapshot captures the model as a session document.
func Snapshot(a *App) *File {
	f := &File{Version: FileVersion, CurrentWS: a.CurrentWS}
	for _, c := range a.Connections {
		if c.Status != StatusConnected {
			continue
		}
		f.Connections = append(f.Connections, SavedConn{
			ID:      c.ID.String(),
			ConnStr: c.ConnStr,
			Display: c.Display,
			Scheme:  c.Scheme,
		})
	}
	for _, ws := range a.Workspaces {
		sws := SavedWS{Name: ws.Name, CurrentTab: ws.CurrentTab}
		for _, t := range ws.Tabs {
			conn, err := a.GetConnection(t.ConnIndex)
			if err != nil || conn.Status != StatusConnected {
				continue
			}
			st := SavedTab{Kind: t.Kind.String(), ConnID: conn.ID.String()}
			switch t.Kind {
			case TabTable:
				st.Table = t.TableName
				if t.Pager != nil {
					st.CursorRow = t.Pager.AbsCursor()
					st.CursorCol = t.Pager.CursorCol
					st.ScrollRow = t.Pager.LoadedOffset + int64(t.Pager.ScrollRow)
					st.ScrollCol = t.Pager.ScrollCol
				} else if p, ok := t.pending(); ok {
					// Restored but never focused; carry the saved position over.
					st.CursorRow, st.CursorCol = p.Row, p.Col
					st.ScrollRow, st.ScrollCol = p.ScrollRow, p.ScrollCol
				}
				st.Sort, st.Filters = namedTabState(t)
			case TabQuery:
				if t.Query != nil {
					st.QueryText = string(t.Query.Text)
					st.QueryCursor = t.Query.Cursor
				}
			}
			sws.Tabs = append(sws.Tabs, st)
		}
		if sws.CurrentTab >= len(sws.Tabs) {
			sws.CurrentTab = len(sws.Tabs) - 1
		}
		if sws.CurrentTab < 0 {
			sws.CurrentTab = 0
		}
		f.Workspaces = append(f.Workspaces, sws)
	}
	if f.CurrentWS >= len(f.Workspaces) {
		f.CurrentWS = 0
	}
	return f
}

// namedTabState resolves a tab's live sort/filter indexes to column names,
// falling back to pending (not yet applied) state from a previous restore.
func namedTabState(t *Tab) ([]NamedSort, []NamedFilter) {
	var schema *driver.TableSchema
	if t.Pager != nil {
		schema = t.Pager.Schema
	}
	if schema == nil {
		if p, ok := t.pending(); ok {
			return p.Sort, p.Filters
		}
		return nil, nil
	}
	var sorts []NamedSort
	for _, s := range t.Sort {
		if s.ColumnIndex >= 0 && s.ColumnIndex < len(schema.Columns) {
			sorts = append(sorts, NamedSort{Column: schema.Columns[s.ColumnIndex].Name, Desc: s.Desc})
		}
	}
	var filters []NamedFilter
	for _, f := range t.Filters {
		nf := NamedFilter{Op: f.Op.String(), Value: f.Value}
		if f.ColumnIndex == filter.RawColumn {
			nf.Column = ""
			nf.Op = "raw"
		} else if int(f.ColumnIndex) < len(schema.Columns) {
			nf.Column = schema.Columns[f.ColumnIndex].Name
		} else {
			continue
		}
		filters = append(filters, nf)
	}
	return sorts, filters
}

// Write stores the document atomically: temp file then rename.
func Write(f *File, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create session temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Read loads a session document. Unknown keys are ignored.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if f.Version > FileVersion {
		return nil, fmt.Errorf("session file version %d is newer than supported %d", f.Version, FileVersion)
	}
	return &f, nil
}

// PasswordFunc supplies the password for a stripped connection string, e.g.
// from the OS keyring or a prompt.
type PasswordFunc func(connstr string) (string, error)

// RestoreOptions tunes session restoration.
type RestoreOptions struct {
	Password PasswordFunc
}

// Restore rebuilds the model from a session document. It is best-effort:
// connections that fail come back as error slots, tabs for missing tables
// carry an error, and nothing aborts the restore.
func Restore(ctx context.Context, a *App, f *File, opts RestoreOptions) {
	connByID := make(map[string]int)
	for _, sc := range f.Connections {
		connstr := sc.ConnStr
		if opts.Password != nil {
			if pw, err := opts.Password(sc.ConnStr); err == nil && pw != "" {
				connstr = injectPassword(sc.ConnStr, pw)
			}
		}
		conn, err := a.Registry.Open(ctx, connstr)
		if err != nil {
			slot := &Connection{
				ConnStr: sc.ConnStr,
				Display: sc.Display,
				Scheme:  sc.Scheme,
				Status:  StatusError,
				Err:     err.Error(),
			}
			if id, perr := parseUUID(sc.ID); perr == nil {
				slot.ID = id
			}
			a.Connections = append(a.Connections, slot)
			connByID[sc.ID] = len(a.Connections) - 1
			continue
		}
		c, idx := a.AddConnection(conn, connstr)
		if id, perr := parseUUID(sc.ID); perr == nil {
			c.ID = id
		}
		if tables, terr := conn.ListTables(ctx); terr == nil {
			c.Tables = tables
		}
		connByID[sc.ID] = idx
	}

	// Replace the implicit empty workspace when the file has real ones.
	if len(f.Workspaces) > 0 && len(a.Workspaces) == 1 && len(a.Workspaces[0].Tabs) == 0 {
		a.Workspaces = nil
	}
	for _, sws := range f.Workspaces {
		ws := &Workspace{Name: sws.Name}
		a.Workspaces = append(a.Workspaces, ws)
		for _, st := range sws.Tabs {
			idx, ok := connByID[st.ConnID]
			if !ok {
				continue
			}
			switch st.Kind {
			case "table":
				tableIndex := -1
				if c, err := a.GetConnection(idx); err == nil {
					for i, name := range c.Tables {
						if name == st.Table {
							tableIndex = i
							break
						}
					}
				}
				t := a.CreateTableTab(ws, idx, tableIndex, st.Table)
				t.NeedsRefresh = true
				t.setPending(&Pending{
					Sort:      st.Sort,
					Filters:   st.Filters,
					Row:       st.CursorRow,
					Col:       st.CursorCol,
					ScrollRow: st.ScrollRow,
					ScrollCol: st.ScrollCol,
				})
				if c, _ := a.GetConnection(idx); c != nil && c.Status == StatusConnected && tableIndex < 0 {
					t.Err = fmt.Sprintf("table %q not found", st.Table)
				}
			case "query":
				t := a.CreateQueryTab(ws, idx)
				t.Query.Text = append(t.Query.Text[:0], []rune(st.QueryText)...)
				t.Query.Cursor = st.QueryCursor
				if t.Query.Cursor > len(t.Query.Text) {
					t.Query.Cursor = len(t.Query.Text)
				}
			default:
				a.CreateConnectionTab(ws, idx)
			}
		}
		if sws.CurrentTab >= 0 && sws.CurrentTab < len(ws.Tabs) {
			ws.CurrentTab = sws.CurrentTab
		}
	}
	if len(a.Workspaces) == 0 {
		a.Workspaces = []*Workspace{{}}
	}
	if f.CurrentWS >= 0 && f.CurrentWS < len(a.Workspaces) {
		a.CurrentWS = f.CurrentWS
	} else {
		a.CurrentWS = 0
	}
}

// ApplyPending resolves a restored tab's by-name sort and filters against the
// now-known schema and hands back the saved cursor and scroll position. Names
// that no longer exist are dropped.
func (t *Tab) ApplyPending(schema *driver.TableSchema) (Pending, bool) {
	p, has := t.pending()
	if !has {
		return Pending{}, false
	}
	t.clearPending()
	if schema != nil {
		for _, s := range p.Sort {
			if len(t.Sort) >= MaxSortColumns {
				break
			}
			if i := schema.ColumnIndex(s.Column); i >= 0 {
				t.Sort = append(t.Sort, SortEntry{ColumnIndex: i, Desc: s.Desc})
			}
		}
		for _, nf := range p.Filters {
			cf := filter.ColumnFilter{Op: filter.ParseOperator(nf.Op), Value: nf.Value}
			if nf.Op == "raw" {
				cf.ColumnIndex = filter.RawColumn
			} else if i := schema.ColumnIndex(nf.Column); i >= 0 {
				cf.ColumnIndex = uint32(i)
			} else {
				continue
			}
			t.Filters = append(t.Filters, cf)
		}
	}
	return *p, true
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

func injectPassword(connstr, password string) string {
	dsn, err := driver.ParseDSN(connstr)
	if err != nil || dsn.Scheme == "sqlite" {
		return connstr
	}
	rest := dsn.Rest
	at := -1
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '@' {
			at = i
			break
		}
	}
	if at < 0 {
		return connstr
	}
	return dsn.Scheme + "://" + rest[:at] + ":" + password + "@" + rest[at+1:]
}
