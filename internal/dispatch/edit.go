package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rebeliceyang/lazydb/internal/driver"
	"github.com/rebeliceyang/lazydb/internal/session"
)

// editCell handles the cell edit buffer and PK-addressed writes.
func (d *Dispatcher) editCell(ctx context.Context, a Action) Change {
	t := d.App.CurrentTab()
	if t == nil || t.Kind != session.TabTable || t.Pager == nil {
		return None
	}
	p := t.Pager

	switch a.Kind {
	case ActEditStart, ActEditStartModal:
		row := p.CurrentRow()
		if row == nil || p.CursorCol >= len(row) {
			return None
		}
		if p.Schema == nil || len(p.Schema.PrimaryKey()) == 0 {
			d.App.Status = "cannot edit: table has no primary key"
			return Status
		}
		initial := ""
		if !row[p.CursorCol].IsNull() {
			initial = row[p.CursorCol].String()
		}
		d.Edit = EditState{Active: true, Modal: a.Kind == ActEditStartModal, Text: []rune(initial), Cursor: len([]rune(initial))}
		if d.Edit.Modal && d.UI.StartModalEdit != nil {
			d.UI.StartModalEdit(initial)
		}
		return Edit | Focus

	case ActEditInput:
		if !d.Edit.Active {
			return None
		}
		d.Edit.Text = insertRune(d.Edit.Text, d.Edit.Cursor, a.Ch)
		d.Edit.Cursor++
		return Edit

	case ActEditBackspace:
		if !d.Edit.Active || d.Edit.Cursor == 0 {
			return None
		}
		d.Edit.Cursor--
		d.Edit.Text = deleteRune(d.Edit.Text, d.Edit.Cursor)
		return Edit

	case ActEditDelete:
		if !d.Edit.Active || d.Edit.Cursor >= len(d.Edit.Text) {
			return None
		}
		d.Edit.Text = deleteRune(d.Edit.Text, d.Edit.Cursor)
		return Edit

	case ActEditCursorLeft:
		if d.Edit.Active && d.Edit.Cursor > 0 {
			d.Edit.Cursor--
		}
		return Edit
	case ActEditCursorRight:
		if d.Edit.Active && d.Edit.Cursor < len(d.Edit.Text) {
			d.Edit.Cursor++
		}
		return Edit
	case ActEditCursorHome:
		d.Edit.Cursor = 0
		return Edit
	case ActEditCursorEnd:
		d.Edit.Cursor = len(d.Edit.Text)
		return Edit

	case ActEditCancel:
		d.Edit = EditState{}
		return Edit | Focus

	case ActEditConfirm:
		if !d.Edit.Active {
			return None
		}
		text := string(d.Edit.Text)
		d.Edit = EditState{}
		return d.commitCell(ctx, t, typedValue(p.CursorColumn(), text)) | Edit | Focus

	case ActCellSetNull:
		return d.commitCell(ctx, t, driver.Null())
	case ActCellSetEmpty:
		return d.commitCell(ctx, t, driver.Text(""))
	}
	return None
}

// commitCell writes one cell through the driver and patches the resident row.
func (d *Dispatcher) commitCell(ctx context.Context, t *session.Tab, v driver.Value) Change {
	p := t.Pager
	row := p.CurrentRow()
	if row == nil || p.CursorCol >= len(row) || p.Res == nil {
		return None
	}
	pk, err := p.PrimaryKeyOf(row)
	if err != nil {
		return d.fail(t, fmt.Errorf("update failed: %w", err))
	}
	column := p.Res.Columns[p.CursorCol].Name
	if err := p.Conn().UpdateCell(ctx, p.Table(), column, v, pk); err != nil {
		return d.fail(t, fmt.Errorf("update failed: %w", err))
	}
	row[p.CursorCol] = v
	d.App.MarkTableDirty(t.ConnIndex, t.TableName, t)
	d.App.Status = "Cell updated"
	return Data | Status
}

// rowAction handles delete and selection toggling.
func (d *Dispatcher) rowAction(ctx context.Context, a Action) Change {
	t := d.App.CurrentTab()
	if t == nil || t.Kind != session.TabTable || t.Pager == nil {
		return None
	}
	p := t.Pager

	switch a.Kind {
	case ActRowDelete:
		row := p.CurrentRow()
		if row == nil {
			return None
		}
		pk, err := p.PrimaryKeyOf(row)
		if err != nil {
			return d.fail(t, fmt.Errorf("delete failed: %w", err))
		}
		if err := p.Conn().DeleteRow(ctx, p.Table(), pk); err != nil {
			return d.fail(t, fmt.Errorf("delete failed: %w", err))
		}
		d.App.MarkTableDirty(t.ConnIndex, t.TableName, t)
		if err := p.Reload(ctx); err != nil {
			return d.fail(t, err)
		}
		d.App.Status = "Row deleted"
		return Data | Cursor | Scroll | Status

	case ActRowToggleSelect:
		abs := p.AbsCursor()
		if _, ok := t.Selected[abs]; ok {
			delete(t.Selected, abs)
		} else {
			t.Selected[abs] = struct{}{}
		}
		return Data

	case ActRowClearSelections:
		if len(t.Selected) == 0 {
			return None
		}
		t.Selected = make(map[int64]struct{})
		return Data
	}
	return None
}

// typedValue parses edited text into the column's logical type, falling back
// to text when parsing fails.
func typedValue(col *driver.ColumnDef, text string) driver.Value {
	if col == nil {
		return driver.Text(text)
	}
	switch col.Type {
	case driver.KindInt:
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return driver.Int(n)
		}
	case driver.KindFloat:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return driver.Float(f)
		}
	case driver.KindBool:
		if b, err := strconv.ParseBool(text); err == nil {
			return driver.Bool(b)
		}
	}
	return driver.Text(text)
}

func insertRune(s []rune, at int, r rune) []rune {
	if at < 0 {
		at = 0
	}
	if at > len(s) {
		at = len(s)
	}
	s = append(s, 0)
	copy(s[at+1:], s[at:])
	s[at] = r
	return s
}

func deleteRune(s []rune, at int) []rune {
	if at < 0 || at >= len(s) {
		return s
	}
	return append(s[:at], s[at+1:]...)
}
