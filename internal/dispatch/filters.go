package dispatch

import (
	"context"

	"github.com/rebeliceyang/lazydb/internal/filter"
	"github.com/rebeliceyang/lazydb/internal/session"
)

// filterAction handles the per-tab filter editor. Edits are staged on the tab
// and hit the database only on Apply.
func (d *Dispatcher) filterAction(ctx context.Context, a Action) Change {
	t := d.App.CurrentTab()
	if t == nil || t.Kind != session.TabTable {
		return None
	}

	switch a.Kind {
	case ActFiltersToggle:
		d.FiltersOn = !d.FiltersOn
		d.FiltersFocused = d.FiltersOn
		if !d.FiltersOn {
			d.FilterEdit = FilterEditState{}
		}
		d.clampFilterSel(t)
		d.rebuildLayout()
		return Filters | Layout | Focus

	case ActFiltersFocus:
		ch := Filters | Focus
		if !d.FiltersOn {
			d.FiltersOn = true
			d.rebuildLayout()
			ch |= Layout
		}
		d.FiltersFocused = true
		d.clampFilterSel(t)
		return ch

	case ActFiltersUnfocus:
		// The panel stays visible; keys return to the table.
		if !d.FiltersFocused {
			return None
		}
		d.FiltersFocused = false
		d.FilterEdit = FilterEditState{}
		return Filters | Focus

	case ActFiltersMove:
		if len(t.Filters) == 0 {
			return None
		}
		d.FilterSel += a.DeltaRow
		d.clampFilterSel(t)
		return Filters

	case ActFiltersAdd:
		col := a.Index
		if col < 0 && t.Pager != nil {
			col = t.Pager.CursorCol
		}
		if col < 0 {
			col = 0
		}
		t.Filters = append(t.Filters, filter.ColumnFilter{
			ColumnIndex: uint32(col),
			Op:          filter.OpEq,
		})
		d.FilterSel = len(t.Filters) - 1
		d.FilterEdit = FilterEditState{Active: true, Index: d.FilterSel}
		return Filters | Focus

	case ActFiltersRemove:
		if d.FilterSel < 0 || d.FilterSel >= len(t.Filters) {
			return None
		}
		t.Filters = append(t.Filters[:d.FilterSel], t.Filters[d.FilterSel+1:]...)
		d.clampFilterSel(t)
		d.FilterEdit = FilterEditState{}
		return Filters

	case ActFiltersClear:
		if len(t.Filters) == 0 {
			return None
		}
		t.Filters = nil
		d.FilterSel = 0
		d.FilterEdit = FilterEditState{}
		return Filters | d.applyTabFilters(ctx, t)

	case ActFiltersEditStart:
		if d.FilterSel < 0 || d.FilterSel >= len(t.Filters) {
			return None
		}
		d.FilterEdit = FilterEditState{
			Active: true,
			Index:  d.FilterSel,
			Text:   []rune(t.Filters[d.FilterSel].Value),
		}
		return Filters | Focus

	case ActFiltersInput:
		if !d.FilterEdit.Active || len(d.FilterEdit.Text) >= filter.MaxValueLen {
			return None
		}
		d.FilterEdit.Text = append(d.FilterEdit.Text, a.Ch)
		return Filters

	case ActFiltersBackspace:
		if !d.FilterEdit.Active || len(d.FilterEdit.Text) == 0 {
			return None
		}
		d.FilterEdit.Text = d.FilterEdit.Text[:len(d.FilterEdit.Text)-1]
		return Filters

	case ActFiltersSetOp:
		if d.FilterSel < 0 || d.FilterSel >= len(t.Filters) {
			return None
		}
		t.Filters[d.FilterSel].Op = filter.ParseOperator(a.Text)
		return Filters

	case ActFiltersConfirm:
		if !d.FilterEdit.Active {
			return None
		}
		if d.FilterEdit.Index >= 0 && d.FilterEdit.Index < len(t.Filters) {
			t.Filters[d.FilterEdit.Index].Value = string(d.FilterEdit.Text)
		}
		d.FilterEdit = FilterEditState{}
		return Filters | Focus

	case ActFiltersCancel:
		if !d.FilterEdit.Active {
			return None
		}
		d.FilterEdit = FilterEditState{}
		return Filters | Focus

	case ActFiltersApply:
		if d.FilterEdit.Active {
			if d.FilterEdit.Index >= 0 && d.FilterEdit.Index < len(t.Filters) {
				t.Filters[d.FilterEdit.Index].Value = string(d.FilterEdit.Text)
			}
			d.FilterEdit = FilterEditState{}
		}
		return d.applyTabFilters(ctx, t)
	}
	return None
}

func (d *Dispatcher) clampFilterSel(t *session.Tab) {
	if d.FilterSel >= len(t.Filters) {
		d.FilterSel = len(t.Filters) - 1
	}
	if d.FilterSel < 0 {
		d.FilterSel = 0
	}
}
