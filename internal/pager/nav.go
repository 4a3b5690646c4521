package pager

import (
	"context"

	"github.com/rebeliceyang/lazydb/internal/driver"
	"github.com/rebeliceyang/lazydb/internal/task"
)

// MoveCursor moves the cursor by delta rows. Moves inside the resident window
// never touch the database; crossing an edge triggers a blocking load, and
// approaching one starts a background prefetch.
func (p *Pager) MoveCursor(ctx context.Context, delta int64, visible int) error {
	if p.LoadedCount() == 0 {
		return nil
	}
	target := p.AbsCursor() + delta
	if target < 0 {
		target = 0
	}
	if target >= p.Total && !p.Approx {
		target = p.Total - 1
	}
	if err := p.GotoAbs(ctx, target, visible); err != nil {
		return err
	}
	p.maybePrefetch(ctx)
	return nil
}

// MoveColumn moves the cursor horizontally, clamped to the column count.
// visible is how many columns fit in the viewport; scroll follows the cursor
// past either edge.
func (p *Pager) MoveColumn(dc, visible int) {
	if p.Res == nil || len(p.Res.Columns) == 0 {
		return
	}
	p.CursorCol += dc
	if p.CursorCol < 0 {
		p.CursorCol = 0
	}
	if p.CursorCol >= len(p.Res.Columns) {
		p.CursorCol = len(p.Res.Columns) - 1
	}
	if visible < 1 {
		visible = 1
	}
	if p.CursorCol < p.ScrollCol {
		p.ScrollCol = p.CursorCol
	}
	if p.CursorCol >= p.ScrollCol+visible {
		p.ScrollCol = p.CursorCol - visible + 1
	}
}

// GotoAbs places the cursor on an absolute row index, loading a window around
// it when it is not resident.
func (p *Pager) GotoAbs(ctx context.Context, target int64, visible int) error {
	if target < 0 {
		target = 0
	}
	if p.Total > 0 && target >= p.Total && !p.Approx {
		target = p.Total - 1
	}
	if !p.Contains(target) {
		if err := p.loadAround(ctx, target); err != nil {
			return err
		}
		if !p.Contains(target) {
			// Stale approximate count collapsed the table under us; land on
			// the last row that still exists.
			if n := p.LoadedCount(); n > 0 {
				target = p.LoadedOffset + n - 1
			} else {
				p.CursorRow = 0
				return nil
			}
		}
	}
	p.CursorRow = int(target - p.LoadedOffset)
	p.clampScroll(visible)
	return nil
}

// Home moves to the first row, End to the last.
func (p *Pager) Home(ctx context.Context, visible int) error {
	return p.GotoAbs(ctx, 0, visible)
}

func (p *Pager) End(ctx context.Context, visible int) error {
	if p.Approx {
		// End needs the real row count.
		n, err := exactCount(ctx, p.conn, p.table, p.where)
		if err != nil {
			return err
		}
		p.Total = n
		p.Approx = false
	}
	if p.Total <= 0 {
		return nil
	}
	target := p.Total - 1
	if !p.Contains(target) {
		// Jumping to the tail loads the window at the last page boundary
		// instead of centering, so one fetch covers exactly the rows that
		// exist past it.
		p.CancelBackground()
		if err := p.loadWindow(ctx, (target/p.cfg.PageSize)*p.cfg.PageSize); err != nil {
			return err
		}
		if !p.Contains(target) {
			// The table shrank between the count and the fetch.
			if n := p.LoadedCount(); n > 0 {
				target = p.LoadedOffset + n - 1
			} else {
				p.CursorRow = 0
				return nil
			}
		}
	}
	p.CursorRow = int(target - p.LoadedOffset)
	p.clampScroll(visible)
	return nil
}

// loadAround fetches a window covering target. A compatible in-flight
// background op is adopted and waited on instead of being cancelled, so a
// prefetch racing a page-down is not thrown away.
func (p *Pager) loadAround(ctx context.Context, target int64) error {
	if p.op != nil {
		if target >= p.opOffset && target < p.opOffset+p.opLimit {
			if err := p.adoptBackground(); err != nil {
				return err
			}
			if p.Contains(target) {
				return nil
			}
		} else {
			p.CancelBackground()
		}
	}

	// Contiguous edge loads merge; anything else replaces the window.
	switch {
	case p.Res != nil && target >= p.LoadedOffset+p.LoadedCount() &&
		target < p.LoadedOffset+p.LoadedCount()+p.cfg.LoadThreshold+p.fetchLimit():
		return p.loadEdge(ctx, true)
	case p.Res != nil && target < p.LoadedOffset &&
		target >= p.LoadedOffset-p.fetchLimit():
		return p.loadEdge(ctx, false)
	default:
		off := p.centerOffset(target)
		return p.loadWindow(ctx, off)
	}
}

// LoadMore blocks until the window is extended forward by one fetch.
func (p *Pager) LoadMore(ctx context.Context) error { return p.loadEdge(ctx, true) }

// LoadPrev blocks until the window is extended backward by one fetch.
func (p *Pager) LoadPrev(ctx context.Context) error { return p.loadEdge(ctx, false) }

// loadEdge extends the resident window by one fetch in the given direction,
// blocking until the rows arrive.
func (p *Pager) loadEdge(ctx context.Context, forward bool) error {
	var offset, limit int64
	if forward {
		offset = p.LoadedOffset + p.LoadedCount()
		limit = p.fetchLimit()
	} else {
		offset = p.LoadedOffset - p.fetchLimit()
		limit = p.fetchLimit()
		if offset < 0 {
			limit += offset
			offset = 0
		}
		if limit <= 0 {
			return nil
		}
	}

	op := p.startFetch(ctx, offset, limit, forward)
	if !p.waitForeground(op) {
		return ErrCancelled
	}
	return p.completeFetch(op)
}

// startFetch launches an async page fetch and records it as the in-flight op.
func (p *Pager) startFetch(ctx context.Context, offset, limit int64, forward bool) *task.Op {
	req := p.pageRequest(offset, limit)
	op := task.New(task.KindPage, func(ctx context.Context) (*task.Outcome, error) {
		rs, err := p.conn.QueryPage(ctx, req)
		if err != nil {
			return nil, err
		}
		return &task.Outcome{Result: rs}, nil
	})
	p.op = op
	p.opOffset = offset
	p.opLimit = limit
	p.opForward = forward
	op.Start(ctx)
	return op
}

// waitForeground blocks on an op using the configured wait loop.
func (p *Pager) waitForeground(op *task.Op) bool {
	if p.Wait != nil {
		return p.Wait(op)
	}
	op.Wait(-1)
	return true
}

// adoptBackground promotes the in-flight background op into a foreground wait.
func (p *Pager) adoptBackground() error {
	op := p.op
	if op == nil {
		return nil
	}
	if !p.waitForeground(op) {
		return ErrCancelled
	}
	return p.completeFetch(op)
}

// completeFetch merges a finished op's rows into the window.
func (p *Pager) completeFetch(op *task.Op) error {
	if p.op == op {
		p.op = nil
	}
	out, err := op.Take()
	if err != nil {
		return err
	}
	if out == nil || out.Result == nil {
		return nil
	}
	return p.merge(out.Result, p.opOffset, p.opForward)
}

// merge splices fetched rows onto the resident window and trims.
func (p *Pager) merge(rs *driver.ResultSet, offset int64, forward bool) error {
	if p.Res == nil {
		p.Res = rs
		p.LoadedOffset = offset
		p.computeWidths()
		return nil
	}
	n := int64(len(rs.Rows))
	if n == 0 {
		if p.Approx && offset > 0 {
			// Approximate count overshot the real table size.
			return p.repairCount()
		}
		return nil
	}
	if p.LoadedCount()+n > p.cfg.MaxResidentRows {
		return ErrResidentCap
	}
	if forward {
		p.Res.Rows = append(p.Res.Rows, rs.Rows...)
		rs.Rows = nil
	} else {
		merged := make([]driver.Row, 0, n+p.LoadedCount())
		merged = append(merged, rs.Rows...)
		merged = append(merged, p.Res.Rows...)
		rs.Rows = nil
		p.Res.Rows = merged
		p.LoadedOffset -= n
		p.CursorRow += int(n)
		p.ScrollRow += int(n)
	}
	p.trim()
	p.computeWidths()
	return nil
}

// repairCount replaces a stale approximate total with the exact count.
func (p *Pager) repairCount() error {
	n, err := exactCount(context.Background(), p.conn, p.table, p.where)
	if err != nil {
		return err
	}
	p.Total = n
	p.Approx = false
	if p.AbsCursor() >= n && n > 0 {
		p.CursorRow = int(n - 1 - p.LoadedOffset)
		if p.CursorRow < 0 {
			p.CursorRow = 0
		}
	}
	return nil
}

// maybePrefetch starts a background fetch when the cursor nears an edge and
// nothing is already in flight.
func (p *Pager) maybePrefetch(ctx context.Context) {
	if p.op != nil || p.Res == nil {
		return
	}
	abs := p.AbsCursor()
	end := p.LoadedOffset + p.LoadedCount()

	moreAhead := end < p.Total || p.Approx
	if moreAhead && end-abs <= p.cfg.PrefetchThreshold {
		if p.LoadedCount()+p.fetchLimit() <= p.cfg.MaxResidentRows {
			p.startFetch(ctx, end, p.fetchLimit(), true)
		}
		return
	}
	if p.LoadedOffset > 0 && abs-p.LoadedOffset <= p.cfg.PrefetchThreshold {
		offset := p.LoadedOffset - p.fetchLimit()
		limit := p.fetchLimit()
		if offset < 0 {
			limit += offset
			offset = 0
		}
		if limit > 0 && p.LoadedCount()+limit <= p.cfg.MaxResidentRows {
			p.startFetch(ctx, offset, limit, false)
		}
	}
}

// Tick polls the background op once; a finished fetch is merged. It reports
// whether the window changed.
func (p *Pager) Tick() (bool, error) {
	op := p.op
	if op == nil {
		return false, nil
	}
	switch op.Poll() {
	case task.Running, task.Idle:
		return false, nil
	case task.Cancelled:
		p.op = nil
		return false, nil
	case task.Failed:
		p.op = nil
		_, err := op.Take()
		return false, err
	default:
		before := p.LoadedCount()
		if err := p.completeFetch(op); err != nil {
			return false, err
		}
		return p.LoadedCount() != before, nil
	}
}

// HasBackground reports whether a background fetch is in flight.
func (p *Pager) HasBackground() bool { return p.op != nil }

// CancelBackground joins and discards any in-flight fetch. It must run before
// the tab or connection owning this pager is torn down.
func (p *Pager) CancelBackground() {
	if p.op != nil {
		task.Join(p.op)
		p.op = nil
	}
}

// RestoreScroll re-applies a saved viewport origin, clamped so the cursor
// stays visible. absRow is the absolute index of the row at the top of the
// viewport.
func (p *Pager) RestoreScroll(absRow int64, col, visible int) {
	if p.Contains(absRow) {
		p.ScrollRow = int(absRow - p.LoadedOffset)
	}
	if col >= 0 && col <= p.CursorCol {
		p.ScrollCol = col
	}
	p.clampScroll(visible)
}

// clampScroll keeps the cursor inside the visible rectangle.
func (p *Pager) clampScroll(visible int) {
	if visible <= 0 {
		visible = 1
	}
	if p.CursorRow < p.ScrollRow {
		p.ScrollRow = p.CursorRow
	}
	if p.CursorRow >= p.ScrollRow+visible {
		p.ScrollRow = p.CursorRow - visible + 1
	}
	if p.ScrollRow < 0 {
		p.ScrollRow = 0
	}
}
