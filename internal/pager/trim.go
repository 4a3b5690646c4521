package pager

// trim drops resident pages far from the cursor so memory stays bounded. The
// cursor's page is never trimmed.
func (p *Pager) trim() {
	if p.Res == nil || p.LoadedCount() == 0 {
		return
	}
	ps := p.cfg.PageSize
	abs := p.AbsCursor()
	cursorPage := abs / ps

	keepStart := (cursorPage - p.cfg.TrimDistancePages) * ps
	if keepStart < p.LoadedOffset {
		keepStart = p.LoadedOffset
	}
	keepEnd := (cursorPage + p.cfg.TrimDistancePages + 1) * ps
	if end := p.LoadedOffset + p.LoadedCount(); keepEnd > end {
		keepEnd = end
	}

	// Distance trimming can still leave too many pages when the window was
	// grown by large merges; cut from the edge farther from the cursor.
	maxRows := p.cfg.MaxLoadedPages * ps
	if keepEnd-keepStart > maxRows {
		if abs-keepStart > keepEnd-abs {
			keepStart = keepEnd - maxRows
		} else {
			keepEnd = keepStart + maxRows
		}
		if abs < keepStart {
			keepStart = abs
		}
		if abs >= keepEnd {
			keepEnd = abs + 1
		}
	}
	p.applyWindow(keepStart, keepEnd)
}

// applyWindow shrinks the resident rows to the absolute range [start, end),
// shifting cursor and scroll so the user's absolute position is unchanged.
func (p *Pager) applyWindow(start, end int64) {
	lo := start - p.LoadedOffset
	hi := end - p.LoadedOffset
	if lo <= 0 && hi >= p.LoadedCount() {
		return
	}
	if lo < 0 {
		lo = 0
	}
	if hi > p.LoadedCount() {
		hi = p.LoadedCount()
	}
	rows := p.Res.Rows[lo:hi]
	p.Res.Rows = append(p.Res.Rows[:0:0], rows...)
	p.CursorRow -= int(lo)
	p.ScrollRow -= int(lo)
	if p.CursorRow < 0 {
		p.CursorRow = 0
	}
	if p.ScrollRow < 0 {
		p.ScrollRow = 0
	}
	p.LoadedOffset += lo
}

// computeWidths sizes each column from its name and the widest cell among the
// first hundred resident rows, clamped to the configured bounds.
func (p *Pager) computeWidths() {
	if p.Res == nil {
		p.ColWidths = nil
		return
	}
	sample := len(p.Res.Rows)
	if sample > 100 {
		sample = 100
	}
	widths := make([]int, len(p.Res.Columns))
	for i, col := range p.Res.Columns {
		w := len(col.Name)
		for r := 0; r < sample; r++ {
			if l := len(p.Res.Rows[r][i].String()); l > w {
				w = l
			}
		}
		if w < p.cfg.MinColWidth {
			w = p.cfg.MinColWidth
		}
		if w > p.cfg.MaxColWidth {
			w = p.cfg.MaxColWidth
		}
		widths[i] = w
	}
	p.ColWidths = widths
}
