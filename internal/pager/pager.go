// Package pager maintains a sliding window of rows over an arbitrarily large
// table, with prefetch, trimming, and cursor-visibility guarantees.
package pager

import (
	"context"
	"errors"
	"fmt"

	"github.com/rebeliceyang/lazydb/internal/driver"
	"github.com/rebeliceyang/lazydb/internal/task"
)

// Config holds the pagination tunables.
type Config struct {
	PageSize          int64
	PrefetchPages     int64
	LoadThreshold     int64
	PrefetchThreshold int64
	MaxLoadedPages    int64
	TrimDistancePages int64
	MaxResidentRows   int64
	MinColWidth       int
	MaxColWidth       int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		PageSize:          1000,
		PrefetchPages:     2,
		LoadThreshold:     50,
		PrefetchThreshold: 1000,
		MaxLoadedPages:    5,
		TrimDistancePages: 2,
		MaxResidentRows:   1000000,
		MinColWidth:       4,
		MaxColWidth:       40,
	}
}

// ErrCancelled reports that the user cancelled a blocking load.
var ErrCancelled = errors.New("load cancelled")

// ErrResidentCap rejects a load that would exceed the resident-row cap.
var ErrResidentCap = errors.New("resident row cap exceeded")

// WaitFunc blocks on a foreground op, typically behind a progress dialog. It
// returns false when the user cancelled the wait.
type WaitFunc func(op *task.Op) bool

// Pager is the pagination state of one table tab.
type Pager struct {
	conn  driver.Conn
	table string
	cfg   Config

	where   string
	orderBy string

	// Wait, when set, runs the foreground wait loop for blocking loads. The
	// default blocks without a dialog.
	Wait WaitFunc

	Schema *driver.TableSchema
	Res    *driver.ResultSet

	LoadedOffset    int64
	Total           int64
	Approx          bool
	UnfilteredTotal int64

	// Cursor is in resident coordinates; scroll keeps it visible.
	CursorRow int
	CursorCol int
	ScrollRow int
	ScrollCol int

	ColWidths []int

	op        *task.Op
	opOffset  int64
	opLimit   int64
	opForward bool
}

// New creates a pager for one table on one connection.
func New(conn driver.Conn, table string, cfg Config) *Pager {
	return &Pager{conn: conn, table: table, cfg: cfg}
}

func (p *Pager) Table() string        { return p.table }
func (p *Pager) Conn() driver.Conn    { return p.conn }
func (p *Pager) Where() string        { return p.where }
func (p *Pager) OrderBy() string      { return p.orderBy }
func (p *Pager) Config() Config       { return p.cfg }

// LoadedCount is the resident row count.
func (p *Pager) LoadedCount() int64 {
	if p.Res == nil {
		return 0
	}
	return int64(len(p.Res.Rows))
}

// AbsCursor is the cursor's absolute row index.
func (p *Pager) AbsCursor() int64 { return p.LoadedOffset + int64(p.CursorRow) }

// Contains reports whether the absolute row index is resident.
func (p *Pager) Contains(abs int64) bool {
	return abs >= p.LoadedOffset && abs < p.LoadedOffset+p.LoadedCount()
}

// CurrentRow returns the row under the cursor, or nil.
func (p *Pager) CurrentRow() driver.Row {
	if p.Res == nil || p.CursorRow < 0 || p.CursorRow >= len(p.Res.Rows) {
		return nil
	}
	return p.Res.Rows[p.CursorRow]
}

// CursorColumn returns the definition of the column under the cursor, or nil.
func (p *Pager) CursorColumn() *driver.ColumnDef {
	if p.Res == nil || p.CursorCol < 0 || p.CursorCol >= len(p.Res.Columns) {
		return nil
	}
	return &p.Res.Columns[p.CursorCol]
}

// PrimaryKeyOf collects the primary-key values of a resident row, for
// PK-addressed updates and deletes. It fails when the table has no primary
// key or the schema is unknown.
func (p *Pager) PrimaryKeyOf(row driver.Row) ([]driver.ColumnValue, error) {
	if p.Schema == nil {
		return nil, fmt.Errorf("table schema unavailable")
	}
	pkCols := p.Schema.PrimaryKey()
	if len(pkCols) == 0 {
		return nil, fmt.Errorf("table has no primary key")
	}
	if p.Res == nil {
		return nil, fmt.Errorf("no data loaded")
	}
	var pk []driver.ColumnValue
	for _, col := range pkCols {
		idx := -1
		for i, rc := range p.Res.Columns {
			if rc.Name == col.Name {
				idx = i
				break
			}
		}
		if idx < 0 || idx >= len(row) {
			return nil, fmt.Errorf("primary key column %q not in result", col.Name)
		}
		pk = append(pk, driver.ColumnValue{Column: col.Name, Value: row[idx]})
	}
	return pk, nil
}

// Init fetches the schema (best effort), the row count, and the first page.
func (p *Pager) Init(ctx context.Context) error {
	if schema, err := p.conn.TableSchema(ctx, p.table); err == nil {
		p.Schema = schema
	}
	if err := p.refreshCount(ctx); err != nil {
		return fmt.Errorf("row count failed: %w", err)
	}
	if p.where == "" {
		p.UnfilteredTotal = p.Total
	}
	return p.loadWindow(ctx, 0)
}

// SetFilterSort replaces the compiled WHERE fragment and ORDER BY body,
// invalidates the resident window, and reloads at offset zero with an exact
// count.
func (p *Pager) SetFilterSort(ctx context.Context, where, orderBy string) error {
	p.CancelBackground()
	p.where = where
	p.orderBy = orderBy
	p.Res = nil
	p.LoadedOffset = 0
	p.CursorRow, p.CursorCol = 0, 0
	p.ScrollRow, p.ScrollCol = 0, 0

	n, _, err := p.conn.CountRows(ctx, p.table, p.where, false)
	if err != nil {
		return fmt.Errorf("row count failed: %w", err)
	}
	p.Total = n
	p.Approx = false
	return p.loadWindow(ctx, 0)
}

// Reload re-runs the count and reloads around the cursor's absolute position.
func (p *Pager) Reload(ctx context.Context) error {
	target := p.AbsCursor()
	p.CancelBackground()
	if err := p.refreshCount(ctx); err != nil {
		return err
	}
	if p.where == "" {
		p.UnfilteredTotal = p.Total
	}
	if target >= p.Total {
		target = p.Total - 1
	}
	if target < 0 {
		target = 0
	}
	p.Res = nil
	p.CursorRow = 0
	offset := p.centerOffset(target)
	if err := p.loadWindow(ctx, offset); err != nil {
		return err
	}
	if p.Contains(target) {
		p.CursorRow = int(target - p.LoadedOffset)
	}
	return nil
}

// refreshCount queries the row count, approximate only when unfiltered.
func (p *Pager) refreshCount(ctx context.Context) error {
	n, approx, err := p.conn.CountRows(ctx, p.table, p.where, p.where == "")
	if err != nil {
		return err
	}
	p.Total = n
	p.Approx = approx
	return nil
}

// fetchLimit is the row budget of one blocking fetch.
func (p *Pager) fetchLimit() int64 { return p.cfg.PageSize * p.cfg.PrefetchPages }

// centerOffset picks a page-aligned offset that puts target mid-window.
func (p *Pager) centerOffset(target int64) int64 {
	off := target - p.fetchLimit()/2
	if off < 0 {
		return 0
	}
	return (off / p.cfg.PageSize) * p.cfg.PageSize
}

// loadWindow replaces the resident window with a fresh fetch at offset.
func (p *Pager) loadWindow(ctx context.Context, offset int64) error {
	rs, actualOffset, err := p.fetchPage(ctx, offset, p.fetchLimit())
	if err != nil {
		return err
	}
	p.Res = rs
	p.LoadedOffset = actualOffset
	if p.CursorRow >= len(rs.Rows) {
		p.CursorRow = 0
	}
	p.computeWidths()
	return nil
}

// fetchPage runs one paginated query. When an approximate count proves stale
// (zero rows at a non-zero offset), it refreshes the exact count, clamps the
// offset, and retries once.
func (p *Pager) fetchPage(ctx context.Context, offset, limit int64) (*driver.ResultSet, int64, error) {
	rs, err := p.conn.QueryPage(ctx, p.pageRequest(offset, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("page load failed: %w", err)
	}
	if len(rs.Rows) == 0 && offset > 0 && p.Approx {
		n, err := exactCount(ctx, p.conn, p.table, p.where)
		if err != nil {
			return nil, 0, fmt.Errorf("count refresh failed: %w", err)
		}
		p.Total = n
		p.Approx = false
		if offset >= n {
			offset = n - limit
			if offset < 0 {
				offset = 0
			}
			offset = (offset / p.cfg.PageSize) * p.cfg.PageSize
		}
		rs, err = p.conn.QueryPage(ctx, p.pageRequest(offset, limit))
		if err != nil {
			return nil, 0, fmt.Errorf("page load failed: %w", err)
		}
	}
	return rs, offset, nil
}

func (p *Pager) pageRequest(offset, limit int64) driver.PageRequest {
	return driver.PageRequest{
		Table:   p.table,
		Offset:  offset,
		Limit:   limit,
		OrderBy: p.orderBy,
		Where:   p.where,
	}
}

func exactCount(ctx context.Context, conn driver.Conn, table, where string) (int64, error) {
	n, _, err := conn.CountRows(ctx, table, where, false)
	return n, err
}
