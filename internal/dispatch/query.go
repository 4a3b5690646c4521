package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rebeliceyang/lazydb/internal/driver"
	"github.com/rebeliceyang/lazydb/internal/history"
	"github.com/rebeliceyang/lazydb/internal/session"
	"github.com/rebeliceyang/lazydb/internal/task"
)

// queryAction handles the SQL buffer of a query tab and its execution.
func (d *Dispatcher) queryAction(ctx context.Context, a Action) Change {
	t := d.App.CurrentTab()
	if t == nil || t.Kind != session.TabQuery || t.Query == nil {
		return None
	}
	q := t.Query

	switch a.Kind {
	case ActQueryInput:
		q.Text = insertRune(q.Text, q.Cursor, a.Ch)
		q.Cursor++
		return Edit

	case ActQueryBackspace:
		if q.Cursor == 0 {
			return None
		}
		q.Cursor--
		q.Text = deleteRune(q.Text, q.Cursor)
		return Edit

	case ActQueryDelete:
		if q.Cursor >= len(q.Text) {
			return None
		}
		q.Text = deleteRune(q.Text, q.Cursor)
		return Edit

	case ActQueryCursorLeft:
		if q.Cursor > 0 {
			q.Cursor--
		}
		return Edit
	case ActQueryCursorRight:
		if q.Cursor < len(q.Text) {
			q.Cursor++
		}
		return Edit
	case ActQueryCursorHome:
		q.Cursor = 0
		return Edit
	case ActQueryCursorEnd:
		q.Cursor = len(q.Text)
		return Edit

	case ActQueryExecute:
		return d.executeQuery(ctx, t, false)
	case ActQueryExecuteAll:
		return d.executeAll(ctx, t)
	case ActQueryExecuteTxn:
		return d.executeQuery(ctx, t, true)
	case ActQueryLoadMore:
		return d.queryLoadMore(ctx, t)
	}
	return None
}

// executeQuery runs the buffer's statement on the tab's connection. With txn
// set the statement runs inside an explicit transaction that commits on
// success and rolls back on failure.
func (d *Dispatcher) executeQuery(ctx context.Context, t *session.Tab, txn bool) Change {
	q := t.Query
	sqlText := strings.TrimSpace(string(q.Text))
	if sqlText == "" {
		return None
	}
	conn, err := d.App.GetConnection(t.ConnIndex)
	if err != nil {
		return d.fail(t, err)
	}
	if conn.Status != session.StatusConnected || conn.Conn == nil {
		return d.fail(t, fmt.Errorf("connection %s is not connected", conn.Display))
	}
	t.JoinOps()

	// Bound bare SELECTs so a huge result set never loads whole.
	limit := int64(d.App.PageSize)
	runSQL := sqlText
	paged := pageableSelect(sqlText)
	if paged {
		runSQL = fmt.Sprintf("%s LIMIT %d OFFSET 0", sqlText, limit)
	}

	db := conn.Conn
	op := task.New(task.KindQuery, func(ctx context.Context) (*task.Outcome, error) {
		if txn {
			if err := db.Begin(ctx); err != nil {
				return nil, fmt.Errorf("begin failed: %w", err)
			}
			rs, err := db.Query(ctx, runSQL)
			if err != nil {
				_ = db.Rollback(ctx)
				return nil, err
			}
			if err := db.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit failed: %w", err)
			}
			return &task.Outcome{Result: rs}, nil
		}
		rs, err := db.Query(ctx, runSQL)
		if err != nil {
			return nil, err
		}
		return &task.Outcome{Result: rs}, nil
	})
	t.Op = op
	op.Start(ctx)

	started := time.Now()
	if d.UI.WaitOp != nil {
		if !d.UI.WaitOp(op) {
			task.Join(op)
			t.Op = nil
			d.App.Status = "Query cancelled"
			return Status
		}
	} else {
		op.Wait(-1)
	}
	out, err := op.Take()
	t.Op = nil
	elapsed := time.Since(started)

	if err != nil {
		q.Err = err.Error()
		q.Results = nil
		q.Paginated = false
		d.recordHistory(conn.Display, sqlText, elapsed, 0, err)
		d.App.Status = "Query failed: " + err.Error()
		return Data | Status
	}
	if out == nil || out.Result == nil {
		return None
	}
	rs := out.Result

	q.Results = rs
	q.Affected = rs.RowsAffected
	q.Err = ""
	q.BaseSQL = ""
	q.Paginated = false
	q.LoadedOffset = 0
	q.Total = int64(len(rs.Rows))
	if paged && int64(len(rs.Rows)) == limit {
		q.BaseSQL = sqlText
		q.Paginated = true
		q.Total = -1 // unknown until the last page arrives
	}

	d.recordHistory(conn.Display, sqlText, elapsed, rs.RowsAffected, nil)
	if len(rs.Columns) == 0 {
		d.App.Status = fmt.Sprintf("%d row(s) affected", rs.RowsAffected)
	} else {
		d.App.Status = fmt.Sprintf("%d row(s) in %s", len(rs.Rows), elapsed.Round(time.Millisecond))
	}
	return Data | Status
}

// executeAll runs every semicolon-separated statement in the buffer in order,
// stopping at the first failure. The last result set with columns is shown;
// affected counts are summed across statements.
func (d *Dispatcher) executeAll(ctx context.Context, t *session.Tab) Change {
	q := t.Query
	stmts := splitStatements(string(q.Text))
	if len(stmts) == 0 {
		return None
	}
	if len(stmts) == 1 {
		return d.executeQuery(ctx, t, false)
	}
	conn, err := d.App.GetConnection(t.ConnIndex)
	if err != nil {
		return d.fail(t, err)
	}
	if conn.Status != session.StatusConnected || conn.Conn == nil {
		return d.fail(t, fmt.Errorf("connection %s is not connected", conn.Display))
	}
	t.JoinOps()

	db := conn.Conn
	op := task.New(task.KindQuery, func(ctx context.Context) (*task.Outcome, error) {
		var last *driver.ResultSet
		var affected int64
		for i, s := range stmts {
			rs, err := db.Query(ctx, s)
			if err != nil {
				return nil, fmt.Errorf("statement %d failed: %w", i+1, err)
			}
			affected += rs.RowsAffected
			if len(rs.Columns) > 0 {
				last = rs
			}
		}
		if last == nil {
			last = &driver.ResultSet{}
		}
		last.RowsAffected = affected
		return &task.Outcome{Result: last}, nil
	})
	t.Op = op
	op.Start(ctx)

	started := time.Now()
	if d.UI.WaitOp != nil {
		if !d.UI.WaitOp(op) {
			task.Join(op)
			t.Op = nil
			d.App.Status = "Query cancelled"
			return Status
		}
	} else {
		op.Wait(-1)
	}
	out, err := op.Take()
	t.Op = nil
	elapsed := time.Since(started)

	joined := strings.Join(stmts, "; ")
	if err != nil {
		q.Err = err.Error()
		q.Results = nil
		q.Paginated = false
		d.recordHistory(conn.Display, joined, elapsed, 0, err)
		d.App.Status = "Query failed: " + err.Error()
		return Data | Status
	}
	if out == nil || out.Result == nil {
		return None
	}
	rs := out.Result

	q.Results = rs
	q.Affected = rs.RowsAffected
	q.Err = ""
	q.BaseSQL = ""
	q.Paginated = false
	q.LoadedOffset = 0
	q.Total = int64(len(rs.Rows))

	d.recordHistory(conn.Display, joined, elapsed, rs.RowsAffected, nil)
	d.App.Status = fmt.Sprintf("%d statement(s), %d row(s) affected in %s",
		len(stmts), rs.RowsAffected, elapsed.Round(time.Millisecond))
	return Data | Status
}

// queryLoadMore fetches the next page of a paginated SELECT and appends it.
func (d *Dispatcher) queryLoadMore(ctx context.Context, t *session.Tab) Change {
	q := t.Query
	if !q.Paginated || q.Results == nil {
		return None
	}
	conn, err := d.App.GetConnection(t.ConnIndex)
	if err != nil {
		return d.fail(t, err)
	}
	if conn.Status != session.StatusConnected || conn.Conn == nil {
		return d.fail(t, fmt.Errorf("connection %s is not connected", conn.Display))
	}
	t.JoinOps()

	limit := int64(d.App.PageSize)
	offset := q.LoadedOffset + int64(len(q.Results.Rows))
	pageSQL := fmt.Sprintf("%s LIMIT %d OFFSET %d", q.BaseSQL, limit, offset)

	db := conn.Conn
	op := task.New(task.KindQuery, func(ctx context.Context) (*task.Outcome, error) {
		rs, err := db.Query(ctx, pageSQL)
		if err != nil {
			return nil, err
		}
		return &task.Outcome{Result: rs}, nil
	})
	t.Op = op
	op.Start(ctx)
	if d.UI.WaitOp != nil {
		if !d.UI.WaitOp(op) {
			task.Join(op)
			t.Op = nil
			d.App.Status = "Load cancelled"
			return Status
		}
	} else {
		op.Wait(-1)
	}
	out, err := op.Take()
	t.Op = nil
	if err != nil {
		q.Err = err.Error()
		return d.fail(t, fmt.Errorf("page load failed: %w", err))
	}
	if out == nil || out.Result == nil {
		return None
	}
	rs := out.Result
	q.Results.Rows = append(q.Results.Rows, rs.Rows...)
	if int64(len(rs.Rows)) < limit {
		q.Paginated = false
		q.Total = offset + int64(len(rs.Rows))
	}
	d.App.Status = fmt.Sprintf("%d row(s) loaded", len(q.Results.Rows))
	return Data | Status
}

// recordHistory writes one execution to the history store, when enabled.
func (d *Dispatcher) recordHistory(connName, sqlText string, elapsed time.Duration, affected int64, execErr error) {
	if d.History == nil {
		return
	}
	e := history.Entry{
		Connection:   connName,
		SQL:          sqlText,
		Duration:     elapsed,
		RowsAffected: affected,
		Success:      execErr == nil,
	}
	if execErr != nil {
		e.ErrorMessage = execErr.Error()
	}
	if err := d.History.Add(e); err != nil {
		d.App.Status = "history write failed: " + err.Error()
	}
}

// splitStatements splits a buffer on semicolons outside single-quoted
// strings, dropping empty statements.
func splitStatements(s string) []string {
	var parts []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	var stmts []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			stmts = append(stmts, p)
		}
	}
	return stmts
}

// pageableSelect reports whether the statement is a plain SELECT that can be
// paginated by appending LIMIT/OFFSET.
func pageableSelect(sqlText string) bool {
	lower := strings.ToLower(sqlText)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return false
	}
	if strings.Contains(lower, "limit") {
		return false
	}
	// Multi-statement input cannot be wrapped.
	if strings.Contains(strings.TrimRight(sqlText, "; \t\n"), ";") {
		return false
	}
	return true
}
