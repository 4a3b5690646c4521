// Package history persists executed queries in a local SQLite file so they
// can be recalled across sessions.
package history

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one recorded query execution.
type Entry struct {
	ID           int64
	Connection   string // display name, never the connection string
	SQL          string
	ExecutedAt   time.Time
	Duration     time.Duration
	RowsAffected int64
	Success      bool
	ErrorMessage string
}

// Store is the query history database.
type Store struct {
	db  *sql.DB
	max int
}

// NewStore opens (or creates) the history file. max bounds the number of
// retained entries; zero keeps everything.
func NewStore(path string, max int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db, max: max}, nil
}

// Add records one execution and prunes past the retention bound.
func (s *Store) Add(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO query_history
		(connection, sql_text, duration_ms, rows_affected, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Connection,
		e.SQL,
		e.Duration.Milliseconds(),
		e.RowsAffected,
		e.Success,
		e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	if s.max > 0 {
		_, err = s.db.Exec(`
			DELETE FROM query_history WHERE id NOT IN (
				SELECT id FROM query_history ORDER BY executed_at DESC, id DESC LIMIT ?
			)`, s.max)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, connection, sql_text, executed_at,
		       duration_ms, rows_affected, success, error_message
		FROM query_history
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return scanEntries(rows)
}

// Search returns entries whose SQL contains the substring, newest first.
func (s *Store) Search(substr string, limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, connection, sql_text, executed_at,
		       duration_ms, rows_affected, success, error_message
		FROM query_history
		WHERE sql_text LIKE ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`, "%"+substr+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	return scanEntries(rows)
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMs int64
		var executedAt string
		if err := rows.Scan(
			&e.ID, &e.Connection, &e.SQL, &executedAt,
			&durationMs, &e.RowsAffected, &e.Success, &e.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.ExecutedAt, _ = time.Parse("2006-01-02 15:04:05", executedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
