// Package export writes result sets to files and streams.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// WriteTSV streams a result set as tab-separated text: a header line, then one
// line per row. NULLs render as the empty string so the output pipes cleanly.
func WriteTSV(w io.Writer, rs *driver.ResultSet) error {
	if rs == nil {
		return nil
	}
	for i, col := range rs.Columns {
		if i > 0 {
			if _, err := io.WriteString(w, "\t"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, col.Name); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	for _, row := range rs.Rows {
		for i, v := range row {
			if i > 0 {
				if _, err := io.WriteString(w, "\t"); err != nil {
					return err
				}
			}
			if !v.IsNull() {
				if _, err := io.WriteString(w, v.String()); err != nil {
					return err
				}
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// ToCSV writes a result set to a CSV file with a header row.
func ToCSV(rs *driver.ResultSet, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := make([]string, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col.Name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && !row[i].IsNull() {
				record[i] = row[i].String()
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ToJSON writes a result set to a JSON file as an array of column-keyed
// objects.
func ToJSON(rs *driver.ResultSet, path string) error {
	out := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		obj := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			if i >= len(row) || row[i].IsNull() {
				obj[col.Name] = nil
				continue
			}
			obj[col.Name] = row[i].String()
		}
		out = append(out, obj)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result set: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	return nil
}
