// Package tabular parses uploaded CSV and XLSX files, profiles their columns
// and materializes them as queryable SQLite tables.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
)

// Table is a parsed tabular file: cleaned column names plus string cells.
// Typing happens later, during profiling and materialization.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Parse reads a tabular file by extension. Supported: .csv, .xlsx.
// Legacy .xls is rejected; the caller should tell the user to re-save.
func Parse(filename string, data []byte) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return parseCSV(data)
	case ".xlsx":
		return parseXLSX(data)
	case ".xls":
		return nil, fmt.Errorf("legacy .xls is not supported, re-save %q as .xlsx or .csv", filename)
	default:
		return nil, fmt.Errorf("unsupported tabular type %q", ext)
	}
}

func parseCSV(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return fromRecords(records)
}

// fromRecords builds a cleaned Table from a header row plus data rows:
// column names and text cells are lowercased and trimmed, matching how the
// SQL generator's prompt renders filter values.
func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no rows")
	}

	header := records[0]
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := cleanColumnName(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		// Deduplicate repeated headers.
		base := name
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		seen[name] = true
		columns[i] = name
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(columns))
		for i := range columns {
			if i < len(rec) {
				row[i] = strings.ToLower(strings.TrimSpace(rec[i]))
			}
		}
		rows = append(rows, row)
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

// cleanColumnName lowercases, trims and replaces non-identifier characters so
// the name is safe to quote in generated SQL.
func cleanColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '_':
			sb.WriteRune('_')
		case r == ' ', r == '-', r == '.', r == '/':
			sb.WriteRune('_')
		}
	}
	return strings.Trim(sb.String(), "_")
}
