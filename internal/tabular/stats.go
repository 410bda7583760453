package tabular

import (
	"sort"
	"strconv"

	"github.com/kalambet/finchat/internal/catalog"
)

const (
	topValuesCap  = 50
	sampleRowsCap = 5
)

// Describe profiles the table into the descriptor the SQL generator grounds
// its queries on: column types, numeric ranges, categorical top values and a
// handful of sample rows.
func Describe(t *Table, tableName, filename string) catalog.TableDescriptor {
	td := catalog.TableDescriptor{
		TableName: tableName,
		Filename:  filename,
		RowCount:  len(t.Rows),
	}

	for i, name := range t.Columns {
		colType := inferColumnType(t, i)
		td.Columns = append(td.Columns, catalog.ColumnInfo{Name: name, Type: colType})

		if colType == "TEXT" {
			td.Categorical = append(td.Categorical, categoricalStats(t, i, name))
		} else {
			td.Numeric = append(td.Numeric, numericStats(t, i, name))
		}
	}

	for i := 0; i < len(t.Rows) && i < sampleRowsCap; i++ {
		row := make(map[string]string, len(t.Columns))
		for j, name := range t.Columns {
			row[name] = t.Rows[i][j]
		}
		td.SampleRows = append(td.SampleRows, row)
	}

	return td
}

// inferColumnType scans a column's non-empty cells: all integers → INTEGER,
// all numeric → REAL, anything else → TEXT. An all-empty column is TEXT.
func inferColumnType(t *Table, col int) string {
	sawValue := false
	allInt := true
	for _, row := range t.Rows {
		v := row[col]
		if v == "" {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			continue
		}
		allInt = false
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "TEXT"
		}
	}
	if !sawValue {
		return "TEXT"
	}
	if allInt {
		return "INTEGER"
	}
	return "REAL"
}

func numericStats(t *Table, col int, name string) catalog.NumericStats {
	stats := catalog.NumericStats{Column: name}
	first := true
	for _, row := range t.Rows {
		v, err := strconv.ParseFloat(row[col], 64)
		if err != nil {
			continue
		}
		if first || v < stats.Min {
			stats.Min = v
		}
		if first || v > stats.Max {
			stats.Max = v
		}
		first = false
	}
	return stats
}

// categoricalStats counts distinct values and keeps the most frequent ones,
// capped so wide ID-like columns don't bloat the descriptor.
func categoricalStats(t *Table, col int, name string) catalog.CategoricalStats {
	counts := make(map[string]int)
	for _, row := range t.Rows {
		if v := row[col]; v != "" {
			counts[v]++
		}
	}

	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return values[i] < values[j]
	})
	if len(values) > topValuesCap {
		values = values[:topValuesCap]
	}

	return catalog.CategoricalStats{
		Column:        name,
		DistinctCount: len(counts),
		TopValues:     values,
	}
}
