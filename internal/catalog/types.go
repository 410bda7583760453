package catalog

// ColumnInfo is one column of a materialized table.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // "INTEGER", "REAL" or "TEXT"
}

// NumericStats summarizes the value range of a numeric column.
type NumericStats struct {
	Column string  `json:"column"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// CategoricalStats summarizes a text column: distinct cardinality and the
// most frequent values (capped at ingestion time).
type CategoricalStats struct {
	Column        string   `json:"column"`
	DistinctCount int      `json:"distinct_count"`
	TopValues     []string `json:"top_values"`
}

// TableDescriptor is the schema and statistics summary of one ingested
// tabular file. Created at upload time and read-only afterwards.
type TableDescriptor struct {
	TableName   string              `json:"table_name"`
	Filename    string              `json:"filename"`
	Columns     []ColumnInfo        `json:"columns"`
	Numeric     []NumericStats      `json:"numeric_stats,omitempty"`
	Categorical []CategoricalStats  `json:"categorical_stats,omitempty"`
	RowCount    int                 `json:"row_count"`
	SampleRows  []map[string]string `json:"sample_rows,omitempty"`
}
