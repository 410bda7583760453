package tabular

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/kalambet/finchat/internal/storage"
)

func sampleTable() *Table {
	return &Table{
		Columns: []string{"date", "category", "amount", "count"},
		Rows: [][]string{
			{"2024-01-05", "groceries", "120.50", "3"},
			{"2024-01-12", "rent", "1800", "1"},
			{"2024-02-02", "groceries", "95.25", "2"},
			{"2024-02-10", "travel", "", "4"},
		},
	}
}

func TestDescribe(t *testing.T) {
	td := Describe(sampleTable(), "user_alice_file_1", "expenses.csv")

	if td.TableName != "user_alice_file_1" || td.Filename != "expenses.csv" {
		t.Errorf("identity = %q / %q", td.TableName, td.Filename)
	}
	if td.RowCount != 4 {
		t.Errorf("RowCount = %d, want 4", td.RowCount)
	}

	types := map[string]string{}
	for _, c := range td.Columns {
		types[c.Name] = c.Type
	}
	want := map[string]string{"date": "TEXT", "category": "TEXT", "amount": "REAL", "count": "INTEGER"}
	for name, wantType := range want {
		if types[name] != wantType {
			t.Errorf("column %s type = %q, want %q", name, types[name], wantType)
		}
	}

	var amount *struct{ min, max float64 }
	for _, n := range td.Numeric {
		if n.Column == "amount" {
			amount = &struct{ min, max float64 }{n.Min, n.Max}
		}
	}
	if amount == nil || amount.min != 95.25 || amount.max != 1800 {
		t.Errorf("amount stats = %+v", amount)
	}

	for _, c := range td.Categorical {
		if c.Column != "category" {
			continue
		}
		if c.DistinctCount != 3 {
			t.Errorf("category DistinctCount = %d, want 3", c.DistinctCount)
		}
		if c.TopValues[0] != "groceries" {
			t.Errorf("TopValues[0] = %q, want most frequent first", c.TopValues[0])
		}
	}

	if len(td.SampleRows) != 4 {
		t.Errorf("got %d sample rows, want 4", len(td.SampleRows))
	}
	if td.SampleRows[0]["category"] != "groceries" {
		t.Errorf("SampleRows[0] = %v", td.SampleRows[0])
	}
}

func TestDescribeCapsTopValues(t *testing.T) {
	tbl := &Table{Columns: []string{"id"}}
	for i := 0; i < 80; i++ {
		tbl.Rows = append(tbl.Rows, []string{"id-" + strconv.Itoa(i)})
	}

	td := Describe(tbl, "t", "f.csv")
	if len(td.Categorical) != 1 {
		t.Fatalf("got %d categorical columns", len(td.Categorical))
	}
	if td.Categorical[0].DistinctCount != 80 {
		t.Errorf("DistinctCount = %d, want 80", td.Categorical[0].DistinctCount)
	}
	if len(td.Categorical[0].TopValues) != topValuesCap {
		t.Errorf("got %d top values, want %d", len(td.Categorical[0].TopValues), topValuesCap)
	}
}

func TestDescribeCapsSampleRows(t *testing.T) {
	tbl := &Table{Columns: []string{"n"}}
	for i := 0; i < 20; i++ {
		tbl.Rows = append(tbl.Rows, []string{strconv.Itoa(i)})
	}

	td := Describe(tbl, "t", "f.csv")
	if len(td.SampleRows) != sampleRowsCap {
		t.Errorf("got %d sample rows, want %d", len(td.SampleRows), sampleRowsCap)
	}
}

func TestTableNameFor(t *testing.T) {
	got := TableNameFor("Alice", "3f2b-11ee")
	if got != "user_alice_file_3f2b_11ee" {
		t.Errorf("TableNameFor = %q", got)
	}
}

func TestMaterialize(t *testing.T) {
	db, err := storage.OpenData(":memory:")
	if err != nil {
		t.Fatalf("opening data store: %v", err)
	}
	defer db.Close()

	tbl := sampleTable()
	td := Describe(tbl, "user_alice_file_1", "expenses.csv")

	if err := Materialize(context.Background(), db, tbl, td); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	var total float64
	err = db.QueryRow(`SELECT SUM(amount) FROM user_alice_file_1 WHERE category = 'groceries'`).Scan(&total)
	if err != nil {
		t.Fatalf("querying materialized table: %v", err)
	}
	if total != 215.75 {
		t.Errorf("SUM(amount) = %v, want 215.75", total)
	}

	// Empty cells land as NULL, not empty strings.
	var nulls int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_alice_file_1 WHERE amount IS NULL`).Scan(&nulls); err != nil {
		t.Fatalf("counting nulls: %v", err)
	}
	if nulls != 1 {
		t.Errorf("NULL amounts = %d, want 1", nulls)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	db, err := storage.OpenData(":memory:")
	if err != nil {
		t.Fatalf("opening data store: %v", err)
	}
	defer db.Close()

	tbl := sampleTable()
	td := Describe(tbl, "user_alice_file_1", "expenses.csv")

	for i := 0; i < 2; i++ {
		if err := Materialize(context.Background(), db, tbl, td); err != nil {
			t.Fatalf("Materialize pass %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, td.TableName)).Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != len(tbl.Rows) {
		t.Errorf("row count after re-materialize = %d, want %d", count, len(tbl.Rows))
	}
}
