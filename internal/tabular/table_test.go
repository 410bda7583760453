package tabular

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
)

const sampleCSV = `Date, Category ,Amount
2024-01-05,Groceries,120.50
2024-01-12,RENT,1800
2024-02-02, groceries ,95.25
`

func TestParseCSV(t *testing.T) {
	tbl, err := Parse("expenses.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantCols := []string{"date", "category", "amount"}
	for i, want := range wantCols {
		if tbl.Columns[i] != want {
			t.Errorf("Columns[%d] = %q, want %q", i, tbl.Columns[i], want)
		}
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(tbl.Rows))
	}
	// String cells are lowercased and trimmed.
	if tbl.Rows[1][1] != "rent" {
		t.Errorf("Rows[1][1] = %q, want %q", tbl.Rows[1][1], "rent")
	}
	if tbl.Rows[2][1] != "groceries" {
		t.Errorf("Rows[2][1] = %q, want %q", tbl.Rows[2][1], "groceries")
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	tbl, err := Parse("empty.csv", []byte("a,b,c\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tbl.Rows) != 0 {
		t.Errorf("got %d rows, want 0", len(tbl.Rows))
	}
}

func TestParseRejectsLegacyXLS(t *testing.T) {
	_, err := Parse("old.xls", []byte("anything"))
	if err == nil || !strings.Contains(err.Error(), ".xls") {
		t.Errorf("got %v, want legacy .xls rejection", err)
	}
}

func TestParseRejectsUnknownExtension(t *testing.T) {
	if _, err := Parse("data.parquet", []byte("anything")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestCleanColumnName(t *testing.T) {
	cases := []struct{ in, want string }{
		{" Transaction Amount ", "transaction_amount"},
		{"Date/Time", "date_time"},
		{"P&L", "pl"},
		{"__weird__", "weird"},
	}
	for _, tc := range cases {
		if got := cleanColumnName(tc.in); got != tc.want {
			t.Errorf("cleanColumnName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDuplicateHeadersAreDeduplicated(t *testing.T) {
	tbl, err := Parse("dup.csv", []byte("amount,amount,amount\n1,2,3\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"amount", "amount_2", "amount_3"}
	for i := range want {
		if tbl.Columns[i] != want[i] {
			t.Errorf("Columns[%d] = %q, want %q", i, tbl.Columns[i], want[i])
		}
	}
}

// buildXLSX assembles a minimal OpenXML spreadsheet in memory: one shared
// string table and one worksheet.
func buildXLSX(t *testing.T, sharedStrings []string, rows []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if sharedStrings != nil {
		var sst strings.Builder
		sst.WriteString(`<?xml version="1.0"?><sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">`)
		for _, s := range sharedStrings {
			fmt.Fprintf(&sst, "<si><t>%s</t></si>", s)
		}
		sst.WriteString(`</sst>`)
		w, err := zw.Create("xl/sharedStrings.xml")
		if err != nil {
			t.Fatalf("creating sharedStrings.xml: %v", err)
		}
		if _, err := w.Write([]byte(sst.String())); err != nil {
			t.Fatalf("writing sharedStrings.xml: %v", err)
		}
	}

	var sheet strings.Builder
	sheet.WriteString(`<?xml version="1.0"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	for _, r := range rows {
		sheet.WriteString(r)
	}
	sheet.WriteString(`</sheetData></worksheet>`)
	w, err := zw.Create("xl/worksheets/sheet1.xml")
	if err != nil {
		t.Fatalf("creating sheet1.xml: %v", err)
	}
	if _, err := w.Write([]byte(sheet.String())); err != nil {
		t.Fatalf("writing sheet1.xml: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := buildXLSX(t,
		[]string{"Date", "Amount", "2024-01-05"},
		[]string{
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>`,
			`<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>120.5</v></c></row>`,
		})

	tbl, err := Parse("expenses.xlsx", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Columns[0] != "date" || tbl.Columns[1] != "amount" {
		t.Errorf("Columns = %v", tbl.Columns)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(tbl.Rows))
	}
	if tbl.Rows[0][0] != "2024-01-05" || tbl.Rows[0][1] != "120.5" {
		t.Errorf("Rows[0] = %v", tbl.Rows[0])
	}
}

func TestParseXLSXSparseRow(t *testing.T) {
	// Row 2 skips column A entirely; the grid must stay rectangular.
	data := buildXLSX(t,
		[]string{"a", "b"},
		[]string{
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>`,
			`<row r="2"><c r="B2"><v>7</v></c></row>`,
		})

	tbl, err := Parse("sparse.xlsx", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Rows[0][0] != "" || tbl.Rows[0][1] != "7" {
		t.Errorf("Rows[0] = %v", tbl.Rows[0])
	}
}

func TestParseXLSXInlineString(t *testing.T) {
	data := buildXLSX(t, nil, []string{
		`<row r="1"><c r="A1" t="inlineStr"><is><t>label</t></is></c></row>`,
		`<row r="2"><c r="A2"><v>42</v></c></row>`,
	})

	tbl, err := Parse("inline.xlsx", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Columns[0] != "label" {
		t.Errorf("Columns[0] = %q", tbl.Columns[0])
	}
	if tbl.Rows[0][0] != "42" {
		t.Errorf("Rows[0][0] = %q", tbl.Rows[0][0])
	}
}

func TestParseXLSXNotAZip(t *testing.T) {
	if _, err := Parse("corrupt.xlsx", []byte("not a zip")); err == nil {
		t.Error("expected error for corrupt xlsx")
	}
}

func TestColumnIndex(t *testing.T) {
	cases := []struct {
		ref  string
		want int
	}{
		{"A1", 0}, {"B2", 1}, {"Z9", 25}, {"AA10", 26}, {"AB1", 27}, {"1", -1},
	}
	for _, tc := range cases {
		if got := columnIndex(tc.ref); got != tc.want {
			t.Errorf("columnIndex(%q) = %d, want %d", tc.ref, got, tc.want)
		}
	}
}
