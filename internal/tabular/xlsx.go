package tabular

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseXLSX reads the first worksheet of an OpenXML spreadsheet. Only the
// parts the ingestion path needs are parsed: the shared string table and
// sheet1's cell grid.
func parseXLSX(data []byte) (*Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening xlsx container: %w", err)
	}

	shared, err := sharedStrings(zr)
	if err != nil {
		return nil, err
	}

	sheet := findFile(zr, "xl/worksheets/sheet1.xml")
	if sheet == nil {
		return nil, fmt.Errorf("xlsx has no xl/worksheets/sheet1.xml")
	}
	records, err := sheetRecords(sheet, shared)
	if err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func findFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// xlsxSST is the shared string table: each <si> holds one or more <t> runs.
type xlsxSST struct {
	Items []struct {
		Text string   `xml:"t"`
		Runs []string `xml:"r>t"`
	} `xml:"si"`
}

func sharedStrings(zr *zip.Reader) ([]string, error) {
	f := findFile(zr, "xl/sharedStrings.xml")
	if f == nil {
		// Legal for sheets with no string cells.
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening shared strings: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading shared strings: %w", err)
	}

	var sst xlsxSST
	if err := xml.Unmarshal(b, &sst); err != nil {
		return nil, fmt.Errorf("parsing shared strings: %w", err)
	}

	out := make([]string, len(sst.Items))
	for i, si := range sst.Items {
		if si.Text != "" {
			out[i] = si.Text
			continue
		}
		out[i] = strings.Join(si.Runs, "")
	}
	return out, nil
}

type xlsxSheet struct {
	Rows []struct {
		Cells []xlsxCell `xml:"c"`
	} `xml:"sheetData>row"`
}

type xlsxCell struct {
	Ref    string `xml:"r,attr"`
	Type   string `xml:"t,attr"`
	Value  string `xml:"v"`
	Inline string `xml:"is>t"`
}

// sheetRecords flattens the sheet's sparse cell grid into dense string
// records, resolving shared-string and inline-string cells.
func sheetRecords(f *zip.File, shared []string) ([][]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening worksheet: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading worksheet: %w", err)
	}

	var sheet xlsxSheet
	if err := xml.Unmarshal(b, &sheet); err != nil {
		return nil, fmt.Errorf("parsing worksheet: %w", err)
	}

	var records [][]string
	width := 0
	for _, row := range sheet.Rows {
		cells := make(map[int]string, len(row.Cells))
		maxCol := 0
		for _, c := range row.Cells {
			col := columnIndex(c.Ref)
			if col < 0 {
				continue
			}
			v, err := cellValue(c, shared)
			if err != nil {
				return nil, err
			}
			cells[col] = v
			if col > maxCol {
				maxCol = col
			}
		}
		if maxCol+1 > width {
			width = maxCol + 1
		}
		rec := make([]string, maxCol+1)
		for col, v := range cells {
			rec[col] = v
		}
		records = append(records, rec)
	}

	// Pad short rows to a rectangular grid.
	for i, rec := range records {
		if len(rec) < width {
			padded := make([]string, width)
			copy(padded, rec)
			records[i] = padded
		}
	}
	return records, nil
}

func cellValue(c xlsxCell, shared []string) (string, error) {
	switch c.Type {
	case "s":
		idx, err := strconv.Atoi(c.Value)
		if err != nil || idx < 0 || idx >= len(shared) {
			return "", fmt.Errorf("invalid shared string index %q in cell %s", c.Value, c.Ref)
		}
		return shared[idx], nil
	case "inlineStr":
		return c.Inline, nil
	default:
		return c.Value, nil
	}
}

// columnIndex converts the letter part of an A1-style reference to a
// zero-based column index. Returns -1 for malformed references.
func columnIndex(ref string) int {
	n := 0
	seen := false
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		n = n*26 + int(r-'A') + 1
		seen = true
	}
	if !seen {
		return -1
	}
	return n - 1
}
