package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docxText extracts the plain text of a DOCX file by walking word/document.xml
// and collecting the <w:t> run elements.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening docx container: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading document.xml: %w", err)
	}

	text := collapseWhitespace(textElements(b))
	if text == "" {
		return "", fmt.Errorf("docx contains no extractable text")
	}
	return text, nil
}

// textElements collects the character data of every <t> element, which is how
// WordprocessingML stores visible text runs.
func textElements(xmlBytes []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "t" {
			continue
		}
		var v string
		if err := dec.DecodeElement(&v, &se); err != nil {
			continue
		}
		if v != "" {
			out.WriteString(v)
			out.WriteString(" ")
		}
	}
	return out.String()
}
