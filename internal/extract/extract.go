// Package extract pulls plain text out of uploaded document files so they
// can be chunked and embedded.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file types the extractor cannot handle.
var ErrUnsupported = fmt.Errorf("unsupported document type")

// Text extracts plain text from a document by extension, sniffing the bytes
// to catch mislabeled files. Supported: .pdf, .docx, .txt.
func Text(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file %q", filename)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		if !isPDF(data) {
			return "", fmt.Errorf("%q claims pdf but has no %%PDF header", filename)
		}
		return pdfText(data)
	case ".docx":
		if !isZip(data) {
			return "", fmt.Errorf("%q claims docx but is not a zip container", filename)
		}
		return docxText(data)
	case ".txt":
		return collapseWhitespace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// isPDF checks for the "%PDF-" magic header.
func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

// isZip checks for the PK\x03\x04 local file header.
func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

// collapseWhitespace normalizes all runs of whitespace to single spaces.
func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
