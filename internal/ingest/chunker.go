package ingest

import "strings"

const (
	chunkSize    = 500
	chunkOverlap = 100
)

// ChunkText splits extracted document text into overlapping rune windows for
// embedding. The overlap keeps sentences that straddle a boundary retrievable
// from both sides.
func ChunkText(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{string(runes)}
	}

	var out []string
	for i := 0; i < len(runes); i += chunkSize - chunkOverlap {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[i:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
