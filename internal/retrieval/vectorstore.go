package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The current implementation uses SQLite with brute-force cosine
// similarity, which is plenty for per-session document collections. An
// ANN-capable backend can replace it behind the same interface if a session
// ever grows past a few hundred thousand chunks.
type VectorStore interface {
	// Insert adds chunk records in one transaction.
	Insert(records []Record) error

	// Search returns the top-K chunks most similar to the vector within a
	// single (user, session) partition. Chunks from other sessions must
	// never leak across the partition boundary.
	Search(userID, sessionID string, vector []float32, topK int) ([]ScoredRecord, error)

	// Exists reports whether the partition holds any chunks at all.
	Exists(userID, sessionID string) (bool, error)
}

// Record is one embedded document chunk in the vector store.
type Record struct {
	ID        string
	UserID    string
	SessionID string
	FileID    string
	ChunkSeq  int
	TextChunk string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
