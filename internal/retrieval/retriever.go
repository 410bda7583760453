package retrieval

import (
	"context"
	"log/slog"
)

// Messages returned to the user instead of matches when retrieval has nothing
// to work with. Callers render them verbatim.
const (
	NoDocumentsMessage = "No documents found. Please upload files first."
	NoMatchesMessage   = "no relevant information found in uploaded documents"
)

// Match is one retrieved chunk, ranked by similarity.
type Match struct {
	Rank    int
	Content string
	Score   float32
}

// Result is the outcome of one retrieval. Succeeded is true only when at
// least one match was found; otherwise Message explains what was missing.
type Result struct {
	Succeeded bool
	Message   string
	Matches   []Match
	Total     int
}

// Retriever combines embedding and partitioned vector search to find document
// evidence for a question.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
	topK     int
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore, topK int) *Retriever {
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve embeds the question and searches the session's chunks. It never
// returns an error: failures degrade into a Result carrying a user-facing
// message, so the conversation continues regardless.
func (r *Retriever) Retrieve(ctx context.Context, userID, sessionID, query string) Result {
	exists, err := r.store.Exists(userID, sessionID)
	if err != nil {
		slog.Error("checking document partition failed", "error", err, "user", userID, "session", sessionID)
		return Result{Message: NoDocumentsMessage}
	}
	if !exists {
		return Result{Message: NoDocumentsMessage}
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Error("embedding query failed", "error", err)
		return Result{Message: NoMatchesMessage}
	}

	scored, err := r.store.Search(userID, sessionID, vec, r.topK)
	if err != nil {
		slog.Error("vector search failed", "error", err)
		return Result{Message: NoMatchesMessage}
	}

	if len(scored) == 0 {
		return Result{Message: NoMatchesMessage}
	}

	matches := make([]Match, len(scored))
	for i, s := range scored {
		matches[i] = Match{Rank: i + 1, Content: s.TextChunk, Score: s.Score}
	}
	return Result{Succeeded: true, Matches: matches, Total: len(matches)}
}
