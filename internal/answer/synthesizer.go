package answer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kalambet/finchat/internal/ollama"
	"github.com/kalambet/finchat/internal/retrieval"
)

// ApologyMessage is returned verbatim when synthesis itself fails. The user
// always gets a response, even with Ollama down.
const ApologyMessage = "I apologize, but I encountered an error while processing your request. Please try again."

// OllamaChatter is the interface for chat completion via Ollama.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Synthesizer turns gathered evidence (SQL rows or document excerpts) into a
// prose answer with a general-purpose local LLM.
type Synthesizer struct {
	client  OllamaChatter
	model   string
	timeout time.Duration
}

// NewSynthesizer creates a Synthesizer using the given Ollama client, model
// name and per-call timeout.
func NewSynthesizer(client OllamaChatter, model string, timeout time.Duration) *Synthesizer {
	return &Synthesizer{client: client, model: model, timeout: timeout}
}

// FromSQL synthesizes an answer from executed query results. Never fails:
// on any error it returns ApologyMessage.
func (s *Synthesizer) FromSQL(ctx context.Context, userQuery, sqlQuery string, rows []map[string]any) string {
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		slog.Error("marshaling sql rows for synthesis", "error", err)
		return ApologyMessage
	}
	return s.chat(ctx, BuildSQLPrompt(userQuery, sqlQuery, string(rowsJSON)))
}

// FromDocuments synthesizes an answer from retrieved document excerpts.
func (s *Synthesizer) FromDocuments(ctx context.Context, userQuery string, matches []retrieval.Match) string {
	return s.chat(ctx, BuildDocPrompt(userQuery, matches))
}

// NoEvidence produces the short explanatory response for turns where no
// usable evidence was gathered. detail describes what went wrong.
func (s *Synthesizer) NoEvidence(ctx context.Context, userQuery, detail string) string {
	return s.chat(ctx, BuildFallbackPrompt(userQuery, detail))
}

func (s *Synthesizer) chat(ctx context.Context, messages []ollama.Message) string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Chat(ctx, s.model, messages, nil)
	if err != nil {
		slog.Error("answer synthesis chat failed", "error", err)
		return ApologyMessage
	}
	if resp == "" {
		slog.Warn("answer synthesis returned empty response")
		return ApologyMessage
	}
	return resp
}
