package sqlgen

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/ollama"
)

// OllamaChatter is the interface for chat completion via Ollama.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Decision is the structured routing verdict for one user query: whether the
// question can be answered from the materialized tables, and if so, the
// SQL to run.
type Decision struct {
	Answerable bool   `json:"answerable"`
	Query      string `json:"query"`
	Table      string `json:"table"`
}

// Generator uses a code-tuned local LLM to decide whether a question is
// answerable from the uploaded tables and to write the query for it.
type Generator struct {
	client  OllamaChatter
	model   string
	timeout time.Duration
}

// NewGenerator creates a Generator using the given Ollama client, model name
// and per-call generation timeout.
func NewGenerator(client OllamaChatter, model string, timeout time.Duration) *Generator {
	return &Generator{client: client, model: model, timeout: timeout}
}

// Generate analyses the query against the table catalog and returns a
// Decision. On any failure (timeout, malformed JSON, Ollama error) it returns
// a zero-value Decision, which routes the turn to document retrieval
// instead of aborting the conversation.
func (g *Generator) Generate(ctx context.Context, userQuery string, tables []catalog.TableDescriptor) Decision {
	if userQuery == "" || len(tables) == 0 {
		return Decision{}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := BuildPrompt(userQuery, tables)

	raw, err := g.client.Chat(ctx, g.model, messages, decisionSchema())
	if err != nil {
		slog.Warn("sql generation chat failed", "error", err)
		return Decision{}
	}

	var result Decision
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("failed to unmarshal sql decision from LLM response", "error", err, "response", raw)
		return Decision{}
	}
	if result.Answerable && result.Query == "" {
		slog.Warn("LLM claimed answerable but returned no query", "response", raw)
		return Decision{}
	}
	return result
}

// decisionSchema returns the Ollama JSON schema for structured SQL decisions.
func decisionSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"answerable": {Type: "boolean", Description: "Whether the question can be answered with a SQL query over the listed tables"},
			"query":      {Type: "string", Description: "The SQLite query to run, empty if not answerable"},
			"table":      {Type: "string", Description: "The primary table the query reads from, empty if not answerable"},
		},
		Required: []string{"answerable", "query", "table"},
	}
}
