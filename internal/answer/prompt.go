package answer

import (
	"fmt"
	"strings"

	"github.com/kalambet/finchat/internal/ollama"
	"github.com/kalambet/finchat/internal/retrieval"
)

const sqlSystemPrompt = `You are a financial data analyst. Analyze the SQL query result and provide insights that are relevant to the asked question.

Rules:
1. ALWAYS base your response ONLY on the given SQL query result and user question.
2. First, identify what the user has asked to provide, then answer it from the result.
3. Do not guess values; only use provided data.
4. If the result is empty or contains only null aggregates, respond: "No data found for your query."
5. If the question is unrelated to financial data, say: "I am a Financial ChatBot. Please ask me questions related to financial data."
6. Be concise (max 200 words), clear, and business-oriented.`

const docSystemPrompt = `You are a financial data analyst. Analyze the retrieved document excerpts and the user question, and provide insights based on the document content.

Rules:
1. ALWAYS base your response ONLY on the given excerpts and user question.
2. Include all relevant details from the excerpts.
3. If the excerpts contain no relevant information for the question, clearly state: "The uploaded documents don't contain information relevant to your query."
4. Reference specific document sections when providing information (e.g., "According to the document...").
5. If the question is unrelated to financial documents, say: "I am a Financial ChatBot. Please ask me questions related to financial documents or data."
6. Do not add information not present in the excerpts.
7. Be concise (max 200 words), clear, and business-oriented.`

const fallbackSystemPrompt = `You are a helpful financial assistant. Explain clearly why the question cannot be answered with the available data.

Rules:
1. Be empathetic and helpful.
2. Keep the response concise (max 50 words).
3. If the question is unrelated to finance, respond: "I am a Financial ChatBot. Please ask questions related to financial data."
4. If it's a greeting, greet back and invite a financial question.
5. If no documents or tables are available, tell the user to upload files first.
6. If no matching data was found, say the query returned no results.`

// BuildSQLPrompt constructs the chat messages for synthesizing an answer from
// SQL query results. rowsJSON is the executed result set rendered as JSON.
func BuildSQLPrompt(userQuery, sqlQuery, rowsJSON string) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(sqlSystemPrompt)
	fmt.Fprintf(&sb, "\n\nSQL query:\n%s\n\nSQL query result:\n%s", sqlQuery, rowsJSON)

	return []ollama.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: userQuery},
	}
}

// BuildDocPrompt constructs the chat messages for synthesizing an answer from
// retrieved document excerpts.
func BuildDocPrompt(userQuery string, matches []retrieval.Match) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(docSystemPrompt)
	sb.WriteString("\n\nDocument excerpts:\n")
	for _, m := range matches {
		fmt.Fprintf(&sb, "[%d] %s\n", m.Rank, m.Content)
	}

	return []ollama.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: userQuery},
	}
}

// BuildFallbackPrompt constructs the chat messages for the no-evidence case:
// nothing ran, or what ran produced nothing usable. detail tells the model
// what happened (missing tables, failed query, empty retrieval).
func BuildFallbackPrompt(userQuery, detail string) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(fallbackSystemPrompt)
	if detail != "" {
		fmt.Fprintf(&sb, "\n\nWhat happened:\n%s", detail)
	}

	return []ollama.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: userQuery},
	}
}
