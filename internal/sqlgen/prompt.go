package sqlgen

import (
	"fmt"
	"strings"

	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/ollama"
)

const systemPromptTemplate = `You are a SQL generation engine for a financial data assistant. Decide whether the user's question can be answered by querying the tables described below, and if so, write the query. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- The dialect is SQLite. Use only SQLite syntax and functions.
- Never use SELECT *. Always name the columns you need.
- Only reference tables and columns that appear in the catalog below.
- When the user asks about "recent" or "latest" data, order by the date column descending and LIMIT 10.
- Use the column statistics to pick filter values: match categorical filters against the listed distinct values, case-insensitively when unsure.
- Aggregations (SUM, AVG, COUNT, MIN, MAX) are preferred over returning raw rows when the question asks for a total, average, or count.
- Set answerable to false when the question cannot be answered from these tables (general knowledge, questions about prose documents, or columns that do not exist). In that case leave query and table empty.`

// BuildPrompt constructs the Ollama chat messages for SQL generation from the
// user query and the table catalog.
func BuildPrompt(userQuery string, tables []catalog.TableDescriptor) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(systemPromptTemplate)
	sb.WriteString("\n\n[Tables]\n")
	for _, td := range tables {
		sb.WriteString(renderTable(td))
	}

	return []ollama.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: userQuery},
	}
}

// renderTable formats one table descriptor as a compact text block the model
// can ground its query on.
func renderTable(td catalog.TableDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nTable %s (from file %q, %d rows)\n", td.TableName, td.Filename, td.RowCount)

	sb.WriteString("Columns:")
	for _, c := range td.Columns {
		fmt.Fprintf(&sb, " %s %s,", c.Name, c.Type)
	}
	sb.WriteString("\n")

	for _, n := range td.Numeric {
		fmt.Fprintf(&sb, "  %s: min=%g max=%g\n", n.Column, n.Min, n.Max)
	}
	for _, c := range td.Categorical {
		fmt.Fprintf(&sb, "  %s: %d distinct, values: %s\n", c.Column, c.DistinctCount, strings.Join(c.TopValues, ", "))
	}

	if len(td.SampleRows) > 0 {
		sb.WriteString("Sample rows:\n")
		for _, row := range td.SampleRows {
			sb.WriteString("  ")
			for _, c := range td.Columns {
				fmt.Fprintf(&sb, "%s=%s ", c.Name, row[c.Name])
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
