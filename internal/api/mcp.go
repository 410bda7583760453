package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/retrieval"
)

// MCPSearcher abstracts document retrieval for the MCP layer.
type MCPSearcher interface {
	Retrieve(ctx context.Context, userID, sessionID, query string) retrieval.Result
}

// MCPCatalog abstracts the table catalog for the MCP layer.
type MCPCatalog interface {
	FetchTables(ctx context.Context, userID, sessionID string) ([]catalog.TableDescriptor, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Chat     Chatter
	Catalog  MCPCatalog
	Searcher MCPSearcher
}

// NewMCPServer creates an MCP server exposing the chatbot to agent hosts:
// ask a question, inspect the uploaded tables, or search the documents.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"finchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("finchat — local financial document chatbot over uploaded spreadsheets and reports."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question about the uploaded financial data and documents. Returns a grounded natural-language answer."),
			mcp.WithString("user_id", mcp.Description("User the data belongs to"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session holding the uploads; a new session is created when omitted")),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription("List the SQL tables materialized from the session's tabular uploads, with columns and statistics."),
			mcp.WithString("user_id", mcp.Description("User the data belongs to"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session holding the uploads"), mcp.Required()),
		),
		mcpListTables(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the session's uploaded documents and return the most relevant passages."),
			mcp.WithString("user_id", mcp.Description("User the data belongs to"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session holding the uploads"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpSearchDocuments(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		sessionID := req.GetString("session_id", "")

		ans, err := deps.Chat.Ask(ctx, userID, sessionID, query)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"session_id": ans.SessionID,
			"response":   ans.Response,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListTables(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		tables, err := deps.Catalog.FetchTables(ctx, userID, sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing tables failed: %v", err)), nil
		}

		b, err := json.Marshal(tables)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal tables: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res := deps.Searcher.Retrieve(ctx, userID, sessionID, query)
		if !res.Succeeded {
			return mcpError(res.Message), nil
		}

		type matchResult struct {
			Rank    int     `json:"rank"`
			Content string  `json:"content"`
			Score   float32 `json:"score"`
		}
		results := make([]matchResult, len(res.Matches))
		for i, m := range res.Matches {
			results[i] = matchResult{Rank: m.Rank, Content: m.Content, Score: m.Score}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
