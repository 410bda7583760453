package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/chat"
	"github.com/kalambet/finchat/internal/retrieval"
	"github.com/kalambet/finchat/internal/workflow"
)

// --- mocks ---

type mockSearcher struct {
	result retrieval.Result
}

func (m *mockSearcher) Retrieve(_ context.Context, _, _, _ string) retrieval.Result {
	return m.result
}

type mockMCPCatalog struct {
	tables []catalog.TableDescriptor
	err    error
}

func (m *mockMCPCatalog) FetchTables(_ context.Context, _, _ string) ([]catalog.TableDescriptor, error) {
	return m.tables, m.err
}

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func testMCPDeps() MCPDeps {
	return MCPDeps{
		Chat: &mockChatter{answer: chat.Answer{
			SessionID:  "s1",
			TurnResult: workflow.TurnResult{Response: "the total is 42"},
		}},
		Catalog:  &mockMCPCatalog{},
		Searcher: &mockSearcher{},
	}
}

// --- tests ---

func TestMCPTool_Ask(t *testing.T) {
	handler := mcpAsk(testMCPDeps())

	req := makeCallToolRequest("ask", map[string]interface{}{
		"user_id": "alice",
		"query":   "what is the total",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	text := toolText(t, result)
	if !strings.Contains(text, "the total is 42") || !strings.Contains(text, `"session_id":"s1"`) {
		t.Errorf("result = %s", text)
	}
}

func TestMCPTool_AskRequiresQuery(t *testing.T) {
	handler := mcpAsk(testMCPDeps())

	req := makeCallToolRequest("ask", map[string]interface{}{"user_id": "alice"})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing query")
	}
}

func TestMCPTool_ListTables(t *testing.T) {
	deps := testMCPDeps()
	deps.Catalog = &mockMCPCatalog{tables: []catalog.TableDescriptor{
		{TableName: "user_alice_file_1", Filename: "expenses.csv", RowCount: 12},
	}}
	handler := mcpListTables(deps)

	req := makeCallToolRequest("list_tables", map[string]interface{}{
		"user_id":    "alice",
		"session_id": "s1",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var tables []catalog.TableDescriptor
	if err := json.Unmarshal([]byte(toolText(t, result)), &tables); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(tables) != 1 || tables[0].TableName != "user_alice_file_1" {
		t.Errorf("tables = %+v", tables)
	}
}

func TestMCPTool_SearchDocuments(t *testing.T) {
	deps := testMCPDeps()
	deps.Searcher = &mockSearcher{result: retrieval.Result{
		Succeeded: true,
		Matches: []retrieval.Match{
			{Rank: 1, Content: "revenue grew 12%", Score: 0.9},
		},
		Total: 1,
	}}
	handler := mcpSearchDocuments(deps)

	req := makeCallToolRequest("search_documents", map[string]interface{}{
		"user_id":    "alice",
		"session_id": "s1",
		"query":      "revenue",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "revenue grew 12%") {
		t.Errorf("result = %s", toolText(t, result))
	}
}

func TestMCPTool_SearchDocumentsColdSession(t *testing.T) {
	deps := testMCPDeps()
	deps.Searcher = &mockSearcher{result: retrieval.Result{Message: retrieval.NoDocumentsMessage}}
	handler := mcpSearchDocuments(deps)

	req := makeCallToolRequest("search_documents", map[string]interface{}{
		"user_id":    "alice",
		"session_id": "s1",
		"query":      "anything",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for cold session")
	}
	if toolText(t, result) != retrieval.NoDocumentsMessage {
		t.Errorf("message = %q", toolText(t, result))
	}
}
