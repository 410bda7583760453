package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning = false for healthy server")
	}
}

func TestIsRunningDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning = true for closed server")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "mistral-nemo:latest"},
				{"name": "nomic-embed-text:latest"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0] != "mistral-nemo:latest" {
		t.Errorf("models[0] = %q", models[0])
	}
}

func TestHasModelMatchesTagSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "qwen2.5-coder:7b"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.HasModel(context.Background(), "qwen2.5-coder") {
		t.Error("HasModel should match name with tag suffix")
	}
	if c.HasModel(context.Background(), "llama3") {
		t.Error("HasModel matched an absent model")
	}
}

func TestChatStructuredFormat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"answerable":true}`},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	schema := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"answerable": {Type: "boolean"},
		},
		Required: []string{"answerable"},
	}
	out, err := c.Chat(context.Background(), "qwen2.5-coder", []Message{
		{Role: "user", Content: "total spend?"},
	}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"answerable":true}` {
		t.Errorf("Chat output = %q", out)
	}

	if gotBody["format"] == nil {
		t.Error("structured request should carry a format field")
	}
	opts, ok := gotBody["options"].(map[string]any)
	if !ok || opts["temperature"] != float64(0) {
		t.Errorf("structured request should pin temperature to 0, got options %v", gotBody["options"])
	}
	if gotBody["stream"] != false {
		t.Error("chat requests must be non-streaming")
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	vec, err := c.Embed(context.Background(), "nomic-embed-text", "quarterly revenue")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d dims, want 3", len(vec))
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Embed(context.Background(), "m", "text"); err == nil {
		t.Fatal("expected error for empty embeddings")
	}
}
