package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mockEmbedClient implements OllamaEmbedder for testing.
type mockEmbedClient struct {
	mu     sync.Mutex
	calls  int
	failOn string
	vec    []float32
}

func (m *mockEmbedClient) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.failOn != "" && text == m.failOn {
		return nil, errors.New("embed failed")
	}
	return m.vec, nil
}

func TestEmbedSingle(t *testing.T) {
	mock := &mockEmbedClient{vec: []float32{0.1, 0.2}}
	e := NewEmbedder(mock, "nomic-embed-text")

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("got %d dims, want 2", len(vec))
	}
}

func TestEmbedBatch(t *testing.T) {
	mock := &mockEmbedClient{vec: []float32{1}}
	e := NewEmbedder(mock, "nomic-embed-text")

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if mock.calls != 3 {
		t.Errorf("client called %d times, want 3", mock.calls)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	e := NewEmbedder(&mockEmbedClient{}, "nomic-embed-text")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

func TestEmbedBatchPartialFailure(t *testing.T) {
	mock := &mockEmbedClient{vec: []float32{1}, failOn: "b"}
	e := NewEmbedder(mock, "nomic-embed-text")

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}); err == nil {
		t.Fatal("expected error when one text fails to embed")
	}
}
