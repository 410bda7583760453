package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/finchat/internal/retrieval"
	"github.com/kalambet/finchat/internal/storage"
)

// mockJobStore implements JobStore with function fields.
type mockJobStore struct {
	claimFn    func(types []string) (*storage.Job, error)
	completeFn func(id string) error
	failFn     func(id string, errMsg string) error
	getTextFn  func(fileID string) (storage.DocumentText, error)

	completed []string
	failed    map[string]string
}

func (m *mockJobStore) ClaimNextJob(types []string) (*storage.Job, error) { return m.claimFn(types) }
func (m *mockJobStore) CompleteJob(id string) error {
	m.completed = append(m.completed, id)
	if m.completeFn != nil {
		return m.completeFn(id)
	}
	return nil
}
func (m *mockJobStore) FailJob(id string, errMsg string) error {
	if m.failed == nil {
		m.failed = map[string]string{}
	}
	m.failed[id] = errMsg
	if m.failFn != nil {
		return m.failFn(id, errMsg)
	}
	return nil
}
func (m *mockJobStore) GetDocumentText(fileID string) (storage.DocumentText, error) {
	return m.getTextFn(fileID)
}

// mockBatchEmbedder implements ChunkEmbedder.
type mockBatchEmbedder struct {
	err   error
	texts []string
}

func (m *mockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.texts = texts
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

// mockInserter implements VectorInserter.
type mockInserter struct {
	err     error
	records []retrieval.Record
}

func (m *mockInserter) Insert(records []retrieval.Record) error {
	m.records = records
	return m.err
}

func embedJob(id, fileID string) *storage.Job {
	return &storage.Job{ID: id, Type: jobTypeEmbed, PayloadJSON: `{"file_id":"` + fileID + `"}`}
}

func TestRunOnceNoJobs(t *testing.T) {
	store := &mockJobStore{
		claimFn: func(types []string) (*storage.Job, error) { return nil, nil },
	}
	w := NewWorker(store, &mockBatchEmbedder{}, &mockInserter{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("done = true with empty queue")
	}
}

func TestRunOnceEmbedsDocument(t *testing.T) {
	store := &mockJobStore{
		claimFn: func(types []string) (*storage.Job, error) {
			if len(types) != 1 || types[0] != jobTypeEmbed {
				t.Errorf("claimed types = %v", types)
			}
			return embedJob("job-1", "file-1"), nil
		},
		getTextFn: func(fileID string) (storage.DocumentText, error) {
			return storage.DocumentText{
				FileID:    fileID,
				UserID:    "alice",
				SessionID: "s1",
				Content:   strings.Repeat("financial report text. ", 60),
			}, nil
		},
	}
	embedder := &mockBatchEmbedder{}
	inserter := &mockInserter{}
	w := NewWorker(store, embedder, inserter, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false")
	}

	if len(embedder.texts) < 2 {
		t.Fatalf("text was not chunked: %d chunks", len(embedder.texts))
	}
	if len(inserter.records) != len(embedder.texts) {
		t.Fatalf("inserted %d records for %d chunks", len(inserter.records), len(embedder.texts))
	}
	for i, r := range inserter.records {
		if r.UserID != "alice" || r.SessionID != "s1" || r.FileID != "file-1" {
			t.Errorf("record %d partition = %+v", i, r)
		}
		if r.ChunkSeq != i {
			t.Errorf("record %d ChunkSeq = %d", i, r.ChunkSeq)
		}
	}
	if len(store.completed) != 1 || store.completed[0] != "job-1" {
		t.Errorf("completed = %v", store.completed)
	}
}

func TestRunOnceFailsJobOnEmbedError(t *testing.T) {
	store := &mockJobStore{
		claimFn: func(types []string) (*storage.Job, error) { return embedJob("job-1", "file-1"), nil },
		getTextFn: func(fileID string) (storage.DocumentText, error) {
			return storage.DocumentText{FileID: fileID, Content: "some text"}, nil
		},
	}
	w := NewWorker(store, &mockBatchEmbedder{err: errors.New("ollama down")}, &mockInserter{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false")
	}
	if msg := store.failed["job-1"]; !strings.Contains(msg, "ollama down") {
		t.Errorf("failure message = %q", msg)
	}
	if len(store.completed) != 0 {
		t.Error("job marked completed despite embed failure")
	}
}

func TestRunOnceFailsJobOnBadPayload(t *testing.T) {
	store := &mockJobStore{
		claimFn: func(types []string) (*storage.Job, error) {
			return &storage.Job{ID: "job-1", Type: jobTypeEmbed, PayloadJSON: "{{{"}, nil
		},
	}
	w := NewWorker(store, &mockBatchEmbedder{}, &mockInserter{}, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, ok := store.failed["job-1"]; !ok {
		t.Error("job with bad payload not failed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &mockJobStore{
		claimFn: func(types []string) (*storage.Job, error) { return nil, nil },
	}
	w := NewWorker(store, &mockBatchEmbedder{}, &mockInserter{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx) // must return promptly
}

func TestChunkText(t *testing.T) {
	if got := ChunkText("   "); got != nil {
		t.Errorf("ChunkText(blank) = %v", got)
	}

	short := "short document"
	if got := ChunkText(short); len(got) != 1 || got[0] != short {
		t.Errorf("ChunkText(short) = %v", got)
	}

	long := strings.Repeat("a", 1200)
	chunks := ChunkText(long)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks[:2] {
		if len([]rune(c)) != chunkSize {
			t.Errorf("chunk %d length = %d, want %d", i, len([]rune(c)), chunkSize)
		}
	}
	// Overlap: chunk 2 starts 400 runes in, so it shares its first 100 runes
	// with the tail of chunk 1.
	if !strings.HasPrefix(chunks[1], strings.Repeat("a", 100)) {
		t.Error("chunks do not overlap")
	}
}
