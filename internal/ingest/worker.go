package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/finchat/internal/retrieval"
	"github.com/kalambet/finchat/internal/storage"
)

const jobTypeEmbed = "embed_document"

// JobStore abstracts the job queue and document text operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocumentText(fileID string) (storage.DocumentText, error)
}

// ChunkEmbedder generates embeddings for batches of text chunks.
type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts chunk records into the vector store.
type VectorInserter interface {
	Insert(records []retrieval.Record) error
}

// Worker processes embed_document jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder ChunkEmbedder
	vectors  VectorInserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ChunkEmbedder, vectors VectorInserter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single embed_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{jobTypeEmbed})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type embedPayload struct {
	FileID string `json:"file_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	text, err := w.store.GetDocumentText(payload.FileID)
	if err != nil {
		return fmt.Errorf("loading document text for %s: %w", payload.FileID, err)
	}

	chunks := ChunkText(text.Content)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no text to embed", payload.FileID)
	}

	vectors, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:        uuid.New().String(),
			UserID:    text.UserID,
			SessionID: text.SessionID,
			FileID:    payload.FileID,
			ChunkSeq:  i,
			TextChunk: chunk,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting %d vectors: %w", len(records), err)
	}

	w.logger.Info("document embedded", "file_id", payload.FileID, "chunks", len(records))
	return nil
}
