// Package ingest handles file uploads: tabular files are profiled and
// materialized as queryable tables synchronously, document files are stored
// and embedded asynchronously through the job queue.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/extract"
	"github.com/kalambet/finchat/internal/storage"
	"github.com/kalambet/finchat/internal/tabular"
)

// Kind classifies an upload by how it becomes queryable.
type Kind string

const (
	// KindTabular uploads become SQL tables at upload time.
	KindTabular Kind = "tabular"
	// KindDocument uploads become embedded chunks via the background worker.
	KindDocument Kind = "document"
)

var (
	tabularExts  = map[string]bool{".csv": true, ".xlsx": true}
	documentExts = map[string]bool{".pdf": true, ".docx": true, ".txt": true}
)

// UploadResult reports what one upload produced.
type UploadResult struct {
	FileID    string `json:"file_id"`
	Filename  string `json:"filename"`
	Kind      Kind   `json:"kind"`
	TableName string `json:"table_name,omitempty"`
	RowCount  int    `json:"row_count,omitempty"`
	Queued    bool   `json:"embedding_queued,omitempty"`
}

// Service runs the synchronous half of ingestion and enqueues the rest.
type Service struct {
	meta *storage.Store
	data *sql.DB
}

// NewService creates a Service over the metadata store and the writable
// data database that holds materialized tables.
func NewService(meta *storage.Store, data *sql.DB) *Service {
	return &Service{meta: meta, data: data}
}

// Upload stores the original file and routes it by extension. Duplicate
// filenames within a (user, session) are rejected with
// storage.ErrDuplicateFile.
func (s *Service) Upload(ctx context.Context, userID, sessionID, filename string, content []byte) (UploadResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".xls" {
		return UploadResult{}, fmt.Errorf("legacy .xls is not supported, re-save %q as .xlsx or .csv", filename)
	}
	if !tabularExts[ext] && !documentExts[ext] {
		return UploadResult{}, fmt.Errorf("unsupported file type %q", ext)
	}

	exists, err := s.meta.FileExists(userID, sessionID, filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("checking for duplicate upload: %w", err)
	}
	if exists {
		return UploadResult{}, fmt.Errorf("%w: %q", storage.ErrDuplicateFile, filename)
	}

	file := storage.File{
		ID:         uuid.New().String(),
		UserID:     userID,
		SessionID:  sessionID,
		Filename:   filename,
		Extension:  ext,
		Content:    content,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.meta.SaveFile(file); err != nil {
		return UploadResult{}, fmt.Errorf("saving file: %w", err)
	}

	if tabularExts[ext] {
		return s.ingestTabular(ctx, file)
	}
	return s.ingestDocument(ctx, file)
}

func (s *Service) ingestTabular(ctx context.Context, file storage.File) (UploadResult, error) {
	tbl, err := tabular.Parse(file.Filename, file.Content)
	if err != nil {
		return UploadResult{}, fmt.Errorf("parsing %q: %w", file.Filename, err)
	}

	tableName := tabular.TableNameFor(file.UserID, file.ID)
	td := tabular.Describe(tbl, tableName, file.Filename)

	if err := tabular.Materialize(ctx, s.data, tbl, td); err != nil {
		return UploadResult{}, fmt.Errorf("materializing %q: %w", file.Filename, err)
	}

	descriptor, err := catalog.EncodeDescriptor(td)
	if err != nil {
		return UploadResult{}, fmt.Errorf("encoding descriptor: %w", err)
	}
	doc := storage.Document{
		ID:             uuid.New().String(),
		UserID:         file.UserID,
		SessionID:      file.SessionID,
		FileID:         file.ID,
		Filename:       file.Filename,
		TableName:      tableName,
		DescriptorJSON: descriptor,
		UploadedAt:     time.Now().UTC(),
	}
	if err := s.meta.SaveDocument(doc); err != nil {
		return UploadResult{}, fmt.Errorf("cataloging %q: %w", file.Filename, err)
	}

	return UploadResult{
		FileID:    file.ID,
		Filename:  file.Filename,
		Kind:      KindTabular,
		TableName: tableName,
		RowCount:  td.RowCount,
	}, nil
}

func (s *Service) ingestDocument(ctx context.Context, file storage.File) (UploadResult, error) {
	text, err := extract.Text(file.Filename, file.Content)
	if err != nil {
		return UploadResult{}, fmt.Errorf("extracting text from %q: %w", file.Filename, err)
	}

	doc := storage.Document{
		ID:         uuid.New().String(),
		UserID:     file.UserID,
		SessionID:  file.SessionID,
		FileID:     file.ID,
		Filename:   file.Filename,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.meta.SaveDocument(doc); err != nil {
		return UploadResult{}, fmt.Errorf("cataloging %q: %w", file.Filename, err)
	}

	if err := s.meta.SaveDocumentText(storage.DocumentText{
		FileID:    file.ID,
		UserID:    file.UserID,
		SessionID: file.SessionID,
		Content:   text,
	}); err != nil {
		return UploadResult{}, fmt.Errorf("saving extracted text: %w", err)
	}

	payload, err := json.Marshal(embedPayload{FileID: file.ID})
	if err != nil {
		return UploadResult{}, fmt.Errorf("encoding job payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        jobTypeEmbed,
		PayloadJSON: string(payload),
		MaxAttempts: 3,
	}
	if err := s.meta.EnqueueJob(job); err != nil {
		return UploadResult{}, fmt.Errorf("enqueueing embed job: %w", err)
	}

	return UploadResult{
		FileID:   file.ID,
		Filename: file.Filename,
		Kind:     KindDocument,
		Queued:   true,
	}, nil
}
